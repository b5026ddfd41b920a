package routing

import (
	"context"

	"github.com/pepe57/OpenGateLLM/internal/models"
	"github.com/pepe57/OpenGateLLM/internal/services/metrics"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

// QoSPolicy decides whether a provider may accept another request based on
// its configured quality-of-service metric.
type QoSPolicy struct {
	store *metrics.Store
}

func NewQoSPolicy(store *metrics.Store) *QoSPolicy {
	return &QoSPolicy{store: store}
}

// CanForward reports whether the provider is below its QoS limit. A
// provider without a QoS policy always accepts. Metric store failures
// count as acceptance so routing never stalls on Redis.
func (q *QoSPolicy) CanForward(ctx context.Context, p models.Provider) bool {
	if p.QoSMetric == nil || p.QoSLimit == nil {
		return true
	}

	var value float64
	var err error
	switch *p.QoSMetric {
	case models.MetricInflight:
		value, err = q.store.Inflight(ctx, p.ID)
	case models.MetricTTFT, models.MetricLatency:
		var ok bool
		value, ok, err = q.store.P95(ctx, *p.QoSMetric, p.ID)
		if err == nil && !ok {
			return true
		}
	default:
		return true
	}
	if err != nil {
		fiberlog.Warnf("qos metric %s unavailable for provider %d: %v", *p.QoSMetric, p.ID, err)
		return true
	}
	return value <= *p.QoSLimit
}
