package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector exposes gateway-level Prometheus metrics on /metrics.
type Collector struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	ttft            *prometheus.HistogramVec
	tokensTotal     *prometheus.CounterVec
	inflight        *prometheus.GaugeVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Name:      "requests_total",
			Help:      "Forwarded requests by model, endpoint and status code.",
		}, []string{"model", "endpoint", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gateway",
			Name:      "request_duration_seconds",
			Help:      "End-to-end request duration.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"model", "endpoint"}),
		ttft: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gateway",
			Name:      "time_to_first_token_seconds",
			Help:      "Time to first streamed token.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"model"}),
		tokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Name:      "tokens_total",
			Help:      "Tokens consumed by model and kind.",
		}, []string{"model", "kind"}),
		inflight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "gateway",
			Name:      "inflight_requests",
			Help:      "Requests currently being forwarded per model.",
		}, []string{"model"}),
	}
}

func (c *Collector) ObserveRequest(model, endpoint string, status int, duration time.Duration) {
	c.requestsTotal.WithLabelValues(model, endpoint, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(model, endpoint).Observe(duration.Seconds())
}

func (c *Collector) ObserveTTFT(model string, d time.Duration) {
	c.ttft.WithLabelValues(model).Observe(d.Seconds())
}

func (c *Collector) ObserveTokens(model string, prompt, completion int) {
	c.tokensTotal.WithLabelValues(model, "prompt").Add(float64(prompt))
	c.tokensTotal.WithLabelValues(model, "completion").Add(float64(completion))
}

func (c *Collector) RequestStarted(model string) {
	c.inflight.WithLabelValues(model).Inc()
}

func (c *Collector) RequestFinished(model string) {
	c.inflight.WithLabelValues(model).Dec()
}
