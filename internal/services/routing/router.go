package routing

import (
	"context"
	"fmt"
	"time"

	"github.com/pepe57/OpenGateLLM/internal/models"
	"github.com/pepe57/OpenGateLLM/internal/services/metrics"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

// Balancer resolves a router's load balancing strategy and applies the QoS
// policy, retrying while every candidate is saturated.
type Balancer struct {
	strategies map[models.LoadBalancingStrategy]Strategy
	qos        *QoSPolicy
	maxRetries int
	retryDelay time.Duration
}

func NewBalancer(rdb redis.UniversalClient, store *metrics.Store, maxRetries int, retryDelay time.Duration) *Balancer {
	return &Balancer{
		strategies: map[models.LoadBalancingStrategy]Strategy{
			models.StrategyShuffle:    Shuffle{},
			models.StrategyRoundRobin: NewRoundRobin(rdb),
			models.StrategyLeastBusy:  NewLeastBusy(store),
		},
		qos:        NewQoSPolicy(store),
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}
}

// Pick selects a provider for the router among the given candidates. When
// every candidate is over its QoS limit the pick is retried a few times
// before reporting the model as too busy.
func (b *Balancer) Pick(ctx context.Context, router models.Router, candidates []models.Provider) (models.Provider, error) {
	if len(candidates) == 0 {
		return models.Provider{}, models.NewNotFoundError("no providers available for model " + router.Name)
	}

	strategy, ok := b.strategies[router.LoadBalancingStrategy]
	if !ok {
		strategy = b.strategies[models.StrategyShuffle]
	}

	for attempt := 0; ; attempt++ {
		eligible := make([]models.Provider, 0, len(candidates))
		for _, p := range candidates {
			if b.qos.CanForward(ctx, p) {
				eligible = append(eligible, p)
			}
		}
		if len(eligible) > 0 {
			return strategy.Select(ctx, router, eligible)
		}
		if attempt >= b.maxRetries {
			return models.Provider{}, models.NewModelTooBusyError(fmt.Sprintf("model %s is too busy", router.Name))
		}

		fiberlog.Debugf("all providers of router %d saturated, retry %d/%d", router.ID, attempt+1, b.maxRetries)
		select {
		case <-ctx.Done():
			return models.Provider{}, models.NewTimeoutError("provider selection", ctx.Err())
		case <-time.After(b.retryDelay):
		}
	}
}
