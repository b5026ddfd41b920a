package api

import (
	"context"
	"time"

	"github.com/pepe57/OpenGateLLM/internal/models"
	"github.com/pepe57/OpenGateLLM/internal/services/broker"
	"github.com/pepe57/OpenGateLLM/internal/services/limiter"
	"github.com/pepe57/OpenGateLLM/internal/services/providers"
	"github.com/pepe57/OpenGateLLM/internal/services/registry"
	"github.com/pepe57/OpenGateLLM/internal/services/usage"
)

// trackUsage records a usage row off the request path. Callers run it in
// its own goroutine so accounting never delays the response.
func trackUsage(us *usage.Service, rec usage.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	us.Track(ctx, rec)
}

// Resolver picks backends for incoming requests, either directly through
// the registry's balancer or through the queued routing worker when a
// message broker is configured.
type Resolver struct {
	registry *registry.Registry
	queued   *broker.QueuedBalancer
}

func NewResolver(reg *registry.Registry, queued *broker.QueuedBalancer) *Resolver {
	return &Resolver{registry: reg, queued: queued}
}

// Candidates resolves a model name for an endpoint without committing to a
// provider, so callers can enforce limits before a slot is taken.
func (r *Resolver) Candidates(ctx context.Context, endpoint, model string, user models.UserInfo) (*models.Router, []models.Provider, error) {
	return r.registry.Candidates(ctx, endpoint, model, user)
}

// Pick chooses a provider from the candidate set. When queued routing is
// enabled the decision is delegated to the worker, which orders requests
// by the caller's priority.
func (r *Resolver) Pick(ctx context.Context, router *models.Router, candidates []models.Provider, user models.UserInfo) (*providers.Backend, error) {
	if r.queued != nil {
		providerID, err := r.queued.Pick(ctx, *router, user)
		if err != nil {
			return nil, err
		}
		return r.registry.BackendByID(ctx, providerID)
	}
	return r.registry.PickBackend(ctx, *router, candidates)
}

// Resolve combines Candidates and Pick for callers with no intermediate
// work between the two.
func (r *Resolver) Resolve(ctx context.Context, endpoint, model string, user models.UserInfo) (*models.Router, *providers.Backend, error) {
	router, candidates, err := r.Candidates(ctx, endpoint, model, user)
	if err != nil {
		return nil, nil, err
	}
	backend, err := r.Pick(ctx, router, candidates, user)
	if err != nil {
		return nil, nil, err
	}
	return router, backend, nil
}

// resolveWithLimits resolves the model, enforces the caller's request and
// token limits, then picks a provider. Throttled requests never take a
// routing slot.
func resolveWithLimits(ctx context.Context, resolver *Resolver, lim *limiter.Service, endpoint, model string, user models.UserInfo, promptTokens int64) (*models.Router, *providers.Backend, error) {
	router, candidates, err := resolver.Candidates(ctx, endpoint, model, user)
	if err != nil {
		return nil, nil, err
	}
	if err := lim.CheckRequestLimits(ctx, user, router.ID); err != nil {
		return nil, nil, err
	}
	if err := lim.CheckTokenLimits(ctx, user, router.ID, promptTokens); err != nil {
		return nil, nil, err
	}
	backend, err := resolver.Pick(ctx, router, candidates, user)
	if err != nil {
		return nil, nil, err
	}
	return router, backend, nil
}
