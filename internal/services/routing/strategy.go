package routing

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/pepe57/OpenGateLLM/internal/models"
	"github.com/pepe57/OpenGateLLM/internal/services/metrics"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

// Strategy picks one provider among a router's candidates.
type Strategy interface {
	Select(ctx context.Context, router models.Router, candidates []models.Provider) (models.Provider, error)
}

// Shuffle picks a candidate uniformly at random.
type Shuffle struct{}

func (Shuffle) Select(_ context.Context, _ models.Router, candidates []models.Provider) (models.Provider, error) {
	if len(candidates) == 0 {
		return models.Provider{}, fmt.Errorf("no candidates")
	}
	return candidates[rand.Intn(len(candidates))], nil
}

// RoundRobin cycles through candidates with a shared Redis cursor so all
// gateway replicas rotate together.
type RoundRobin struct {
	rdb redis.UniversalClient
}

func NewRoundRobin(rdb redis.UniversalClient) *RoundRobin {
	return &RoundRobin{rdb: rdb}
}

func (r *RoundRobin) Select(ctx context.Context, router models.Router, candidates []models.Provider) (models.Provider, error) {
	if len(candidates) == 0 {
		return models.Provider{}, fmt.Errorf("no candidates")
	}
	cursor, err := r.rdb.Incr(ctx, fmt.Sprintf("ogl_lb:rr:%d", router.ID)).Result()
	if err != nil {
		// A degraded cursor store degrades to random rotation.
		fiberlog.Warnf("round robin cursor unavailable for router %d: %v", router.ID, err)
		return candidates[rand.Intn(len(candidates))], nil
	}
	return candidates[int(cursor)%len(candidates)], nil
}

// LeastBusy picks the candidate with the lowest p95 time to first token
// over the metric retention window. Candidates without samples rank last,
// ties break randomly.
type LeastBusy struct {
	store *metrics.Store
}

func NewLeastBusy(store *metrics.Store) *LeastBusy {
	return &LeastBusy{store: store}
}

func (l *LeastBusy) Select(ctx context.Context, _ models.Router, candidates []models.Provider) (models.Provider, error) {
	if len(candidates) == 0 {
		return models.Provider{}, fmt.Errorf("no candidates")
	}

	best := math.Inf(1)
	var winners []models.Provider
	for _, p := range candidates {
		score := math.Inf(1)
		if p95, ok, err := l.store.P95(ctx, models.MetricTTFT, p.ID); err != nil {
			fiberlog.Warnf("failed to read ttft series for provider %d: %v", p.ID, err)
		} else if ok {
			score = p95
		}
		switch {
		case score < best:
			best = score
			winners = winners[:0]
			winners = append(winners, p)
		case score == best:
			winners = append(winners, p)
		}
	}
	return winners[rand.Intn(len(winners))], nil
}
