package routing

import (
	"context"
	"testing"
	"time"

	"github.com/pepe57/OpenGateLLM/internal/models"
	"github.com/pepe57/OpenGateLLM/internal/services/metrics"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRedis(t *testing.T) (redis.UniversalClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, mr
}

func testCandidates() []models.Provider {
	return []models.Provider{{ID: 1}, {ID: 2}, {ID: 3}}
}

func TestShuffleReturnsACandidate(t *testing.T) {
	candidates := testCandidates()
	picked, err := Shuffle{}.Select(context.Background(), models.Router{}, candidates)
	require.NoError(t, err)
	assert.Contains(t, []uint{1, 2, 3}, picked.ID)
}

func TestShuffleRejectsEmptyCandidates(t *testing.T) {
	_, err := Shuffle{}.Select(context.Background(), models.Router{}, nil)
	require.Error(t, err)
}

func TestRoundRobinRotates(t *testing.T) {
	rdb, _ := testRedis(t)
	rr := NewRoundRobin(rdb)
	router := models.Router{ID: 9}
	candidates := testCandidates()

	var order []uint
	for range 6 {
		picked, err := rr.Select(context.Background(), router, candidates)
		require.NoError(t, err)
		order = append(order, picked.ID)
	}
	// The shared cursor starts at 1, so the rotation is 2, 3, 1, 2, 3, 1.
	assert.Equal(t, []uint{2, 3, 1, 2, 3, 1}, order)
}

func TestRoundRobinDegradesToRandomWithoutRedis(t *testing.T) {
	rdb, mr := testRedis(t)
	mr.Close()
	rr := NewRoundRobin(rdb)

	picked, err := rr.Select(context.Background(), models.Router{ID: 9}, testCandidates())
	require.NoError(t, err)
	assert.Contains(t, []uint{1, 2, 3}, picked.ID)
}

func TestLeastBusyWithoutSamplesPicksAnyCandidate(t *testing.T) {
	rdb, _ := testRedis(t)
	store := metrics.NewStore(rdb, 2*time.Minute)
	lb := NewLeastBusy(store)

	picked, err := lb.Select(context.Background(), models.Router{ID: 9}, testCandidates())
	require.NoError(t, err)
	assert.Contains(t, []uint{1, 2, 3}, picked.ID)
}

func TestBalancerReturnsTooBusyWhenSaturated(t *testing.T) {
	rdb, mr := testRedis(t)
	store := metrics.NewStore(rdb, 2*time.Minute)
	balancer := NewBalancer(rdb, store, 1, time.Millisecond)

	metric := models.MetricInflight
	limit := 1.0
	provider := models.Provider{ID: 4, QoSMetric: &metric, QoSLimit: &limit}
	require.NoError(t, mr.Set("ogl_mg:inflight:4", "5"))

	_, err := balancer.Pick(context.Background(), models.Router{ID: 9, Name: "llama"}, []models.Provider{provider})
	require.Error(t, err)
	appErr := models.SanitizeError(err)
	assert.Equal(t, 503, appErr.GetStatusCode())
	assert.Contains(t, appErr.Message, "llama")
}

func TestBalancerPicksEligibleProvider(t *testing.T) {
	rdb, _ := testRedis(t)
	store := metrics.NewStore(rdb, 2*time.Minute)
	balancer := NewBalancer(rdb, store, 1, time.Millisecond)

	metric := models.MetricInflight
	limit := 1.0
	busy := models.Provider{ID: 4, QoSMetric: &metric, QoSLimit: &limit}
	free := models.Provider{ID: 5}
	for range 2 {
		_, err := store.IncInflight(context.Background(), 4)
		require.NoError(t, err)
	}

	picked, err := balancer.Pick(context.Background(), models.Router{ID: 9, Name: "llama"}, []models.Provider{busy, free})
	require.NoError(t, err)
	assert.Equal(t, uint(5), picked.ID)
}
