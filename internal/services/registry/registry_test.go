package registry

import (
	"context"
	"testing"
	"time"

	"github.com/pepe57/OpenGateLLM/internal/models"
	"github.com/pepe57/OpenGateLLM/internal/services/database"
	"github.com/pepe57/OpenGateLLM/internal/services/metrics"
	"github.com/pepe57/OpenGateLLM/internal/services/routing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	db, err := database.NewSQLite("")
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate())
	t.Cleanup(func() { _ = db.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := metrics.NewStore(rdb, 2*time.Minute)
	balancer := routing.NewBalancer(rdb, store, 1, time.Millisecond)
	return New(db, balancer)
}

func testSpecs() []models.ModelSpec {
	return []models.ModelSpec{
		{
			Name:                  "llama",
			Type:                  models.ModelTypeTextGeneration,
			Aliases:               []string{"llama-large"},
			LoadBalancingStrategy: models.StrategyShuffle,
			CostPromptTokens:      0.1,
			CostCompletionTokens:  0.3,
			Providers: []models.ProviderSpec{
				{Type: models.ProviderTypeVLLM, URL: "http://vllm:8000", ModelName: "meta-llama/Llama-3.1-8B-Instruct", TimeoutSeconds: 60},
			},
		},
		{
			Name:                  "bge-m3",
			Type:                  models.ModelTypeTextEmbeddings,
			LoadBalancingStrategy: models.StrategyShuffle,
			Providers: []models.ProviderSpec{
				{Type: models.ProviderTypeTEI, URL: "http://tei:80", ModelName: "BAAI/bge-m3"},
			},
		},
	}
}

func TestSyncCreatesRoutersAndProviders(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, reg.Sync(ctx, testSpecs()))

	routers, err := reg.Routers(ctx)
	require.NoError(t, err)
	require.Len(t, routers, 2)

	router, err := reg.ResolveRouter(ctx, "llama")
	require.NoError(t, err)
	assert.Equal(t, models.ModelTypeTextGeneration, router.Type)
	assert.Equal(t, []string{"llama-large"}, router.AliasValues())
	require.Len(t, router.Providers, 1)
	assert.Equal(t, "meta-llama/Llama-3.1-8B-Instruct", router.Providers[0].ModelName)
}

func TestSyncIsIdempotent(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, reg.Sync(ctx, testSpecs()))
	require.NoError(t, reg.Sync(ctx, testSpecs()))

	router, err := reg.ResolveRouter(ctx, "llama")
	require.NoError(t, err)
	assert.Len(t, router.Providers, 1)
	assert.Equal(t, []string{"llama-large"}, router.AliasValues())
}

func TestSyncUpdatesExistingRouter(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, reg.Sync(ctx, testSpecs()))

	specs := testSpecs()
	specs[0].CostPromptTokens = 0.5
	specs[0].Aliases = []string{"llama-big"}
	require.NoError(t, reg.Sync(ctx, specs))

	router, err := reg.ResolveRouter(ctx, "llama")
	require.NoError(t, err)
	assert.Equal(t, 0.5, router.CostPromptTokens)
	assert.Equal(t, []string{"llama-big"}, router.AliasValues())
}

func TestResolveRouterByAlias(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, reg.Sync(ctx, testSpecs()))

	router, err := reg.ResolveRouter(ctx, "llama-large")
	require.NoError(t, err)
	assert.Equal(t, "llama", router.Name)
}

func TestResolveUnknownModelIs404(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, reg.Sync(ctx, testSpecs()))

	_, err := reg.ResolveRouter(ctx, "nope")
	require.Error(t, err)
	assert.Equal(t, 404, models.SanitizeError(err).GetStatusCode())
}

func TestCandidatesRejectsWrongEndpoint(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, reg.Sync(ctx, testSpecs()))

	_, _, err := reg.Candidates(ctx, models.EndpointChatCompletions, "bge-m3", models.UserInfo{})
	require.Error(t, err)
	assert.Equal(t, 400, models.SanitizeError(err).GetStatusCode())
}

func TestCandidatesRejectsExhaustedBudgetOnCostedModel(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, reg.Sync(ctx, testSpecs()))

	budget := 0.0
	_, _, err := reg.Candidates(ctx, models.EndpointChatCompletions, "llama", models.UserInfo{Budget: &budget})
	require.Error(t, err)
	assert.Equal(t, 403, models.SanitizeError(err).GetStatusCode())
}

func TestCandidatesAllowsFreeModelWithExhaustedBudget(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, reg.Sync(ctx, testSpecs()))

	budget := 0.0
	_, candidates, err := reg.Candidates(ctx, models.EndpointEmbeddings, "bge-m3", models.UserInfo{Budget: &budget})
	require.NoError(t, err)
	assert.Len(t, candidates, 1)
}

func TestRequestBackendPicksProvider(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, reg.Sync(ctx, testSpecs()))

	router, backend, err := reg.RequestBackend(ctx, models.EndpointChatCompletions, "llama", models.UserInfo{})
	require.NoError(t, err)
	assert.Equal(t, "llama", router.Name)
	assert.Equal(t, models.ProviderTypeVLLM, backend.Provider.Type)
}

func TestCreateRouterConflict(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, reg.Sync(ctx, testSpecs()))

	_, err := reg.CreateRouter(ctx, testSpecs()[0])
	require.Error(t, err)
	assert.Equal(t, 409, models.SanitizeError(err).GetStatusCode())
}

func TestDeleteRouterRemovesIt(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, reg.Sync(ctx, testSpecs()))

	require.NoError(t, reg.DeleteRouter(ctx, "llama"))
	_, err := reg.ResolveRouter(ctx, "llama")
	require.Error(t, err)
	assert.Equal(t, 404, models.SanitizeError(err).GetStatusCode())
}

func TestAddAndRemoveProvider(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, reg.Sync(ctx, testSpecs()))

	provider, err := reg.AddProvider(ctx, "llama", models.ProviderSpec{
		Type:      models.ProviderTypeOpenAI,
		URL:       "https://api.openai.com/",
		ModelName: "gpt-4o-mini",
	})
	require.NoError(t, err)

	router, err := reg.ResolveRouter(ctx, "llama")
	require.NoError(t, err)
	assert.Len(t, router.Providers, 2)

	require.NoError(t, reg.RemoveProvider(ctx, "llama", provider.ID))
	router, err = reg.ResolveRouter(ctx, "llama")
	require.NoError(t, err)
	assert.Len(t, router.Providers, 1)
}
