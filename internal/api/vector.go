package api

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pepe57/OpenGateLLM/internal/models"
	"github.com/pepe57/OpenGateLLM/internal/services/limiter"
	"github.com/pepe57/OpenGateLLM/internal/services/providers"

	"github.com/google/uuid"
)

// Embedder turns texts into vectors through a gateway embeddings model. The
// vector store handlers share it for document ingestion and query encoding.
type Embedder struct {
	resolver  *Resolver
	limiter   *limiter.Service
	forwarder *providers.Forwarder
	tokens    providers.TokenCounter
}

func NewEmbedder(resolver *Resolver, lim *limiter.Service, fwd *providers.Forwarder, tokens providers.TokenCounter) *Embedder {
	return &Embedder{resolver: resolver, limiter: lim, forwarder: fwd, tokens: tokens}
}

// EmbedResult carries the vectors with the router that produced them and
// the tokens the caller should be billed for.
type EmbedResult struct {
	Vectors [][]float32
	Router  *models.Router
	Usage   models.TokenUsage
}

// Embed encodes texts with the named embeddings model, enforcing the
// caller's limits like any other inference request.
func (e *Embedder) Embed(ctx context.Context, model string, texts []string, user models.UserInfo) (*EmbedResult, error) {
	if len(texts) == 0 {
		return nil, models.NewValidationError("nothing to embed", nil)
	}
	promptTokens := e.tokens.Count(strings.Join(texts, "\n"))
	router, backend, err := resolveWithLimits(ctx, e.resolver, e.limiter, models.EndpointEmbeddings, model, user, int64(promptTokens))
	if err != nil {
		return nil, err
	}

	payload := map[string]any{"input": texts}
	if backend.IncludesModelField() {
		payload["model"] = backend.Provider.ModelName
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, models.NewInternalError("failed to encode request body", err)
	}

	requestID := "embd-" + uuid.NewString()
	result, err := e.forwarder.ForwardJSON(ctx, backend, *router, models.EndpointEmbeddings, body, requestID, promptTokens)
	if err != nil {
		return nil, err
	}

	var reply models.EmbeddingsResponse
	if err := json.Unmarshal(result.Body, &reply); err != nil {
		return nil, models.NewProviderError(string(backend.Provider.Type), "backend returned invalid embeddings", err)
	}
	if len(reply.Data) != len(texts) {
		return nil, models.NewProviderError(string(backend.Provider.Type), "backend returned the wrong number of embeddings", nil)
	}

	vectors := make([][]float32, len(texts))
	for _, item := range reply.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, models.NewProviderError(string(backend.Provider.Type), "backend returned an out of range embedding index", nil)
		}
		vectors[item.Index] = item.Embedding
	}
	return &EmbedResult{Vectors: vectors, Router: router, Usage: result.Usage}, nil
}

// VectorSize reports the dimensionality of the named embeddings model,
// from provider metadata when probed, otherwise by embedding a probe text.
func (e *Embedder) VectorSize(ctx context.Context, model string, user models.UserInfo) (int, error) {
	router, candidates, err := e.resolver.Candidates(ctx, models.EndpointEmbeddings, model, user)
	if err != nil {
		return 0, err
	}
	if router.Type != models.ModelTypeTextEmbeddings {
		return 0, models.NewWrongModelTypeError(model)
	}
	for _, p := range candidates {
		if p.VectorSize != nil {
			return *p.VectorSize, nil
		}
	}
	result, err := e.Embed(ctx, model, []string{"hello world"}, user)
	if err != nil {
		return 0, err
	}
	return len(result.Vectors[0]), nil
}
