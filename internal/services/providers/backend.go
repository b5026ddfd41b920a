package providers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pepe57/OpenGateLLM/internal/models"
)

// endpointPaths maps gateway endpoints to paths rooted at the deployment
// base URL. OpenAI-style servers expose the API under /v1, TEI mixes a
// versioned embeddings route with a root-level rerank.
var endpointPaths = map[models.ProviderType]map[string]string{
	models.ProviderTypeOpenAI: {
		models.EndpointChatCompletions: "/v1/chat/completions",
		models.EndpointEmbeddings:      "/v1/embeddings",
		models.EndpointModels:          "/v1/models",
		models.EndpointOCR:             "/v1/chat/completions",
	},
	models.ProviderTypeVLLM: {
		models.EndpointChatCompletions: "/v1/chat/completions",
		models.EndpointEmbeddings:      "/v1/embeddings",
		models.EndpointModels:          "/v1/models",
		models.EndpointOCR:             "/v1/chat/completions",
	},
	models.ProviderTypeAlbert: {
		models.EndpointChatCompletions: "/v1/chat/completions",
		models.EndpointEmbeddings:      "/v1/embeddings",
		models.EndpointModels:          "/v1/models",
		models.EndpointOCR:             "/v1/chat/completions",
		models.EndpointRerank:          "/v1/rerank",
	},
	models.ProviderTypeTEI: {
		models.EndpointEmbeddings: "/v1/embeddings",
		models.EndpointRerank:     "/rerank",
	},
}

// Backend wraps one provider row with a pooled client for its deployment.
type Backend struct {
	Provider models.Provider
	client   *Client
}

func NewBackend(p models.Provider) *Backend {
	cfg := DefaultClientConfig(p.URL)
	cfg.APIKey = p.Key
	cfg.Timeout = p.Timeout()
	return &Backend{
		Provider: p,
		client:   NewBackendClient(cfg),
	}
}

// NewBackendClient builds the pooled client for one deployment.
func NewBackendClient(cfg *ClientConfig) *Client {
	return NewClientWithConfig(cfg)
}

// SupportsEndpoint reports whether this provider type can serve an endpoint.
func (b *Backend) SupportsEndpoint(endpoint string) bool {
	_, ok := endpointPaths[b.Provider.Type][endpoint]
	return ok
}

// EndpointPath resolves the backend path for a gateway endpoint.
func (b *Backend) EndpointPath(endpoint string) (string, error) {
	path, ok := endpointPaths[b.Provider.Type][endpoint]
	if !ok {
		return "", fmt.Errorf("provider type %s does not serve endpoint %s", b.Provider.Type, endpoint)
	}
	return path, nil
}

// IncludesModelField reports whether the backend expects a model field in
// request bodies. TEI deployments serve exactly one model and reject it.
func (b *Backend) IncludesModelField() bool {
	return b.Provider.Type != models.ProviderTypeTEI
}

// Forward sends a request body to the backend endpoint and returns the raw
// response. Timeouts surface as 504s.
func (b *Backend) Forward(ctx context.Context, endpoint string, body []byte) (*http.Response, error) {
	path, err := b.EndpointPath(endpoint)
	if err != nil {
		return nil, models.NewProviderError(string(b.Provider.Type), err.Error(), nil)
	}
	resp, err := b.client.Do(ctx, http.MethodPost, path, body)
	if err != nil {
		if IsTimeout(err) {
			return nil, models.NewTimeoutError(fmt.Sprintf("forward to %s", b.Provider.URL), err)
		}
		return nil, models.NewProviderError(string(b.Provider.Type), "backend unreachable", err)
	}
	return resp, nil
}

// Close releases the backend's idle connections.
func (b *Backend) Close() {
	b.client.Close()
}
