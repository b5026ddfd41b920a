package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pepe57/OpenGateLLM/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordingBackend(t *testing.T, pt models.ProviderType, seenPath *string) *Backend {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seenPath = r.URL.Path
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(server.Close)

	// The trailing slash mirrors the shape of the built-in default URLs.
	b := NewBackend(models.Provider{
		ID:        1,
		Type:      pt,
		URL:       server.URL + "/",
		ModelName: "m",
	})
	t.Cleanup(b.Close)
	return b
}

func TestForwardComposesVersionedPathFromSlashedBase(t *testing.T) {
	var seenPath string
	backend := recordingBackend(t, models.ProviderTypeOpenAI, &seenPath)

	resp, err := backend.Forward(context.Background(), models.EndpointChatCompletions, []byte(`{}`))
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, "/v1/chat/completions", seenPath)
}

func TestForwardComposesTEIRerankPathFromRoot(t *testing.T) {
	var seenPath string
	backend := recordingBackend(t, models.ProviderTypeTEI, &seenPath)

	resp, err := backend.Forward(context.Background(), models.EndpointRerank, []byte(`{}`))
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, "/rerank", seenPath)
}

func TestEndpointPathRejectsUnsupportedEndpoint(t *testing.T) {
	b := NewBackend(models.Provider{Type: models.ProviderTypeTEI, URL: "http://tei:8081", ModelName: "m"})
	defer b.Close()

	_, err := b.EndpointPath(models.EndpointChatCompletions)
	require.Error(t, err)
	assert.False(t, b.SupportsEndpoint(models.EndpointChatCompletions))
}
