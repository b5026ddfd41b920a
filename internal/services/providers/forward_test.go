package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pepe57/OpenGateLLM/internal/models"
	"github.com/pepe57/OpenGateLLM/internal/services/metrics"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wordCounter approximates tokens as whitespace-separated words, enough
// for deterministic accounting assertions.
type wordCounter struct{}

func (wordCounter) Count(text string) int {
	return len(strings.Fields(text))
}

func newTestForwarder(t *testing.T) *Forwarder {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewForwarder(metrics.NewStore(rdb, 2*time.Minute), wordCounter{})
}

func testBackend(t *testing.T, url string) *Backend {
	t.Helper()
	b := NewBackend(models.Provider{
		ID:        1,
		Type:      models.ProviderTypeVLLM,
		URL:       url,
		ModelName: "backend-model",
	})
	t.Cleanup(b.Close)
	return b
}

func chatRequest(t *testing.T) *models.ChatRequest {
	t.Helper()
	req, err := models.ParseChatRequest([]byte(`{"model":"llama","messages":[{"role":"user","content":"hello there"}]}`))
	require.NoError(t, err)
	return req
}

func TestForwardChatAnnotatesReply(t *testing.T) {
	var backendBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &backendBody))
		_, _ = w.Write([]byte(`{
			"id": "upstream-id",
			"model": "backend-model",
			"choices": [{"message": {"role": "assistant", "content": "hi"}}],
			"usage": {"prompt_tokens": 3, "completion_tokens": 5, "total_tokens": 8}
		}`))
	}))
	defer server.Close()

	f := newTestForwarder(t)
	backend := testBackend(t, server.URL)
	router := models.Router{ID: 1, Name: "llama"}

	result, err := f.ForwardChat(context.Background(), backend, router, chatRequest(t), "chatcmpl-test")
	require.NoError(t, err)

	assert.Equal(t, "backend-model", backendBody["model"])

	var reply map[string]any
	require.NoError(t, json.Unmarshal(result.Body, &reply))
	assert.Equal(t, "llama", reply["model"])
	assert.Equal(t, "chatcmpl-test", reply["id"])
	assert.Equal(t, 8, result.Usage.TotalTokens)
}

func TestForwardChatComputesUsageWhenBackendOmitsIt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{
			"id": "upstream-id",
			"model": "backend-model",
			"choices": [{"message": {"role": "assistant", "content": "one two three"}}]
		}`))
	}))
	defer server.Close()

	f := newTestForwarder(t)
	result, err := f.ForwardChat(context.Background(), testBackend(t, server.URL), models.Router{Name: "llama"}, chatRequest(t), "chatcmpl-test")
	require.NoError(t, err)

	// "hello there" is two words, the completion is three.
	assert.Equal(t, 2, result.Usage.PromptTokens)
	assert.Equal(t, 3, result.Usage.CompletionTokens)
	assert.Equal(t, 5, result.Usage.TotalTokens)
}

func TestForwardChatPassesBackendErrorsThrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte(`{"error": {"message": "no coffee here"}}`))
	}))
	defer server.Close()

	f := newTestForwarder(t)
	_, err := f.ForwardChat(context.Background(), testBackend(t, server.URL), models.Router{Name: "llama"}, chatRequest(t), "chatcmpl-test")
	require.Error(t, err)

	var remote *RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, http.StatusTeapot, remote.Status)
	assert.Contains(t, string(remote.Body), "no coffee here")
}

func TestForwardChatStreamRelaysAndInjectsUsage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`data: {"id":"u","object":"chat.completion.chunk","model":"backend-model","choices":[{"delta":{"role":"assistant","content":"Hel"}}]}`,
			``,
			`data: {"id":"u","object":"chat.completion.chunk","model":"backend-model","choices":[{"delta":{"content":"lo"}}]}`,
			``,
			`data: [DONE]`,
		}
		for _, chunk := range chunks {
			_, _ = io.WriteString(w, chunk+"\n")
		}
	}))
	defer server.Close()

	f := newTestForwarder(t)
	var out bytes.Buffer
	w := bufio.NewWriter(&out)

	result, err := f.ForwardChatStream(context.Background(), testBackend(t, server.URL), models.Router{ID: 1, Name: "llama"}, chatRequest(t), "chatcmpl-test", w)
	require.NoError(t, err)
	require.NoError(t, w.Flush())

	stream := out.String()
	assert.Contains(t, stream, `"model":"llama"`)
	assert.NotContains(t, stream, "backend-model")
	assert.Contains(t, stream, `"id":"chatcmpl-test"`)

	// The usage chunk is injected right before the terminator.
	lines := strings.Split(strings.TrimRight(stream, "\n"), "\n")
	require.GreaterOrEqual(t, len(lines), 2)
	assert.Equal(t, "data: [DONE]", lines[len(lines)-1])
	assert.Contains(t, lines[len(lines)-2], `"usage"`)

	require.NotNil(t, result.TTFT)
	assert.Equal(t, 1, result.Usage.CompletionTokens) // "Hello"
	assert.Equal(t, 2, result.Usage.PromptTokens)
}

func TestForwardJSONRewritesModelAndFallsBackToPromptTokens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"object":"list","model":"backend-model","data":[{"index":0,"embedding":[0.1,0.2]}]}`))
	}))
	defer server.Close()

	f := newTestForwarder(t)
	body := []byte(`{"model":"backend-model","input":"hello"}`)

	result, err := f.ForwardJSON(context.Background(), testBackend(t, server.URL), models.Router{Name: "bge"}, models.EndpointEmbeddings, body, "embd-test", 7)
	require.NoError(t, err)

	var reply map[string]any
	require.NoError(t, json.Unmarshal(result.Body, &reply))
	assert.Equal(t, "bge", reply["model"])
	assert.Equal(t, 7, result.Usage.PromptTokens)
	assert.Equal(t, 7, result.Usage.TotalTokens)
}
