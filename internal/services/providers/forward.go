package providers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/pepe57/OpenGateLLM/internal/models"
	"github.com/pepe57/OpenGateLLM/internal/services/metrics"
)

// TokenCounter counts tokens in text for accounting when a backend omits
// its usage block.
type TokenCounter interface {
	Count(text string) int
}

// RemoteError carries a backend HTTP error body through to the client
// unchanged.
type RemoteError struct {
	Status int
	Body   []byte
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("backend returned status %d", e.Status)
}

// ForwardResult is what a completed forward yields for accounting.
type ForwardResult struct {
	Body     []byte
	Usage    models.TokenUsage
	TTFT     *time.Duration
	Duration time.Duration
}

// Forwarder pushes request bodies to backends while keeping the inflight
// gauge and performance series up to date.
type Forwarder struct {
	store  *metrics.Store
	tokens TokenCounter
}

func NewForwarder(store *metrics.Store, tokens TokenCounter) *Forwarder {
	return &Forwarder{store: store, tokens: tokens}
}

// ForwardChat forwards a synchronous chat completion and annotates the
// reply with the gateway model name, request id and usage.
func (f *Forwarder) ForwardChat(ctx context.Context, backend *Backend, router models.Router, req *models.ChatRequest, requestID string) (*ForwardResult, error) {
	body, err := req.BackendBody(backend.Provider.ModelName)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	f.trackInflight(ctx, backend)
	defer f.releaseInflight(backend)

	resp, err := backend.Forward(ctx, models.EndpointChatCompletions, body)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, models.NewProviderError(string(backend.Provider.Type), "failed to read backend response", err)
	}
	duration := time.Since(start)
	f.store.RecordLatency(ctx, backend.Provider.ID, duration)

	if resp.StatusCode >= 400 {
		return nil, &RemoteError{Status: resp.StatusCode, Body: raw}
	}

	var reply map[string]any
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, models.NewProviderError(string(backend.Provider.Type), "backend returned invalid JSON", err)
	}

	usage := f.chatUsage(reply, req, completionText(reply))
	annotated, err := f.annotate(reply, router, requestID, usage)
	if err != nil {
		return nil, err
	}
	return &ForwardResult{Body: annotated, Usage: usage, Duration: duration}, nil
}

// ForwardJSON forwards embeddings, rerank and other single-shot endpoints.
// The model field is rewritten on the way in and restored to the gateway
// name on the way out.
func (f *Forwarder) ForwardJSON(ctx context.Context, backend *Backend, router models.Router, endpoint string, body []byte, requestID string, promptTokens int) (*ForwardResult, error) {
	start := time.Now()
	f.trackInflight(ctx, backend)
	defer f.releaseInflight(backend)

	resp, err := backend.Forward(ctx, endpoint, body)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, models.NewProviderError(string(backend.Provider.Type), "failed to read backend response", err)
	}
	duration := time.Since(start)
	f.store.RecordLatency(ctx, backend.Provider.ID, duration)

	if resp.StatusCode >= 400 {
		return nil, &RemoteError{Status: resp.StatusCode, Body: raw}
	}

	var reply map[string]any
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, models.NewProviderError(string(backend.Provider.Type), "backend returned invalid JSON", err)
	}

	usage := usageFromReply(reply)
	if usage.TotalTokens == 0 && promptTokens > 0 {
		usage = models.TokenUsage{PromptTokens: promptTokens, TotalTokens: promptTokens}
	}
	annotated, err := f.annotate(reply, router, requestID, usage)
	if err != nil {
		return nil, err
	}
	return &ForwardResult{Body: annotated, Usage: usage, Duration: duration}, nil
}

// ForwardChatStream relays an SSE stream, measuring time to first content
// delta and injecting a usage chunk ahead of the terminating [DONE].
func (f *Forwarder) ForwardChatStream(ctx context.Context, backend *Backend, router models.Router, req *models.ChatRequest, requestID string, w *bufio.Writer) (*ForwardResult, error) {
	body, err := req.BackendBody(backend.Provider.ModelName)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	f.trackInflight(ctx, backend)
	defer f.releaseInflight(backend)

	resp, err := backend.Forward(ctx, models.EndpointChatCompletions, body)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp.Body)

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, &RemoteError{Status: resp.StatusCode, Body: raw}
	}

	var (
		ttft       *time.Duration
		completion strings.Builder
		usage      *models.TokenUsage
	)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			if err := writeLine(w, line); err != nil {
				return nil, err
			}
			continue
		}

		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			if usage == nil {
				u := f.streamUsage(req, completion.String())
				usage = &u
			}
			if err := f.writeUsageChunk(w, router, requestID, *usage); err != nil {
				return nil, err
			}
			if err := writeLine(w, line); err != nil {
				return nil, err
			}
			break
		}

		var chunk models.ChatCompletionChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err == nil {
			if delta := chunk.ContentDelta(); delta != "" {
				completion.WriteString(delta)
				if ttft == nil {
					d := time.Since(start)
					ttft = &d
					f.store.RecordTTFT(ctx, backend.Provider.ID, d)
				}
			}
			if chunk.Usage != nil {
				usage = chunk.Usage
			}
		}

		rewritten, err := rewriteChunkModel(payload, router.Name, requestID)
		if err != nil {
			rewritten = line
		} else {
			rewritten = "data: " + rewritten
		}
		if err := writeLine(w, rewritten); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		if IsTimeout(err) {
			return nil, models.NewTimeoutError("stream from backend", err)
		}
		return nil, models.NewProviderError(string(backend.Provider.Type), "stream interrupted", err)
	}

	duration := time.Since(start)
	f.store.RecordLatency(ctx, backend.Provider.ID, duration)

	if usage == nil {
		u := f.streamUsage(req, completion.String())
		usage = &u
	}
	return &ForwardResult{Usage: *usage, TTFT: ttft, Duration: duration}, nil
}

func (f *Forwarder) trackInflight(ctx context.Context, backend *Backend) {
	if _, err := f.store.IncInflight(ctx, backend.Provider.ID); err != nil {
		fiberlog.Warnf("failed to bump inflight gauge for provider %d: %v", backend.Provider.ID, err)
	}
}

// releaseInflight decrements with a fresh context so a canceled request
// still releases its slot.
func (f *Forwarder) releaseInflight(backend *Backend) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	f.store.DecInflight(ctx, backend.Provider.ID)
}

func (f *Forwarder) chatUsage(reply map[string]any, req *models.ChatRequest, completion string) models.TokenUsage {
	if u := usageFromReply(reply); u.TotalTokens > 0 {
		return u
	}
	return f.streamUsage(req, completion)
}

func (f *Forwarder) streamUsage(req *models.ChatRequest, completion string) models.TokenUsage {
	prompt := f.tokens.Count(req.PromptText())
	comp := f.tokens.Count(completion)
	return models.TokenUsage{
		PromptTokens:     prompt,
		CompletionTokens: comp,
		TotalTokens:      prompt + comp,
	}
}

// annotate rewrites the reply for the client: gateway model name in place
// of the backend one, a stable request id and a usage block.
func (f *Forwarder) annotate(reply map[string]any, router models.Router, requestID string, usage models.TokenUsage) ([]byte, error) {
	if _, ok := reply["model"]; ok {
		reply["model"] = router.Name
	}
	if requestID != "" {
		reply["id"] = requestID
	}
	if usage.TotalTokens > 0 {
		reply["usage"] = usage
	}
	annotated, err := json.Marshal(reply)
	if err != nil {
		return nil, models.NewInternalError("failed to encode response body", err)
	}
	return annotated, nil
}

func (f *Forwarder) writeUsageChunk(w *bufio.Writer, router models.Router, requestID string, usage models.TokenUsage) error {
	chunk := map[string]any{
		"id":      requestID,
		"object":  "chat.completion.chunk",
		"created": time.Now().Unix(),
		"model":   router.Name,
		"choices": []any{},
		"usage":   usage,
	}
	payload, err := json.Marshal(chunk)
	if err != nil {
		return models.NewInternalError("failed to encode usage chunk", err)
	}
	return writeLine(w, "data: "+string(payload))
}

func rewriteChunkModel(payload, model, requestID string) (string, error) {
	var chunk map[string]any
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return "", err
	}
	if _, ok := chunk["model"]; ok {
		chunk["model"] = model
	}
	if requestID != "" {
		chunk["id"] = requestID
	}
	out, err := json.Marshal(chunk)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func usageFromReply(reply map[string]any) models.TokenUsage {
	raw, ok := reply["usage"]
	if !ok {
		return models.TokenUsage{}
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return models.TokenUsage{}
	}
	var u models.TokenUsage
	if err := json.Unmarshal(encoded, &u); err != nil {
		return models.TokenUsage{}
	}
	if u.TotalTokens == 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	return u
}

func completionText(reply map[string]any) string {
	choices, ok := reply["choices"].([]any)
	if !ok {
		return ""
	}
	var b strings.Builder
	for _, c := range choices {
		choice, ok := c.(map[string]any)
		if !ok {
			continue
		}
		message, ok := choice["message"].(map[string]any)
		if !ok {
			continue
		}
		if content, ok := message["content"].(string); ok {
			b.WriteString(content)
		}
	}
	return b.String()
}

func writeLine(w *bufio.Writer, line string) error {
	if _, err := w.WriteString(line + "\n"); err != nil {
		return err
	}
	return w.Flush()
}

func closeBody(body io.ReadCloser) {
	if err := body.Close(); err != nil {
		fiberlog.Errorf("Error closing response body: %v", err)
	}
}
