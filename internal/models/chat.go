package models

import (
	"encoding/json"
	"strings"
)

// ChatRequest is a parsed chat completion payload. The gateway only needs a
// handful of fields for routing and accounting; everything else is kept
// verbatim in Raw so backend-specific parameters survive the round trip.
type ChatRequest struct {
	Model    string        `json:"model"`
	Stream   bool          `json:"stream"`
	Messages []ChatMessage `json:"messages"`

	// Search asks the gateway to retrieve collection chunks and prepend
	// them to the last user message before forwarding.
	Search     bool           `json:"search,omitempty"`
	SearchArgs *SearchRequest `json:"search_args,omitempty"`

	Raw map[string]any `json:"-"`
}

// ChatMessage is the subset of an OpenAI message the gateway inspects.
// Content may be a string or a multimodal part list, so it stays raw.
type ChatMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
	Name    string          `json:"name,omitempty"`
}

// Text returns the textual content of the message. Multimodal part lists
// contribute their "text" parts, image parts are ignored.
func (m ChatMessage) Text() string {
	var s string
	if err := json.Unmarshal(m.Content, &s); err == nil {
		return s
	}
	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(m.Content, &parts); err != nil {
		return ""
	}
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.Type == "text" && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// ParseChatRequest decodes a chat completion body, keeping the raw map for
// passthrough forwarding.
func ParseChatRequest(body []byte) (*ChatRequest, error) {
	var req ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, NewValidationError("invalid request body", err)
	}
	if err := json.Unmarshal(body, &req.Raw); err != nil {
		return nil, NewValidationError("invalid request body", err)
	}
	if req.Model == "" {
		return nil, NewValidationError("model is required", nil)
	}
	if len(req.Messages) == 0 {
		return nil, NewValidationError("messages must not be empty", nil)
	}
	return &req, nil
}

// BackendBody re-encodes the request with the model field rewritten to the
// backend's model name. Gateway-only fields never reach the backend.
func (r *ChatRequest) BackendBody(backendModel string) ([]byte, error) {
	r.Raw["model"] = backendModel
	delete(r.Raw, "search")
	delete(r.Raw, "search_args")
	body, err := json.Marshal(r.Raw)
	if err != nil {
		return nil, NewInternalError("failed to encode request body", err)
	}
	return body, nil
}

// LastUserText returns the text of the most recent user message, the
// prompt used for retrieval when search is requested.
func (r *ChatRequest) LastUserText() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == "user" {
			return r.Messages[i].Text()
		}
	}
	return ""
}

// AugmentLastUserMessage replaces the content of the most recent user
// message in the raw payload. Other messages keep their fields untouched.
func (r *ChatRequest) AugmentLastUserMessage(content string) {
	messages, ok := r.Raw["messages"].([]any)
	if !ok {
		return
	}
	for i := len(messages) - 1; i >= 0; i-- {
		msg, ok := messages[i].(map[string]any)
		if !ok {
			continue
		}
		if role, _ := msg["role"].(string); role == "user" {
			msg["content"] = content
			return
		}
	}
}

// PromptText concatenates message text for prompt token counting.
func (r *ChatRequest) PromptText() string {
	texts := make([]string, 0, len(r.Messages))
	for _, m := range r.Messages {
		if t := m.Text(); t != "" {
			texts = append(texts, t)
		}
	}
	return strings.Join(texts, "\n")
}

// ChatCompletionChunk is the subset of a streamed SSE chunk the gateway
// reads to detect first content and to tally completion text.
type ChatCompletionChunk struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Choices []struct {
		Delta struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *TokenUsage `json:"usage,omitempty"`
}

// ContentDelta returns the concatenated content of all choice deltas.
func (c *ChatCompletionChunk) ContentDelta() string {
	var b strings.Builder
	for _, ch := range c.Choices {
		b.WriteString(ch.Delta.Content)
	}
	return b.String()
}
