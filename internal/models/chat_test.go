package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChatRequestRequiresModelAndMessages(t *testing.T) {
	_, err := ParseChatRequest([]byte(`{"messages":[{"role":"user","content":"hi"}]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model")

	_, err = ParseChatRequest([]byte(`{"model":"llama","messages":[]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "messages")

	_, err = ParseChatRequest([]byte(`not json`))
	require.Error(t, err)
}

func TestParseChatRequestKeepsUnknownFields(t *testing.T) {
	req, err := ParseChatRequest([]byte(`{
		"model": "llama",
		"messages": [{"role": "user", "content": "hi"}],
		"temperature": 0.2,
		"tool_choice": "auto"
	}`))
	require.NoError(t, err)

	body, err := req.BackendBody("meta-llama/Llama-3.1-8B-Instruct")
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "meta-llama/Llama-3.1-8B-Instruct", out["model"])
	assert.Equal(t, 0.2, out["temperature"])
	assert.Equal(t, "auto", out["tool_choice"])
}

func TestBackendBodyStripsGatewayFields(t *testing.T) {
	req, err := ParseChatRequest([]byte(`{
		"model": "llama",
		"messages": [{"role": "user", "content": "hi"}],
		"search": true,
		"search_args": {"collections": ["docs"], "k": 2}
	}`))
	require.NoError(t, err)
	assert.True(t, req.Search)
	require.NotNil(t, req.SearchArgs)
	assert.Equal(t, 2, req.SearchArgs.K)

	body, err := req.BackendBody("backend-model")
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(body, &out))
	assert.NotContains(t, out, "search")
	assert.NotContains(t, out, "search_args")
}

func TestChatMessageTextHandlesMultimodalParts(t *testing.T) {
	plain := ChatMessage{Role: "user", Content: json.RawMessage(`"hello"`)}
	assert.Equal(t, "hello", plain.Text())

	parts := ChatMessage{Role: "user", Content: json.RawMessage(`[
		{"type": "text", "text": "what is this?"},
		{"type": "image_url", "image_url": {"url": "data:image/png;base64,AAAA"}}
	]`)}
	assert.Equal(t, "what is this?", parts.Text())
}

func TestLastUserTextSkipsAssistantTurns(t *testing.T) {
	req, err := ParseChatRequest([]byte(`{
		"model": "llama",
		"messages": [
			{"role": "system", "content": "be brief"},
			{"role": "user", "content": "first question"},
			{"role": "assistant", "content": "first answer"},
			{"role": "user", "content": "second question"}
		]
	}`))
	require.NoError(t, err)
	assert.Equal(t, "second question", req.LastUserText())
}

func TestAugmentLastUserMessagePreservesOtherFields(t *testing.T) {
	req, err := ParseChatRequest([]byte(`{
		"model": "llama",
		"messages": [
			{"role": "user", "content": "first", "name": "alice"},
			{"role": "assistant", "content": "ok", "tool_calls": [{"id": "call_1"}]},
			{"role": "user", "content": "second", "name": "alice"}
		]
	}`))
	require.NoError(t, err)

	req.AugmentLastUserMessage("augmented prompt")
	body, err := req.BackendBody("backend-model")
	require.NoError(t, err)

	var out struct {
		Messages []map[string]any `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	require.Len(t, out.Messages, 3)

	assert.Equal(t, "first", out.Messages[0]["content"])
	assert.Contains(t, out.Messages[1], "tool_calls")
	assert.Equal(t, "augmented prompt", out.Messages[2]["content"])
	assert.Equal(t, "alice", out.Messages[2]["name"])
}

func TestChunkContentDeltaAndUsage(t *testing.T) {
	var chunk ChatCompletionChunk
	require.NoError(t, json.Unmarshal([]byte(`{
		"id": "c",
		"object": "chat.completion.chunk",
		"choices": [{"delta": {"role": "assistant", "content": "Hel"}}],
		"usage": {"prompt_tokens": 2, "completion_tokens": 1, "total_tokens": 3}
	}`), &chunk))
	assert.Equal(t, "Hel", chunk.ContentDelta())
	require.NotNil(t, chunk.Usage)
	assert.Equal(t, 3, chunk.Usage.TotalTokens)
}
