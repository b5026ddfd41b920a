package models

import (
	"encoding/json"
)

// EmbeddingsRequest is a parsed embeddings payload. Input may be a string,
// a list of strings or a list of token arrays, so it stays raw.
type EmbeddingsRequest struct {
	Model string          `json:"model"`
	Input json.RawMessage `json:"input"`

	Raw map[string]any `json:"-"`
}

// ParseEmbeddingsRequest decodes an embeddings body, keeping the raw map
// for passthrough forwarding.
func ParseEmbeddingsRequest(body []byte) (*EmbeddingsRequest, error) {
	var req EmbeddingsRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, NewValidationError("invalid request body", err)
	}
	if err := json.Unmarshal(body, &req.Raw); err != nil {
		return nil, NewValidationError("invalid request body", err)
	}
	if req.Model == "" {
		return nil, NewValidationError("model is required", nil)
	}
	if len(req.Input) == 0 || string(req.Input) == "null" {
		return nil, NewValidationError("input is required", nil)
	}
	return &req, nil
}

// Texts returns the string inputs for token counting. Token array inputs
// yield no text.
func (r *EmbeddingsRequest) Texts() []string {
	var s string
	if err := json.Unmarshal(r.Input, &s); err == nil {
		return []string{s}
	}
	var list []string
	if err := json.Unmarshal(r.Input, &list); err == nil {
		return list
	}
	return nil
}

// BackendBody re-encodes the request with the model field rewritten to the
// backend's model name. TEI backends serve a single model and reject the
// field, so includeModel strips it instead.
func (r *EmbeddingsRequest) BackendBody(backendModel string, includeModel bool) ([]byte, error) {
	if includeModel {
		r.Raw["model"] = backendModel
	} else {
		delete(r.Raw, "model")
	}
	body, err := json.Marshal(r.Raw)
	if err != nil {
		return nil, NewInternalError("failed to encode request body", err)
	}
	return body, nil
}

// EmbeddingsResponse is the subset of an embeddings reply the gateway reads
// for vector storage and probing.
type EmbeddingsResponse struct {
	Object string `json:"object"`
	Data   []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Model string      `json:"model"`
	Usage *TokenUsage `json:"usage,omitempty"`
}
