package models

import (
	"encoding/json"
)

// RerankRequest asks a classification model to score documents against a query.
type RerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      *int     `json:"top_n,omitempty"`

	Raw map[string]any `json:"-"`
}

// ParseRerankRequest decodes a rerank body, keeping the raw map for
// passthrough forwarding.
func ParseRerankRequest(body []byte) (*RerankRequest, error) {
	var req RerankRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, NewValidationError("invalid request body", err)
	}
	if err := json.Unmarshal(body, &req.Raw); err != nil {
		return nil, NewValidationError("invalid request body", err)
	}
	if req.Model == "" {
		return nil, NewValidationError("model is required", nil)
	}
	if req.Query == "" {
		return nil, NewValidationError("query is required", nil)
	}
	if len(req.Documents) == 0 {
		return nil, NewValidationError("documents must not be empty", nil)
	}
	return &req, nil
}

// BackendBody re-encodes the request with the model field rewritten to the
// backend's model name. TEI backends identify the model by URL, so the
// field is dropped for them instead.
func (r *RerankRequest) BackendBody(backendModel string, includeModel bool) ([]byte, error) {
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

// RerankResult is one scored document.
type RerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// RerankResponse is the gateway's rerank reply envelope.
type RerankResponse struct {
	Object string         `json:"object"`
	Model  string         `json:"model"`
	Data   []RerankResult `json:"data"`
	ID     string         `json:"id,omitempty"`
}
