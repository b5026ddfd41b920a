package models

import (
	"encoding/json"
	"fmt"
)

// SearchMethod selects how collection chunks are matched against a query.
type SearchMethod string

const (
	SearchMethodSemantic SearchMethod = "semantic"
	SearchMethodLexical  SearchMethod = "lexical"
	SearchMethodHybrid   SearchMethod = "hybrid"
)

// SearchRequest queries collections, optionally augmented with web results.
type SearchRequest struct {
	Prompt      string       `json:"prompt"`
	Collections []string     `json:"collections,omitempty"`
	K           int          `json:"k,omitempty"`
	Method      SearchMethod `json:"method,omitempty"`
	ScoreThresh float64      `json:"score_threshold,omitempty"`
	WebSearch   bool         `json:"web_search,omitempty"`
}

// ParseSearchRequest decodes and validates a search body.
func ParseSearchRequest(body []byte) (*SearchRequest, error) {
	var req SearchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, NewValidationError("invalid request body", err)
	}
	if req.Prompt == "" {
		return nil, NewValidationError("prompt is required", nil)
	}
	if req.K <= 0 {
		req.K = 4
	}
	if req.Method == "" {
		req.Method = SearchMethodSemantic
	}
	switch req.Method {
	case SearchMethodSemantic, SearchMethodLexical, SearchMethodHybrid:
	default:
		return nil, NewValidationError(fmt.Sprintf("unknown search method %q", req.Method), nil)
	}
	return &req, nil
}

// SearchResult is one matched chunk with its relevance score.
type SearchResult struct {
	Score float64 `json:"score"`
	Chunk Chunk   `json:"chunk"`
}

// SearchResponse is the gateway's search reply envelope.
type SearchResponse struct {
	Object string         `json:"object"`
	Data   []SearchResult `json:"data"`
}

// WebSearchResult is one page fetched from a web search engine before it is
// chunked and scored.
type WebSearchResult struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
}
