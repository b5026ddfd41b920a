package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// CollectionVisibility scopes who can read a collection.
type CollectionVisibility string

const (
	CollectionPrivate CollectionVisibility = "private"
	CollectionPublic  CollectionVisibility = "public"
)

// Collection groups documents embedded with a single model so every vector
// in it has the same dimensionality.
type Collection struct {
	ID          string               `json:"id"`
	Object      string               `json:"object"`
	Name        string               `json:"name"`
	Model       string               `json:"model"`
	Visibility  CollectionVisibility `json:"visibility"`
	Description string               `json:"description,omitempty"`
	OwnerKeyID  uint                 `json:"-"`
	Documents   int                  `json:"documents"`
	CreatedAt   time.Time            `json:"created_at"`
}

// CollectionCreateRequest creates an empty collection bound to an
// embedding model.
type CollectionCreateRequest struct {
	Name        string               `json:"name"`
	Model       string               `json:"model"`
	Visibility  CollectionVisibility `json:"visibility,omitempty"`
	Description string               `json:"description,omitempty"`
}

// ParseCollectionCreateRequest decodes and validates a collection body.
func ParseCollectionCreateRequest(body []byte) (*CollectionCreateRequest, error) {
	var req CollectionCreateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, NewValidationError("invalid request body", err)
	}
	if req.Name == "" {
		return nil, NewValidationError("name is required", nil)
	}
	if req.Model == "" {
		return nil, NewValidationError("model is required", nil)
	}
	if req.Visibility == "" {
		req.Visibility = CollectionPrivate
	}
	switch req.Visibility {
	case CollectionPrivate, CollectionPublic:
	default:
		return nil, NewValidationError(fmt.Sprintf("unknown visibility %q", req.Visibility), nil)
	}
	return &req, nil
}

// CollectionList is the list envelope for /v1/collections.
type CollectionList struct {
	Object string       `json:"object"`
	Data   []Collection `json:"data"`
}

// Document is an uploaded text split into embedded chunks.
type Document struct {
	ID           string    `json:"id"`
	Object       string    `json:"object"`
	CollectionID string    `json:"collection_id"`
	Name         string    `json:"name"`
	Chunks       int       `json:"chunks"`
	CreatedAt    time.Time `json:"created_at"`
}

// DocumentCreateRequest uploads raw text to a collection. The gateway splits
// it into chunks, embeds them and indexes the vectors.
type DocumentCreateRequest struct {
	Collection string `json:"collection"`
	Name       string `json:"name"`
	Text       string `json:"text"`
	ChunkSize  int    `json:"chunk_size,omitempty"`
	Overlap    int    `json:"chunk_overlap,omitempty"`
}

// ParseDocumentCreateRequest decodes and validates a document body.
func ParseDocumentCreateRequest(body []byte) (*DocumentCreateRequest, error) {
	var req DocumentCreateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, NewValidationError("invalid request body", err)
	}
	if req.Collection == "" {
		return nil, NewValidationError("collection is required", nil)
	}
	if req.Name == "" {
		return nil, NewValidationError("name is required", nil)
	}
	if req.Text == "" {
		return nil, NewValidationError("text is required", nil)
	}
	if req.ChunkSize <= 0 {
		req.ChunkSize = 1024
	}
	if req.Overlap < 0 || req.Overlap >= req.ChunkSize {
		return nil, NewValidationError("chunk_overlap must be smaller than chunk_size", nil)
	}
	return &req, nil
}

// DocumentList is the list envelope for /v1/documents.
type DocumentList struct {
	Object string     `json:"object"`
	Data   []Document `json:"data"`
}

// Chunk is one embedded slice of a document as stored in the vector index.
type Chunk struct {
	ID           string         `json:"id"`
	DocumentID   string         `json:"document_id"`
	CollectionID string         `json:"collection_id"`
	Content      string         `json:"content"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}
