package vectorstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pepe57/OpenGateLLM/internal/models"

	"github.com/google/uuid"
)

type documentDoc struct {
	CollectionID string    `json:"collection_id"`
	Name         string    `json:"name"`
	Chunks       int       `json:"chunks"`
	OwnerKeyID   uint      `json:"owner_key_id"`
	CreatedAt    time.Time `json:"created_at"`
}

type chunkDoc struct {
	DocumentID string         `json:"document_id"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Embedding  []float32      `json:"embedding"`
}

// EmbeddedChunk pairs a chunk's text with its vector before indexing.
type EmbeddedChunk struct {
	Content   string
	Metadata  map[string]any
	Embedding []float32
}

// AddDocument indexes a document's embedded chunks into a collection.
func (s *Store) AddDocument(ctx context.Context, collectionID, name string, chunks []EmbeddedChunk, user models.UserInfo) (*models.Document, error) {
	if _, err := s.GetCollection(ctx, collectionID, user); err != nil {
		return nil, err
	}

	docID := uuid.NewString()
	for _, chunk := range chunks {
		entry := chunkDoc{
			DocumentID: docID,
			Content:    chunk.Content,
			Metadata:   chunk.Metadata,
			Embedding:  chunk.Embedding,
		}
		chunkID := uuid.NewString()
		if err := s.index(ctx, s.chunksIndex(collectionID), chunkID, entry); err != nil {
			return nil, err
		}
	}

	doc := documentDoc{
		CollectionID: collectionID,
		Name:         name,
		Chunks:       len(chunks),
		OwnerKeyID:   user.KeyID,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.index(ctx, s.documentsIndex(), docID, doc); err != nil {
		return nil, err
	}

	return &models.Document{
		ID:           docID,
		Object:       "document",
		CollectionID: collectionID,
		Name:         name,
		Chunks:       len(chunks),
		CreatedAt:    doc.CreatedAt,
	}, nil
}

// ListDocuments lists a collection's documents.
func (s *Store) ListDocuments(ctx context.Context, collectionID string, user models.UserInfo) (*models.DocumentList, error) {
	if _, err := s.GetCollection(ctx, collectionID, user); err != nil {
		return nil, err
	}

	hits, err := s.search(ctx, s.documentsIndex(), map[string]any{
		"size":  1000,
		"query": map[string]any{"term": map[string]any{"collection_id": collectionID}},
	})
	if err != nil {
		return nil, err
	}

	list := &models.DocumentList{Object: "list", Data: make([]models.Document, 0, len(hits))}
	for _, h := range hits {
		var doc documentDoc
		if err := json.Unmarshal(h.Source, &doc); err != nil {
			continue
		}
		list.Data = append(list.Data, models.Document{
			ID:           h.ID,
			Object:       "document",
			CollectionID: doc.CollectionID,
			Name:         doc.Name,
			Chunks:       doc.Chunks,
			CreatedAt:    doc.CreatedAt,
		})
	}
	return list, nil
}

// DeleteDocument removes a document and its chunks.
func (s *Store) DeleteDocument(ctx context.Context, collectionID, documentID string, user models.UserInfo) error {
	col, err := s.GetCollection(ctx, collectionID, user)
	if err != nil {
		return err
	}
	if !user.Master && col.OwnerKeyID != user.KeyID {
		return models.NewInsufficientPermissionError("only the owner may delete a document")
	}

	if err := s.deleteByQuery(ctx, s.chunksIndex(collectionID), map[string]any{
		"query": map[string]any{"term": map[string]any{"document_id": documentID}},
	}); err != nil {
		return err
	}
	res, err := s.es.Delete(s.documentsIndex(), documentID, s.es.Delete.WithContext(ctx))
	if err != nil {
		return models.NewInternalError("failed to delete document", err)
	}
	defer res.Body.Close()
	if res.StatusCode == 404 {
		return models.NewNotFoundError("document not found")
	}
	return nil
}
