package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/pepe57/OpenGateLLM/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/google/uuid"
)

// Store keeps collections, documents and their embedded chunks in
// Elasticsearch. Each collection owns one chunk index so vector
// dimensionality stays uniform per index.
type Store struct {
	es     *elasticsearch.Client
	prefix string
}

func New(cfg models.ElasticsearchConfig, prefix string) (*Store, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		APIKey:    cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build elasticsearch client: %w", err)
	}
	return &Store{es: es, prefix: prefix}, nil
}

func (s *Store) collectionsIndex() string { return s.prefix + "_collections" }
func (s *Store) documentsIndex() string   { return s.prefix + "_documents" }
func (s *Store) chunksIndex(collectionID string) string {
	return s.prefix + "_chunks_" + collectionID
}

// Ping checks cluster availability.
func (s *Store) Ping(ctx context.Context) error {
	res, err := s.es.Ping(s.es.Ping.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch ping failed: %s", res.Status())
	}
	return nil
}

type collectionDoc struct {
	Name        string                      `json:"name"`
	Model       string                      `json:"model"`
	Visibility  models.CollectionVisibility `json:"visibility"`
	Description string                      `json:"description,omitempty"`
	OwnerKeyID  uint                        `json:"owner_key_id"`
	VectorSize  int                         `json:"vector_size"`
	CreatedAt   time.Time                   `json:"created_at"`
}

// CreateCollection provisions the chunk index with a dense_vector mapping
// sized for the collection's embedding model.
func (s *Store) CreateCollection(ctx context.Context, req *models.CollectionCreateRequest, ownerKeyID uint, vectorSize int) (*models.Collection, error) {
	id := uuid.NewString()

	mapping := map[string]any{
		"mappings": map[string]any{
			"properties": map[string]any{
				"document_id": map[string]any{"type": "keyword"},
				"content":     map[string]any{"type": "text"},
				"metadata":    map[string]any{"type": "object", "enabled": true},
				"embedding": map[string]any{
					"type":       "dense_vector",
					"dims":       vectorSize,
					"index":      true,
					"similarity": "cosine",
				},
			},
		},
	}
	if err := s.createIndex(ctx, s.chunksIndex(id), mapping); err != nil {
		return nil, err
	}

	doc := collectionDoc{
		Name:        req.Name,
		Model:       req.Model,
		Visibility:  req.Visibility,
		Description: req.Description,
		OwnerKeyID:  ownerKeyID,
		VectorSize:  vectorSize,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.index(ctx, s.collectionsIndex(), id, doc); err != nil {
		return nil, err
	}

	return &models.Collection{
		ID:          id,
		Object:      "collection",
		Name:        doc.Name,
		Model:       doc.Model,
		Visibility:  doc.Visibility,
		Description: doc.Description,
		OwnerKeyID:  ownerKeyID,
		CreatedAt:   doc.CreatedAt,
	}, nil
}

// GetCollection loads one collection and checks read access.
func (s *Store) GetCollection(ctx context.Context, id string, user models.UserInfo) (*models.Collection, error) {
	res, err := s.es.Get(s.collectionsIndex(), id, s.es.Get.WithContext(ctx))
	if err != nil {
		return nil, models.NewInternalError("failed to load collection", err)
	}
	defer res.Body.Close()
	if res.StatusCode == 404 {
		return nil, models.NewNotFoundError("collection not found")
	}
	if res.IsError() {
		return nil, models.NewInternalError(fmt.Sprintf("failed to load collection: %s", res.Status()), nil)
	}

	var envelope struct {
		Source collectionDoc `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return nil, models.NewInternalError("failed to decode collection", err)
	}

	doc := envelope.Source
	if doc.Visibility == models.CollectionPrivate && !user.Master && doc.OwnerKeyID != user.KeyID {
		return nil, models.NewNotFoundError("collection not found")
	}

	return &models.Collection{
		ID:          id,
		Object:      "collection",
		Name:        doc.Name,
		Model:       doc.Model,
		Visibility:  doc.Visibility,
		Description: doc.Description,
		OwnerKeyID:  doc.OwnerKeyID,
		CreatedAt:   doc.CreatedAt,
	}, nil
}

// ListCollections returns the collections the user can read.
func (s *Store) ListCollections(ctx context.Context, user models.UserInfo) (*models.CollectionList, error) {
	query := map[string]any{
		"size": 1000,
		"query": map[string]any{
			"bool": map[string]any{
				"should": []any{
					map[string]any{"term": map[string]any{"visibility": models.CollectionPublic}},
					map[string]any{"term": map[string]any{"owner_key_id": user.KeyID}},
				},
				"minimum_should_match": 1,
			},
		},
	}
	if user.Master {
		query["query"] = map[string]any{"match_all": map[string]any{}}
	}

	hits, err := s.search(ctx, s.collectionsIndex(), query)
	if err != nil {
		return nil, err
	}

	list := &models.CollectionList{Object: "list", Data: make([]models.Collection, 0, len(hits))}
	for _, hit := range hits {
		var doc collectionDoc
		if err := json.Unmarshal(hit.Source, &doc); err != nil {
			continue
		}
		list.Data = append(list.Data, models.Collection{
			ID:          hit.ID,
			Object:      "collection",
			Name:        doc.Name,
			Model:       doc.Model,
			Visibility:  doc.Visibility,
			Description: doc.Description,
			OwnerKeyID:  doc.OwnerKeyID,
			CreatedAt:   doc.CreatedAt,
		})
	}
	return list, nil
}

// DeleteCollection removes the collection, its documents and chunk index.
// Only the owner or the master key may delete.
func (s *Store) DeleteCollection(ctx context.Context, id string, user models.UserInfo) error {
	col, err := s.GetCollection(ctx, id, user)
	if err != nil {
		return err
	}
	if !user.Master && col.OwnerKeyID != user.KeyID {
		return models.NewInsufficientPermissionError("only the owner may delete a collection")
	}

	res, err := s.es.Indices.Delete([]string{s.chunksIndex(id)},
		s.es.Indices.Delete.WithContext(ctx),
		s.es.Indices.Delete.WithIgnoreUnavailable(true))
	if err != nil {
		return models.NewInternalError("failed to delete chunk index", err)
	}
	res.Body.Close()

	if err := s.deleteByQuery(ctx, s.documentsIndex(), map[string]any{
		"query": map[string]any{"term": map[string]any{"collection_id": id}},
	}); err != nil {
		return err
	}

	del, err := s.es.Delete(s.collectionsIndex(), id, s.es.Delete.WithContext(ctx))
	if err != nil {
		return models.NewInternalError("failed to delete collection", err)
	}
	del.Body.Close()
	return nil
}

func (s *Store) createIndex(ctx context.Context, name string, mapping map[string]any) error {
	body, err := json.Marshal(mapping)
	if err != nil {
		return models.NewInternalError("failed to encode index mapping", err)
	}
	res, err := s.es.Indices.Create(name,
		s.es.Indices.Create.WithContext(ctx),
		s.es.Indices.Create.WithBody(bytes.NewReader(body)))
	if err != nil {
		return models.NewInternalError("failed to create index", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		return models.NewInternalError(fmt.Sprintf("failed to create index %s: %s", name, raw), nil)
	}
	return nil
}

func (s *Store) index(ctx context.Context, indexName, id string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return models.NewInternalError("failed to encode document", err)
	}
	req := esapi.IndexRequest{
		Index:      indexName,
		DocumentID: id,
		Body:       bytes.NewReader(body),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, s.es)
	if err != nil {
		return models.NewInternalError("failed to index document", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		return models.NewInternalError(fmt.Sprintf("failed to index into %s: %s", indexName, raw), nil)
	}
	return nil
}

type hit struct {
	ID     string          `json:"_id"`
	Score  float64         `json:"_score"`
	Source json.RawMessage `json:"_source"`
}

func (s *Store) search(ctx context.Context, indexName string, query map[string]any) ([]hit, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, models.NewInternalError("failed to encode query", err)
	}
	res, err := s.es.Search(
		s.es.Search.WithContext(ctx),
		s.es.Search.WithIndex(indexName),
		s.es.Search.WithBody(bytes.NewReader(body)),
		s.es.Search.WithIgnoreUnavailable(true))
	if err != nil {
		return nil, models.NewInternalError("search failed", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		return nil, models.NewInternalError(fmt.Sprintf("search failed: %s", raw), nil)
	}

	var envelope struct {
		Hits struct {
			Hits []hit `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return nil, models.NewInternalError("failed to decode search reply", err)
	}
	return envelope.Hits.Hits, nil
}

func (s *Store) deleteByQuery(ctx context.Context, indexName string, query map[string]any) error {
	body, err := json.Marshal(query)
	if err != nil {
		return models.NewInternalError("failed to encode query", err)
	}
	res, err := s.es.DeleteByQuery([]string{indexName}, bytes.NewReader(body),
		s.es.DeleteByQuery.WithContext(ctx))
	if err != nil {
		return models.NewInternalError("delete by query failed", err)
	}
	res.Body.Close()
	return nil
}
