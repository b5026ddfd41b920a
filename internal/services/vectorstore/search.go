package vectorstore

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/pepe57/OpenGateLLM/internal/models"
)

// rrfK dampens rank contributions in reciprocal rank fusion.
const rrfK = 60

// Search runs a semantic, lexical or hybrid query over one collection's
// chunks. The query vector may be nil for lexical searches.
func (s *Store) Search(ctx context.Context, collectionID string, req *models.SearchRequest, vector []float32, user models.UserInfo) ([]models.SearchResult, error) {
	if _, err := s.GetCollection(ctx, collectionID, user); err != nil {
		return nil, err
	}

	switch req.Method {
	case models.SearchMethodLexical:
		return s.lexical(ctx, collectionID, req)
	case models.SearchMethodSemantic:
		return s.semantic(ctx, collectionID, req, vector)
	case models.SearchMethodHybrid:
		return s.hybrid(ctx, collectionID, req, vector)
	default:
		return nil, models.NewValidationError("unknown search method", nil)
	}
}

func (s *Store) semantic(ctx context.Context, collectionID string, req *models.SearchRequest, vector []float32) ([]models.SearchResult, error) {
	hits, err := s.search(ctx, s.chunksIndex(collectionID), map[string]any{
		"size": req.K,
		"knn": map[string]any{
			"field":          "embedding",
			"query_vector":   vector,
			"k":              req.K,
			"num_candidates": req.K * 10,
		},
	})
	if err != nil {
		return nil, err
	}
	return s.toResults(collectionID, hits, req.ScoreThresh), nil
}

func (s *Store) lexical(ctx context.Context, collectionID string, req *models.SearchRequest) ([]models.SearchResult, error) {
	hits, err := s.search(ctx, s.chunksIndex(collectionID), map[string]any{
		"size":  req.K,
		"query": map[string]any{"match": map[string]any{"content": req.Prompt}},
	})
	if err != nil {
		return nil, err
	}
	return s.toResults(collectionID, hits, req.ScoreThresh), nil
}

// hybrid fuses semantic and lexical rankings with reciprocal rank fusion.
func (s *Store) hybrid(ctx context.Context, collectionID string, req *models.SearchRequest, vector []float32) ([]models.SearchResult, error) {
	semantic, err := s.semantic(ctx, collectionID, req, vector)
	if err != nil {
		return nil, err
	}
	lexical, err := s.lexical(ctx, collectionID, req)
	if err != nil {
		return nil, err
	}

	fused := make(map[string]*models.SearchResult)
	scores := make(map[string]float64)
	for rank, r := range semantic {
		r := r
		fused[r.Chunk.ID] = &r
		scores[r.Chunk.ID] += 1.0 / float64(rrfK+rank+1)
	}
	for rank, r := range lexical {
		r := r
		if _, ok := fused[r.Chunk.ID]; !ok {
			fused[r.Chunk.ID] = &r
		}
		scores[r.Chunk.ID] += 1.0 / float64(rrfK+rank+1)
	}

	out := make([]models.SearchResult, 0, len(fused))
	for id, r := range fused {
		r.Score = scores[id]
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > req.K {
		out = out[:req.K]
	}
	return out, nil
}

func (s *Store) toResults(collectionID string, hits []hit, threshold float64) []models.SearchResult {
	results := make([]models.SearchResult, 0, len(hits))
	for _, h := range hits {
		if threshold > 0 && h.Score < threshold {
			continue
		}
		var doc chunkDoc
		if err := json.Unmarshal(h.Source, &doc); err != nil {
			continue
		}
		results = append(results, models.SearchResult{
			Score: h.Score,
			Chunk: models.Chunk{
				ID:           h.ID,
				DocumentID:   doc.DocumentID,
				CollectionID: collectionID,
				Content:      doc.Content,
				Metadata:     doc.Metadata,
			},
		})
	}
	return results
}
