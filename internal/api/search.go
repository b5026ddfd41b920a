package api

import (
	"context"
	"sort"

	"github.com/pepe57/OpenGateLLM/internal/models"
	"github.com/pepe57/OpenGateLLM/internal/services/middleware"
	"github.com/pepe57/OpenGateLLM/internal/services/vectorstore"
	"github.com/pepe57/OpenGateLLM/internal/services/websearch"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

// Searcher retrieves chunks from collections and, optionally, snippets from
// a web search engine. The search endpoint and chat retrieval share it.
type Searcher struct {
	store    *vectorstore.Store
	web      websearch.Engine
	embedder *Embedder
}

func NewSearcher(store *vectorstore.Store, web websearch.Engine, embedder *Embedder) *Searcher {
	return &Searcher{store: store, web: web, embedder: embedder}
}

// Search runs the query against every requested collection and merges the
// results by score. Web snippets are appended after the ranked chunks.
func (s *Searcher) Search(ctx context.Context, req *models.SearchRequest, user models.UserInfo) ([]models.SearchResult, error) {
	if len(req.Collections) == 0 && !req.WebSearch {
		return nil, models.NewValidationError("at least one collection or web_search is required", nil)
	}

	var results []models.SearchResult
	vectors := map[string][]float32{}
	for _, collectionID := range req.Collections {
		collection, err := s.store.GetCollection(ctx, collectionID, user)
		if err != nil {
			return nil, err
		}
		var vector []float32
		if req.Method != models.SearchMethodLexical {
			if vector = vectors[collection.Model]; vector == nil {
				embedded, err := s.embedder.Embed(ctx, collection.Model, []string{req.Prompt}, user)
				if err != nil {
					return nil, err
				}
				vector = embedded.Vectors[0]
				vectors[collection.Model] = vector
			}
		}
		matched, err := s.store.Search(ctx, collection.ID, req, vector, user)
		if err != nil {
			return nil, err
		}
		results = append(results, matched...)
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > req.K {
		results = results[:req.K]
	}

	if req.WebSearch {
		results = append(results, s.webResults(ctx, req)...)
	}
	return results, nil
}

// webResults fetches snippets from the configured engine. Web search is
// best effort, a failed fetch degrades to collection results only.
func (s *Searcher) webResults(ctx context.Context, req *models.SearchRequest) []models.SearchResult {
	if s.web == nil {
		return nil
	}
	pages, err := s.web.Search(ctx, req.Prompt, req.K)
	if err != nil {
		fiberlog.Warnf("web search failed: %v", err)
		return nil
	}
	results := make([]models.SearchResult, 0, len(pages))
	for _, page := range pages {
		results = append(results, models.SearchResult{
			Chunk: models.Chunk{
				Content:  page.Content,
				Metadata: map[string]any{"url": page.URL, "title": page.Title},
			},
		})
	}
	return results
}

// SearchHandler serves /v1/search.
type SearchHandler struct {
	searcher *Searcher
}

func NewSearchHandler(searcher *Searcher) *SearchHandler {
	return &SearchHandler{searcher: searcher}
}

func (h *SearchHandler) Search(c *fiber.Ctx) error {
	user := middleware.UserFromContext(c)
	req, err := models.ParseSearchRequest(c.Body())
	if err != nil {
		return err
	}
	results, err := h.searcher.Search(c.Context(), req, user)
	if err != nil {
		return err
	}
	return c.JSON(models.SearchResponse{Object: "list", Data: results})
}
