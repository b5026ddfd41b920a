package websearch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pepe57/OpenGateLLM/internal/models"
)

// Engine fetches web results to augment collection searches.
type Engine interface {
	Search(ctx context.Context, query string, limit int) ([]models.WebSearchResult, error)
}

// New builds the engine named in the dependency config.
func New(cfg *models.WebSearchConfig) (Engine, error) {
	client := &http.Client{Timeout: 15 * time.Second}
	switch cfg.Engine {
	case models.WebSearchBrave:
		return &Brave{client: client, apiKey: cfg.APIKey}, nil
	case models.WebSearchDuckDuckGo:
		return &DuckDuckGo{client: client}, nil
	default:
		return nil, fmt.Errorf("unknown web search engine %q", cfg.Engine)
	}
}
