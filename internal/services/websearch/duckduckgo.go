package websearch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/pepe57/OpenGateLLM/internal/models"

	"github.com/PuerkitoBio/goquery"
)

const duckduckgoEndpoint = "https://html.duckduckgo.com/html/"

// DuckDuckGo scrapes the HTML results page. No API key required, which
// makes it the default engine for local setups.
type DuckDuckGo struct {
	client *http.Client
}

func (d *DuckDuckGo) Search(ctx context.Context, query string, limit int) ([]models.WebSearchResult, error) {
	params := url.Values{}
	params.Set("q", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, duckduckgoEndpoint,
		strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; opengatellm/1.0)")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo search failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo search returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse duckduckgo results: %w", err)
	}

	var results []models.WebSearchResult
	doc.Find(".result").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		link := sel.Find(".result__a")
		href, ok := link.Attr("href")
		if !ok {
			return true
		}
		results = append(results, models.WebSearchResult{
			URL:     cleanRedirect(href),
			Title:   strings.TrimSpace(link.Text()),
			Content: strings.TrimSpace(sel.Find(".result__snippet").Text()),
		})
		return len(results) < limit
	})
	return results, nil
}

// cleanRedirect unwraps the uddg redirect parameter DuckDuckGo wraps
// result links in.
func cleanRedirect(href string) string {
	parsed, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := parsed.Query().Get("uddg"); target != "" {
		if decoded, err := url.QueryUnescape(target); err == nil {
			return decoded
		}
	}
	return href
}
