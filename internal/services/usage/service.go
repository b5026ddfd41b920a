package usage

import (
	"context"
	"time"

	"github.com/pepe57/OpenGateLLM/internal/models"
	"github.com/pepe57/OpenGateLLM/internal/services/apikey"
	"github.com/pepe57/OpenGateLLM/internal/services/database"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

// Record describes one completed request for accounting.
type Record struct {
	RequestID string
	User      models.UserInfo
	Router    models.Router
	Endpoint  string
	Usage     models.TokenUsage
	Status    int
	Duration  time.Duration
	TTFT      *time.Duration
	Stream    bool
}

// Service persists usage rows and charges costed requests against the
// key's budget.
type Service struct {
	db   *database.DB
	keys *apikey.Service
}

func NewService(db *database.DB, keys *apikey.Service) *Service {
	return &Service{db: db, keys: keys}
}

// Track writes the usage row and applies the budget charge. Accounting is
// asynchronous to the request path, so failures are logged and dropped.
func (s *Service) Track(ctx context.Context, rec Record) {
	costs := models.ModelCosts{
		PromptTokens:     rec.Router.CostPromptTokens,
		CompletionTokens: rec.Router.CostCompletionTokens,
	}
	cost := costs.Cost(rec.Usage)

	row := models.Usage{
		RequestID:        rec.RequestID,
		KeyID:            rec.User.KeyID,
		RouterID:         rec.Router.ID,
		Model:            rec.Router.Name,
		Endpoint:         rec.Endpoint,
		PromptTokens:     rec.Usage.PromptTokens,
		CompletionTokens: rec.Usage.CompletionTokens,
		TotalTokens:      rec.Usage.TotalTokens,
		Cost:             cost,
		Status:           rec.Status,
		DurationMS:       rec.Duration.Milliseconds(),
		Stream:           rec.Stream,
	}
	if rec.TTFT != nil {
		ms := rec.TTFT.Milliseconds()
		row.TTFTMS = &ms
	}

	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		fiberlog.Errorf("failed to record usage for request %s: %v", rec.RequestID, err)
	}

	if cost > 0 && !rec.User.Master {
		if err := s.keys.Charge(ctx, rec.User.KeyID, cost); err != nil {
			fiberlog.Errorf("failed to charge key %d for request %s: %v", rec.User.KeyID, rec.RequestID, err)
		}
	}
}

// Summary aggregates a key's spend and token consumption since a point in
// time.
type Summary struct {
	Requests         int64   `json:"requests"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	Cost             float64 `json:"cost"`
}

func (s *Service) Summarize(ctx context.Context, keyID uint, since time.Time) (*Summary, error) {
	var out Summary
	err := s.db.WithContext(ctx).
		Model(&models.Usage{}).
		Select("COUNT(*) AS requests, COALESCE(SUM(prompt_tokens),0) AS prompt_tokens, COALESCE(SUM(completion_tokens),0) AS completion_tokens, COALESCE(SUM(cost),0) AS cost").
		Where("key_id = ? AND created_at >= ?", keyID, since).
		Scan(&out).Error
	if err != nil {
		return nil, models.NewInternalError("failed to summarize usage", err)
	}
	return &out, nil
}
