package api

import (
	"time"

	"github.com/pepe57/OpenGateLLM/internal/services/middleware"
	"github.com/pepe57/OpenGateLLM/internal/services/usage"

	"github.com/gofiber/fiber/v2"
)

// UsageHandler serves GET /v1/usage, the caller's own consumption summary.
type UsageHandler struct {
	usage *usage.Service
}

func NewUsageHandler(us *usage.Service) *UsageHandler {
	return &UsageHandler{usage: us}
}

func (h *UsageHandler) Summary(c *fiber.Ctx) error {
	user := middleware.UserFromContext(c)
	days := c.QueryInt("days", 30)
	if days <= 0 {
		days = 30
	}
	since := time.Now().AddDate(0, 0, -days)
	summary, err := h.usage.Summarize(c.Context(), user.KeyID, since)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"object":  "usage.summary",
		"since":   since.UTC().Format(time.RFC3339),
		"summary": summary,
		"budget":  user.Budget,
	})
}
