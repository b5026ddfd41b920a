package api

import (
	"context"
	"time"

	"github.com/pepe57/OpenGateLLM/internal/services/database"
	"github.com/pepe57/OpenGateLLM/internal/services/vectorstore"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// HealthHandler reports the gateway's dependency health.
type HealthHandler struct {
	db    *database.DB
	redis redis.UniversalClient
	store *vectorstore.Store
}

func NewHealthHandler(db *database.DB, rdb redis.UniversalClient, store *vectorstore.Store) *HealthHandler {
	return &HealthHandler{db: db, redis: rdb, store: store}
}

// HealthCheck returns the health of the service and its dependencies.
// Optional dependencies that are not configured are not checked.
func (h *HealthHandler) HealthCheck(c *fiber.Ctx) error {
	checks := fiber.Map{
		"postgres": h.checkPostgres(),
		"redis":    h.checkRedis(),
	}
	if h.store != nil {
		checks["elasticsearch"] = h.checkElasticsearch()
	}

	overallStatus := "healthy"
	statusCode := fiber.StatusOK
	for _, status := range checks {
		if status != "healthy" {
			overallStatus = "degraded"
			statusCode = fiber.StatusServiceUnavailable
			break
		}
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

func (h *HealthHandler) checkPostgres() string {
	if err := h.db.Ping(); err != nil {
		return "unhealthy"
	}
	return "healthy"
}

func (h *HealthHandler) checkRedis() string {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := h.redis.Ping(ctx).Err(); err != nil {
		return "unhealthy"
	}
	return "healthy"
}

func (h *HealthHandler) checkElasticsearch() string {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		return "unhealthy"
	}
	return "healthy"
}
