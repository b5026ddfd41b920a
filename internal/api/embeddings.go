package api

import (
	"strings"
	"time"

	"github.com/pepe57/OpenGateLLM/internal/models"
	"github.com/pepe57/OpenGateLLM/internal/services/limiter"
	"github.com/pepe57/OpenGateLLM/internal/services/metrics"
	"github.com/pepe57/OpenGateLLM/internal/services/middleware"
	"github.com/pepe57/OpenGateLLM/internal/services/providers"
	"github.com/pepe57/OpenGateLLM/internal/services/usage"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// EmbeddingsHandler serves /v1/embeddings.
type EmbeddingsHandler struct {
	resolver  *Resolver
	limiter   *limiter.Service
	forwarder *providers.Forwarder
	usage     *usage.Service
	tokens    providers.TokenCounter
	collector *metrics.Collector
}

func NewEmbeddingsHandler(resolver *Resolver, lim *limiter.Service, fwd *providers.Forwarder, us *usage.Service, tokens providers.TokenCounter, collector *metrics.Collector) *EmbeddingsHandler {
	return &EmbeddingsHandler{
		resolver:  resolver,
		limiter:   lim,
		forwarder: fwd,
		usage:     us,
		tokens:    tokens,
		collector: collector,
	}
}

func (h *EmbeddingsHandler) Embeddings(c *fiber.Ctx) error {
	user := middleware.UserFromContext(c)
	req, err := models.ParseEmbeddingsRequest(c.Body())
	if err != nil {
		return err
	}

	ctx := c.Context()
	promptTokens := h.tokens.Count(strings.Join(req.Texts(), "\n"))
	router, backend, err := resolveWithLimits(ctx, h.resolver, h.limiter, models.EndpointEmbeddings, req.Model, user, int64(promptTokens))
	if err != nil {
		return err
	}

	body, err := req.BackendBody(backend.Provider.ModelName, backend.IncludesModelField())
	if err != nil {
		return err
	}

	requestID := "embd-" + uuid.NewString()
	start := time.Now()
	h.collector.RequestStarted(router.Name)
	defer h.collector.RequestFinished(router.Name)

	result, err := h.forwarder.ForwardJSON(ctx, backend, *router, models.EndpointEmbeddings, body, requestID, promptTokens)
	if err != nil {
		h.collector.ObserveRequest(router.Name, models.EndpointEmbeddings, statusOf(err), time.Since(start))
		return err
	}

	go trackUsage(h.usage, usage.Record{
		RequestID: requestID,
		User:      user,
		Router:    *router,
		Endpoint:  models.EndpointEmbeddings,
		Usage:     result.Usage,
		Status:    fiber.StatusOK,
		Duration:  result.Duration,
	})
	h.collector.ObserveRequest(router.Name, models.EndpointEmbeddings, fiber.StatusOK, result.Duration)
	h.collector.ObserveTokens(router.Name, result.Usage.PromptTokens, result.Usage.CompletionTokens)

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(result.Body)
}
