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

// RerankHandler serves /v1/rerank.
type RerankHandler struct {
	resolver  *Resolver
	limiter   *limiter.Service
	forwarder *providers.Forwarder
	usage     *usage.Service
	tokens    providers.TokenCounter
	collector *metrics.Collector
}

func NewRerankHandler(resolver *Resolver, lim *limiter.Service, fwd *providers.Forwarder, us *usage.Service, tokens providers.TokenCounter, collector *metrics.Collector) *RerankHandler {
	return &RerankHandler{
		resolver:  resolver,
		limiter:   lim,
		forwarder: fwd,
		usage:     us,
		tokens:    tokens,
		collector: collector,
	}
}

func (h *RerankHandler) Rerank(c *fiber.Ctx) error {
	user := middleware.UserFromContext(c)
	req, err := models.ParseRerankRequest(c.Body())
	if err != nil {
		return err
	}

	ctx := c.Context()
	promptTokens := h.tokens.Count(req.Query + "\n" + strings.Join(req.Documents, "\n"))
	router, backend, err := resolveWithLimits(ctx, h.resolver, h.limiter, models.EndpointRerank, req.Model, user, int64(promptTokens))
	if err != nil {
		return err
	}

	body, err := req.BackendBody(backend.Provider.ModelName, backend.IncludesModelField())
	if err != nil {
		return err
	}

	requestID := "rerank-" + uuid.NewString()
	start := time.Now()
	h.collector.RequestStarted(router.Name)
	defer h.collector.RequestFinished(router.Name)

	result, err := h.forwarder.ForwardJSON(ctx, backend, *router, models.EndpointRerank, body, requestID, promptTokens)
	if err != nil {
		h.collector.ObserveRequest(router.Name, models.EndpointRerank, statusOf(err), time.Since(start))
		return err
	}

	go trackUsage(h.usage, usage.Record{
		RequestID: requestID,
		User:      user,
		Router:    *router,
		Endpoint:  models.EndpointRerank,
		Usage:     result.Usage,
		Status:    fiber.StatusOK,
		Duration:  result.Duration,
	})
	h.collector.ObserveRequest(router.Name, models.EndpointRerank, fiber.StatusOK, result.Duration)
	h.collector.ObserveTokens(router.Name, result.Usage.PromptTokens, result.Usage.CompletionTokens)

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(result.Body)
}
