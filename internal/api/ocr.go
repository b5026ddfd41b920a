package api

import (
	"encoding/json"
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

// OCRHandler serves /v1/ocr by transcribing each page through a vision
// chat completion.
type OCRHandler struct {
	resolver  *Resolver
	limiter   *limiter.Service
	forwarder *providers.Forwarder
	usage     *usage.Service
	tokens    providers.TokenCounter
	collector *metrics.Collector
}

func NewOCRHandler(resolver *Resolver, lim *limiter.Service, fwd *providers.Forwarder, us *usage.Service, tokens providers.TokenCounter, collector *metrics.Collector) *OCRHandler {
	return &OCRHandler{
		resolver:  resolver,
		limiter:   lim,
		forwarder: fwd,
		usage:     us,
		tokens:    tokens,
		collector: collector,
	}
}

func (h *OCRHandler) OCR(c *fiber.Ctx) error {
	user := middleware.UserFromContext(c)
	req, err := models.ParseOCRRequest(c.Body())
	if err != nil {
		return err
	}

	ctx := c.Context()
	promptTokens := h.tokens.Count(req.Prompt) * len(req.Pages)
	router, backend, err := resolveWithLimits(ctx, h.resolver, h.limiter, models.EndpointOCR, req.Model, user, int64(promptTokens))
	if err != nil {
		return err
	}

	requestID := "ocr-" + uuid.NewString()
	start := time.Now()
	h.collector.RequestStarted(router.Name)
	defer h.collector.RequestFinished(router.Name)

	pages := make([]models.OCRPage, 0, len(req.Pages))
	var total models.TokenUsage
	for i, page := range req.Pages {
		body, err := req.ChatBody(backend.Provider.ModelName, page)
		if err != nil {
			return err
		}
		chatReq, err := models.ParseChatRequest(body)
		if err != nil {
			return err
		}
		result, err := h.forwarder.ForwardChat(ctx, backend, *router, chatReq, requestID)
		if err != nil {
			h.collector.ObserveRequest(router.Name, models.EndpointOCR, statusOf(err), time.Since(start))
			return err
		}
		pages = append(pages, models.OCRPage{Page: i, Content: chatContent(result.Body)})
		total.PromptTokens += result.Usage.PromptTokens
		total.CompletionTokens += result.Usage.CompletionTokens
		total.TotalTokens += result.Usage.TotalTokens
	}
	duration := time.Since(start)

	go trackUsage(h.usage, usage.Record{
		RequestID: requestID,
		User:      user,
		Router:    *router,
		Endpoint:  models.EndpointOCR,
		Usage:     total,
		Status:    fiber.StatusOK,
		Duration:  duration,
	})
	h.collector.ObserveRequest(router.Name, models.EndpointOCR, fiber.StatusOK, duration)
	h.collector.ObserveTokens(router.Name, total.PromptTokens, total.CompletionTokens)

	return c.JSON(models.OCRResponse{
		Object: "list",
		Model:  router.Name,
		ID:     requestID,
		Data:   pages,
		Usage:  &total,
	})
}

// chatContent pulls the first choice's message content out of a completion
// reply. Pages with an empty reply transcribe to an empty string.
func chatContent(body []byte) string {
	var reply struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &reply); err != nil || len(reply.Choices) == 0 {
		return ""
	}
	return reply.Choices[0].Message.Content
}
