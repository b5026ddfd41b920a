package api

import (
	"bufio"
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/pepe57/OpenGateLLM/internal/models"
	"github.com/pepe57/OpenGateLLM/internal/services/limiter"
	"github.com/pepe57/OpenGateLLM/internal/services/metrics"
	"github.com/pepe57/OpenGateLLM/internal/services/middleware"
	"github.com/pepe57/OpenGateLLM/internal/services/providers"
	"github.com/pepe57/OpenGateLLM/internal/services/usage"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
)

// ChatHandler serves /v1/chat/completions.
type ChatHandler struct {
	resolver  *Resolver
	limiter   *limiter.Service
	forwarder *providers.Forwarder
	usage     *usage.Service
	tokens    providers.TokenCounter
	collector *metrics.Collector
	searcher  *Searcher
}

func NewChatHandler(resolver *Resolver, lim *limiter.Service, fwd *providers.Forwarder, us *usage.Service, tokens providers.TokenCounter, collector *metrics.Collector, searcher *Searcher) *ChatHandler {
	return &ChatHandler{
		resolver:  resolver,
		limiter:   lim,
		forwarder: fwd,
		usage:     us,
		tokens:    tokens,
		collector: collector,
		searcher:  searcher,
	}
}

// ChatCompletion forwards a chat completion, streaming when requested.
func (h *ChatHandler) ChatCompletion(c *fiber.Ctx) error {
	user := middleware.UserFromContext(c)
	req, err := models.ParseChatRequest(c.Body())
	if err != nil {
		return err
	}

	ctx := c.Context()
	if req.Search {
		if err := h.retrieve(ctx, req, user); err != nil {
			return err
		}
	}
	router, backend, err := h.prepare(ctx, req, user)
	if err != nil {
		return err
	}

	requestID := "chatcmpl-" + uuid.NewString()
	if req.Stream {
		return h.stream(c, router, backend, req, user, requestID)
	}

	start := time.Now()
	h.collector.RequestStarted(router.Name)
	defer h.collector.RequestFinished(router.Name)

	result, err := h.forwarder.ForwardChat(ctx, backend, *router, req, requestID)
	if err != nil {
		h.collector.ObserveRequest(router.Name, models.EndpointChatCompletions, statusOf(err), time.Since(start))
		return err
	}

	h.account(usage.Record{
		RequestID: requestID,
		User:      user,
		Router:    *router,
		Endpoint:  models.EndpointChatCompletions,
		Usage:     result.Usage,
		Status:    fiber.StatusOK,
		Duration:  result.Duration,
	})
	h.collector.ObserveRequest(router.Name, models.EndpointChatCompletions, fiber.StatusOK, result.Duration)
	h.collector.ObserveTokens(router.Name, result.Usage.PromptTokens, result.Usage.CompletionTokens)

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(result.Body)
}

// retrieve rewrites the last user message with chunks matched against it,
// so the backend answers from the caller's collections.
func (h *ChatHandler) retrieve(ctx context.Context, req *models.ChatRequest, user models.UserInfo) error {
	if h.searcher == nil {
		return models.NewValidationError("search is not available on this deployment", nil)
	}
	prompt := req.LastUserText()
	if prompt == "" {
		return models.NewValidationError("search requires a user message", nil)
	}

	searchReq := models.SearchRequest{Prompt: prompt, K: 4, Method: models.SearchMethodSemantic}
	if req.SearchArgs != nil {
		searchReq = *req.SearchArgs
		searchReq.Prompt = prompt
		if searchReq.K <= 0 {
			searchReq.K = 4
		}
		if searchReq.Method == "" {
			searchReq.Method = models.SearchMethodSemantic
		}
	}

	results, err := h.searcher.Search(ctx, &searchReq, user)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("Use the following context to answer the question.\n\nContext:\n")
	for _, r := range results {
		b.WriteString(r.Chunk.Content)
		b.WriteString("\n---\n")
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(prompt)
	req.AugmentLastUserMessage(b.String())
	return nil
}

func (h *ChatHandler) prepare(ctx context.Context, req *models.ChatRequest, user models.UserInfo) (*models.Router, *providers.Backend, error) {
	promptTokens := h.tokens.Count(req.PromptText())
	return resolveWithLimits(ctx, h.resolver, h.limiter, models.EndpointChatCompletions, req.Model, user, int64(promptTokens))
}

func (h *ChatHandler) stream(c *fiber.Ctx, router *models.Router, backend *providers.Backend, req *models.ChatRequest, user models.UserInfo, requestID string) error {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	h.collector.RequestStarted(router.Name)
	start := time.Now()

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer h.collector.RequestFinished(router.Name)

		ctx, cancel := context.WithTimeout(context.Background(), backend.Provider.Timeout())
		defer cancel()

		result, err := h.forwarder.ForwardChatStream(ctx, backend, *router, req, requestID, w)
		if err != nil {
			h.collector.ObserveRequest(router.Name, models.EndpointChatCompletions, statusOf(err), time.Since(start))
			writeStreamError(w, err)
			return
		}

		if result.TTFT != nil {
			h.collector.ObserveTTFT(router.Name, *result.TTFT)
		}
		h.collector.ObserveRequest(router.Name, models.EndpointChatCompletions, fiber.StatusOK, result.Duration)
		h.collector.ObserveTokens(router.Name, result.Usage.PromptTokens, result.Usage.CompletionTokens)
		h.account(usage.Record{
			RequestID: requestID,
			User:      user,
			Router:    *router,
			Endpoint:  models.EndpointChatCompletions,
			Usage:     result.Usage,
			Status:    fiber.StatusOK,
			Duration:  result.Duration,
			TTFT:      result.TTFT,
			Stream:    true,
		})
	})
	return nil
}

func (h *ChatHandler) account(rec usage.Record) {
	go trackUsage(h.usage, rec)
}

// writeStreamError emits an SSE error event. Headers are already sent at
// this point, so the status line cannot change anymore.
func writeStreamError(w *bufio.Writer, err error) {
	appErr := models.SanitizeError(err)
	payload, marshalErr := json.Marshal(fiber.Map{
		"error": fiber.Map{"message": appErr.Message, "type": string(appErr.Type)},
	})
	if marshalErr != nil {
		return
	}
	if _, err := w.WriteString("data: " + string(payload) + "\n\n"); err != nil {
		fiberlog.Debugf("client went away during stream: %v", err)
		return
	}
	_ = w.Flush()
}

func statusOf(err error) int {
	return models.SanitizeError(err).GetStatusCode()
}
