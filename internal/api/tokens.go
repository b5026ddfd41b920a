package api

import (
	"encoding/json"
	"strconv"

	"github.com/pepe57/OpenGateLLM/internal/models"
	"github.com/pepe57/OpenGateLLM/internal/services/apikey"

	"github.com/gofiber/fiber/v2"
)

// TokensHandler serves the /v1/admin/tokens API key management routes.
type TokensHandler struct {
	keys *apikey.Service
}

func NewTokensHandler(keys *apikey.Service) *TokensHandler {
	return &TokensHandler{keys: keys}
}

// Create mints a new API key. The plaintext key is only ever returned here.
func (h *TokensHandler) Create(c *fiber.Ctx) error {
	var req models.APIKeyCreateRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return models.NewValidationError("invalid request body", err)
	}
	if req.Name == "" {
		return models.NewValidationError("name is required", nil)
	}
	resp, err := h.keys.Create(c.Context(), &req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (h *TokensHandler) List(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 100)
	offset := c.QueryInt("offset", 0)
	keys, total, err := h.keys.List(c.Context(), limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"object": "list", "data": keys, "total": total})
}

func (h *TokensHandler) Revoke(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("token"), 10, 64)
	if err != nil {
		return models.NewValidationError("token id must be numeric", err)
	}
	if err := h.keys.Revoke(c.Context(), uint(id)); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
