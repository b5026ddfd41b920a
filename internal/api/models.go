package api

import (
	"github.com/pepe57/OpenGateLLM/internal/services/registry"

	"github.com/gofiber/fiber/v2"
)

// ModelsHandler serves the OpenAI-compatible model listing.
type ModelsHandler struct {
	registry *registry.Registry
}

func NewModelsHandler(reg *registry.Registry) *ModelsHandler {
	return &ModelsHandler{registry: reg}
}

func (h *ModelsHandler) List(c *fiber.Ctx) error {
	list, err := h.registry.Models(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(list)
}

func (h *ModelsHandler) Get(c *fiber.Ctx) error {
	card, err := h.registry.Model(c.Context(), c.Params("model"))
	if err != nil {
		return err
	}
	return c.JSON(card)
}
