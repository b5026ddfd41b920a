package api

import (
	"encoding/json"
	"strconv"

	"github.com/pepe57/OpenGateLLM/internal/models"
	"github.com/pepe57/OpenGateLLM/internal/services/registry"

	"github.com/gofiber/fiber/v2"
)

// AdminHandler serves the /v1/admin router and provider CRUD. Routes are
// registered behind the admin middleware.
type AdminHandler struct {
	registry *registry.Registry
}

func NewAdminHandler(reg *registry.Registry) *AdminHandler {
	return &AdminHandler{registry: reg}
}

func (h *AdminHandler) ListRouters(c *fiber.Ctx) error {
	routers, err := h.registry.Routers(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"object": "list", "data": routers})
}

func (h *AdminHandler) CreateRouter(c *fiber.Ctx) error {
	var spec models.ModelSpec
	if err := json.Unmarshal(c.Body(), &spec); err != nil {
		return models.NewValidationError("invalid request body", err)
	}
	router, err := h.registry.CreateRouter(c.Context(), spec)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(router)
}

func (h *AdminHandler) UpdateRouter(c *fiber.Ctx) error {
	var spec models.ModelSpec
	if err := json.Unmarshal(c.Body(), &spec); err != nil {
		return models.NewValidationError("invalid request body", err)
	}
	router, err := h.registry.UpdateRouter(c.Context(), c.Params("router"), spec)
	if err != nil {
		return err
	}
	return c.JSON(router)
}

func (h *AdminHandler) DeleteRouter(c *fiber.Ctx) error {
	if err := h.registry.DeleteRouter(c.Context(), c.Params("router")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AdminHandler) AddProvider(c *fiber.Ctx) error {
	var spec models.ProviderSpec
	if err := json.Unmarshal(c.Body(), &spec); err != nil {
		return models.NewValidationError("invalid request body", err)
	}
	provider, err := h.registry.AddProvider(c.Context(), c.Params("router"), spec)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(provider)
}

func (h *AdminHandler) RemoveProvider(c *fiber.Ctx) error {
	providerID, err := strconv.ParseUint(c.Params("provider"), 10, 64)
	if err != nil {
		return models.NewValidationError("provider id must be numeric", err)
	}
	if err := h.registry.RemoveProvider(c.Context(), c.Params("router"), uint(providerID)); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
