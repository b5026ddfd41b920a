package api

import (
	"github.com/pepe57/OpenGateLLM/internal/models"
	"github.com/pepe57/OpenGateLLM/internal/services/middleware"
	"github.com/pepe57/OpenGateLLM/internal/services/vectorstore"

	"github.com/gofiber/fiber/v2"
)

// CollectionsHandler serves the /v1/collections CRUD.
type CollectionsHandler struct {
	store    *vectorstore.Store
	embedder *Embedder
}

func NewCollectionsHandler(store *vectorstore.Store, embedder *Embedder) *CollectionsHandler {
	return &CollectionsHandler{store: store, embedder: embedder}
}

func (h *CollectionsHandler) Create(c *fiber.Ctx) error {
	user := middleware.UserFromContext(c)
	req, err := models.ParseCollectionCreateRequest(c.Body())
	if err != nil {
		return err
	}

	ctx := c.Context()
	vectorSize, err := h.embedder.VectorSize(ctx, req.Model, user)
	if err != nil {
		return err
	}
	collection, err := h.store.CreateCollection(ctx, req, user.KeyID, vectorSize)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(collection)
}

func (h *CollectionsHandler) List(c *fiber.Ctx) error {
	user := middleware.UserFromContext(c)
	list, err := h.store.ListCollections(c.Context(), user)
	if err != nil {
		return err
	}
	return c.JSON(list)
}

func (h *CollectionsHandler) Get(c *fiber.Ctx) error {
	user := middleware.UserFromContext(c)
	collection, err := h.store.GetCollection(c.Context(), c.Params("collection"), user)
	if err != nil {
		return err
	}
	return c.JSON(collection)
}

func (h *CollectionsHandler) Delete(c *fiber.Ctx) error {
	user := middleware.UserFromContext(c)
	if err := h.store.DeleteCollection(c.Context(), c.Params("collection"), user); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
