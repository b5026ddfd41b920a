package api

import (
	"github.com/pepe57/OpenGateLLM/internal/models"
	"github.com/pepe57/OpenGateLLM/internal/services/middleware"
	"github.com/pepe57/OpenGateLLM/internal/services/usage"
	"github.com/pepe57/OpenGateLLM/internal/services/vectorstore"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// DocumentsHandler serves the /v1/documents CRUD. Uploads are chunked,
// embedded with the collection's model and indexed in one pass.
type DocumentsHandler struct {
	store    *vectorstore.Store
	embedder *Embedder
	usage    *usage.Service
}

func NewDocumentsHandler(store *vectorstore.Store, embedder *Embedder, us *usage.Service) *DocumentsHandler {
	return &DocumentsHandler{store: store, embedder: embedder, usage: us}
}

func (h *DocumentsHandler) Create(c *fiber.Ctx) error {
	user := middleware.UserFromContext(c)
	req, err := models.ParseDocumentCreateRequest(c.Body())
	if err != nil {
		return err
	}

	ctx := c.Context()
	collection, err := h.store.GetCollection(ctx, req.Collection, user)
	if err != nil {
		return err
	}
	if collection.OwnerKeyID != user.KeyID && !user.Master {
		return models.NewInsufficientPermissionError("collection is not writable with this key")
	}

	pieces := chunkText(req.Text, req.ChunkSize, req.Overlap)
	result, err := h.embedder.Embed(ctx, collection.Model, pieces, user)
	if err != nil {
		return err
	}

	chunks := make([]vectorstore.EmbeddedChunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = vectorstore.EmbeddedChunk{
			Content:   piece,
			Metadata:  map[string]any{"document_name": req.Name, "position": i},
			Embedding: result.Vectors[i],
		}
	}
	document, err := h.store.AddDocument(ctx, collection.ID, req.Name, chunks, user)
	if err != nil {
		return err
	}

	go trackUsage(h.usage, usage.Record{
		RequestID: "doc-" + uuid.NewString(),
		User:      user,
		Router:    *result.Router,
		Endpoint:  models.EndpointEmbeddings,
		Usage:     result.Usage,
		Status:    fiber.StatusCreated,
	})
	return c.Status(fiber.StatusCreated).JSON(document)
}

func (h *DocumentsHandler) List(c *fiber.Ctx) error {
	user := middleware.UserFromContext(c)
	collection := c.Query("collection")
	if collection == "" {
		return models.NewValidationError("collection query parameter is required", nil)
	}
	list, err := h.store.ListDocuments(c.Context(), collection, user)
	if err != nil {
		return err
	}
	return c.JSON(list)
}

func (h *DocumentsHandler) Delete(c *fiber.Ctx) error {
	user := middleware.UserFromContext(c)
	collection := c.Query("collection")
	if collection == "" {
		return models.NewValidationError("collection query parameter is required", nil)
	}
	if err := h.store.DeleteDocument(c.Context(), collection, c.Params("document"), user); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// chunkText splits text into rune windows of size with the given overlap.
// Bounds were validated at parse time.
func chunkText(text string, size, overlap int) []string {
	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}
	step := size - overlap
	chunks := make([]string, 0, (len(runes)+step-1)/step)
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
