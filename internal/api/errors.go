package api

import (
	"errors"

	"github.com/pepe57/OpenGateLLM/internal/models"
	"github.com/pepe57/OpenGateLLM/internal/services/providers"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

// ErrorHandler converts errors into OpenAI-style error envelopes. Backend
// HTTP errors pass through unchanged so clients see what the upstream said.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var remote *providers.RemoteError
	if errors.As(err, &remote) {
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.Status(remote.Status).Send(remote.Body)
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(fiber.Map{
			"error": fiber.Map{"message": fiberErr.Message, "type": "api_error"},
		})
	}

	appErr := models.SanitizeError(err)
	if appErr.GetStatusCode() >= 500 {
		fiberlog.Errorf("request %s failed: %v", c.OriginalURL(), err)
	}
	return c.Status(appErr.GetStatusCode()).JSON(fiber.Map{
		"error": fiber.Map{
			"message": appErr.Message,
			"type":    string(appErr.Type),
			"code":    appErr.Code,
		},
	})
}
