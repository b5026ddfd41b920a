package models

import (
	"encoding/json"
)

// DefaultOCRPrompt instructs a vision model to transcribe a page verbatim.
const DefaultOCRPrompt = "Transcribe the text of this document page into markdown. " +
	"Preserve the layout as closely as possible and do not add commentary."

// OCRRequest transcribes one or more base64-encoded page images through an
// image-text-to-text model.
type OCRRequest struct {
	Model  string   `json:"model"`
	Pages  []string `json:"pages"`
	Prompt string   `json:"prompt,omitempty"`
}

// ParseOCRRequest decodes and validates an OCR body.
func ParseOCRRequest(body []byte) (*OCRRequest, error) {
	var req OCRRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, NewValidationError("invalid request body", err)
	}
	if req.Model == "" {
		return nil, NewValidationError("model is required", nil)
	}
	if len(req.Pages) == 0 {
		return nil, NewValidationError("pages must not be empty", nil)
	}
	if req.Prompt == "" {
		req.Prompt = DefaultOCRPrompt
	}
	return &req, nil
}

// ChatBody builds the chat completion payload that transcribes one page.
func (r *OCRRequest) ChatBody(backendModel, page string) ([]byte, error) {
	payload := map[string]any{
		"model": backendModel,
		"messages": []map[string]any{
			{
				"role": "user",
				"content": []map[string]any{
					{"type": "text", "text": r.Prompt},
					{
						"type":      "image_url",
						"image_url": map[string]any{"url": "data:image/png;base64," + page},
					},
				},
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, NewInternalError("failed to encode request body", err)
	}
	return body, nil
}

// OCRPage is the transcription of a single page.
type OCRPage struct {
	Page    int    `json:"page"`
	Content string `json:"content"`
}

// OCRResponse is the gateway's transcription reply envelope.
type OCRResponse struct {
	Object string      `json:"object"`
	Model  string      `json:"model"`
	ID     string      `json:"id,omitempty"`
	Data   []OCRPage   `json:"data"`
	Usage  *TokenUsage `json:"usage,omitempty"`
}
