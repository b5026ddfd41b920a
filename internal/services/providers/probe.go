package providers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pepe57/OpenGateLLM/internal/models"
)

// ProbeMaxContextLength asks the backend how many tokens it accepts.
// Only vLLM and TEI expose this; other types return nil without error.
func (b *Backend) ProbeMaxContextLength(ctx context.Context) (*int, error) {
	switch b.Provider.Type {
	case models.ProviderTypeVLLM:
		var reply struct {
			Data []struct {
				ID          string `json:"id"`
				MaxModelLen *int   `json:"max_model_len"`
			} `json:"data"`
		}
		if err := b.client.GetJSON(ctx, "/v1/models", &reply); err != nil {
			return nil, fmt.Errorf("probe model list: %w", err)
		}
		for _, card := range reply.Data {
			if card.ID == b.Provider.ModelName && card.MaxModelLen != nil {
				return card.MaxModelLen, nil
			}
		}
		if len(reply.Data) > 0 {
			return reply.Data[0].MaxModelLen, nil
		}
		return nil, nil

	case models.ProviderTypeTEI:
		var reply struct {
			MaxInputLength *int `json:"max_input_length"`
		}
		if err := b.client.GetJSON(ctx, "/info", &reply); err != nil {
			return nil, fmt.Errorf("probe info: %w", err)
		}
		return reply.MaxInputLength, nil

	default:
		return nil, nil
	}
}

// ProbeVectorSize embeds a fixed probe string and measures the vector
// dimensionality the backend produces.
func (b *Backend) ProbeVectorSize(ctx context.Context) (*int, error) {
	path, err := b.EndpointPath(models.EndpointEmbeddings)
	if err != nil {
		return nil, nil
	}

	payload := map[string]any{"input": "hello world"}
	if b.IncludesModelField() {
		payload["model"] = b.Provider.ModelName
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	var reply models.EmbeddingsResponse
	if err := b.client.PostJSON(ctx, path, body, &reply); err != nil {
		return nil, fmt.Errorf("probe embeddings: %w", err)
	}
	if len(reply.Data) == 0 {
		return nil, fmt.Errorf("probe embeddings: empty response")
	}
	size := len(reply.Data[0].Embedding)
	return &size, nil
}
