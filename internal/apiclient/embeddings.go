package apiclient

import (
	"context"
	"fmt"
)

type embeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     *int      `json:"index"`
	} `json:"data"`
}

// Embed returns one vector per input text, aligned by position. An empty
// input returns an empty result without contacting the service.
func (c *Client) Embed(ctx context.Context, texts []string, model string) ([][]float64, error) {
	const op = "embeddings"
	if len(texts) == 0 {
		return [][]float64{}, nil
	}
	if err := requireModel(op, model); err != nil {
		return nil, err
	}

	payload := map[string]any{
		"model":           model,
		"input":           texts,
		"encoding_format": "float",
	}
	var parsed embeddingsResponse
	if err := c.postJSON(ctx, op, "/embeddings", model, c.embedTimeout, payload, embeddingsSchema, &parsed); err != nil {
		return nil, err
	}

	if len(parsed.Data) != len(texts) {
		return nil, &ProtocolError{Op: op, Reason: fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(parsed.Data))}
	}

	vectors := make([][]float64, len(texts))
	for pos, item := range parsed.Data {
		slot := pos
		if item.Index != nil {
			slot = *item.Index
		}
		if slot < 0 || slot >= len(texts) {
			return nil, &ProtocolError{Op: op, Reason: fmt.Sprintf("embedding index %d out of range", slot)}
		}
		if vectors[slot] != nil {
			return nil, &ProtocolError{Op: op, Reason: fmt.Sprintf("duplicate embedding index %d", slot)}
		}
		if len(item.Embedding) == 0 {
			return nil, &ProtocolError{Op: op, Reason: fmt.Sprintf("empty embedding at index %d", slot)}
		}
		vectors[slot] = item.Embedding
	}
	return vectors, nil
}
