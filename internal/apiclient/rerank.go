package apiclient

import (
	"context"
	"fmt"
)

// RerankResult is one document reference returned by the rerank endpoint.
type RerankResult struct {
	Index int
	Score float64
}

type rerankResponse struct {
	Results []struct {
		Index          int      `json:"index"`
		RelevanceScore *float64 `json:"relevance_score"`
		Score          *float64 `json:"score"`
	} `json:"results"`
}

// Rerank scores documents against query. Results keep the order returned by
// the service. topK <= 0 leaves the result count up to the service.
func (c *Client) Rerank(ctx context.Context, query string, documents []string, model string, topK int) ([]RerankResult, error) {
	const op = "rerank"
	if len(documents) == 0 {
		return []RerankResult{}, nil
	}
	if err := requireModel(op, model); err != nil {
		return nil, err
	}

	payload := map[string]any{
		"model":     model,
		"query":     query,
		"documents": documents,
	}
	if topK > 0 {
		payload["top_k"] = topK
	}

	var parsed rerankResponse
	if err := c.postJSON(ctx, op, "/rerank", model, c.embedTimeout, payload, rerankSchema, &parsed); err != nil {
		return nil, err
	}

	results := make([]RerankResult, 0, len(parsed.Results))
	for _, item := range parsed.Results {
		if item.Index >= len(documents) {
			return nil, &ProtocolError{Op: op, Reason: fmt.Sprintf("result index %d out of range for %d documents", item.Index, len(documents))}
		}
		var score float64
		switch {
		case item.RelevanceScore != nil:
			score = *item.RelevanceScore
		case item.Score != nil:
			score = *item.Score
		}
		results = append(results, RerankResult{Index: item.Index, Score: score})
	}
	return results, nil
}
