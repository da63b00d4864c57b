package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/mwiater/loremaster/internal/logging"
)

// Message is a single chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest describes a chat completion call.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// ChatResponse is the decoded non-streamed completion.
type ChatResponse struct {
	Choices []Choice `json:"choices"`
}

type Choice struct {
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Content returns the first choice's message text, if any.
func (r *ChatResponse) Content() (string, bool) {
	if r == nil || len(r.Choices) == 0 {
		return "", false
	}
	return r.Choices[0].Message.Content, true
}

func (r ChatRequest) payload(stream bool) map[string]any {
	messages := r.Messages
	if messages == nil {
		messages = []Message{}
	}
	payload := map[string]any{
		"model":       r.Model,
		"messages":    messages,
		"temperature": r.Temperature,
		"max_tokens":  r.MaxTokens,
	}
	if stream {
		payload["stream"] = true
	}
	return payload
}

// ChatCompletion performs a non-streamed chat completion.
func (c *Client) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	const op = "chat completion"
	if err := requireModel(op, req.Model); err != nil {
		return nil, err
	}
	var parsed ChatResponse
	if err := c.postJSON(ctx, op, "/chat/completions", req.Model, c.chatTimeout, req.payload(false), chatSchema, &parsed); err != nil {
		return nil, err
	}
	return &parsed, nil
}

// OpenChatStream starts a streamed chat completion and returns the open
// event-stream body. The caller owns the body and bounds its lifetime with ctx.
func (c *Client) OpenChatStream(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
	const op = "chat stream"
	if err := requireModel(op, req.Model); err != nil {
		return nil, err
	}
	body, err := json.Marshal(req.payload(true))
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", op, err)
	}
	logging.LogRequest(outbound, "/chat/completions", req.Model, body)

	httpReq, err := c.newRequest(ctx, "/chat/completions", body)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamHTTP.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		logging.LogRequest(inbound, "/chat/completions", req.Model, raw)
		return nil, &TransportError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	return resp.Body, nil
}

// TestConnection sends a tiny completion to the configured test model and
// reports whether the service answered with at least one choice.
func (c *Client) TestConnection(ctx context.Context) bool {
	resp, err := c.ChatCompletion(ctx, ChatRequest{
		Model:       c.testModel,
		Messages:    []Message{{Role: "user", Content: "Hello"}},
		Temperature: 0.1,
		MaxTokens:   10,
	})
	if err != nil {
		logging.LogWarning("connection test failed: %v", err)
		return false
	}
	return len(resp.Choices) > 0
}
