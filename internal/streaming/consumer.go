package streaming

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mwiater/loremaster/internal/apiclient"
	"github.com/mwiater/loremaster/internal/logging"
	"github.com/mwiater/loremaster/internal/lore"
	"github.com/mwiater/loremaster/internal/rag"
)

const (
	DefaultTimeout     = 120 * time.Second
	DefaultReadTimeout = 30 * time.Second

	maxCitations      = 5
	retrievalStartMsg = "正在检索相关信息..."
	doneMarker        = "[DONE]"
)

// StreamOpener opens a streamed chat completion.
type StreamOpener interface {
	OpenChatStream(ctx context.Context, req apiclient.ChatRequest) (io.ReadCloser, error)
}

// Recaller runs the cheap recall step of the retrieval pipeline.
type Recaller interface {
	Recall(ctx context.Context, query string, filter []string, maxCandidates int) ([]lore.SearchResult, error)
}

// Request describes one streaming session. With UseRAG set, Query (or the
// last user message in Messages) is run through recall first and the prompt
// is rebuilt around the resulting citations.
type Request struct {
	Query          string
	History        []apiclient.Message
	Messages       []apiclient.Message
	UseRAG         bool
	CategoryFilter []string
	Model          string
	Temperature    float64
	MaxTokens      int
}

// Consumer produces chunk streams. It is safe for concurrent use.
type Consumer struct {
	opener       StreamOpener
	recaller     Recaller
	model        string
	timeout      time.Duration
	readTimeout  time.Duration
	historyLimit int
}

type Option func(*Consumer)

// WithTimeout bounds the whole session.
func WithTimeout(d time.Duration) Option {
	return func(c *Consumer) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithReadTimeout bounds the silence between two upstream lines.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Consumer) {
		if d > 0 {
			c.readTimeout = d
		}
	}
}

// WithModel sets the chat model used when a request names none.
func WithModel(model string) Option {
	return func(c *Consumer) { c.model = model }
}

func WithHistoryLimit(n int) Option {
	return func(c *Consumer) {
		if n > 0 {
			c.historyLimit = n
		}
	}
}

// NewConsumer builds a Consumer. recaller may be nil when RAG is never requested.
func NewConsumer(opener StreamOpener, recaller Recaller, opts ...Option) *Consumer {
	c := &Consumer{
		opener:       opener,
		recaller:     recaller,
		timeout:      DefaultTimeout,
		readTimeout:  DefaultReadTimeout,
		historyLimit: rag.DefaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Stream starts a session and returns its chunks. The channel is closed when
// the session ends. Cancelling ctx stops the session: no chunk is sent after
// cancellation is observed and the upstream connection is released.
func (c *Consumer) Stream(ctx context.Context, req Request) <-chan Chunk {
	out := make(chan Chunk)
	go c.run(ctx, req, out)
	return out
}

type session struct {
	parent context.Context
	out    chan<- Chunk
}

// emit delivers ch unless the caller has cancelled.
func (s session) emit(ch Chunk) bool {
	if s.parent.Err() != nil {
		return false
	}
	select {
	case s.out <- ch:
		return true
	case <-s.parent.Done():
		return false
	}
}

func (c *Consumer) run(parent context.Context, req Request, out chan<- Chunk) {
	defer close(out)
	s := session{parent: parent, out: out}

	ctx, cancel := context.WithTimeout(parent, c.timeout)
	defer cancel()

	messages, ok := c.buildMessages(ctx, s, req)
	if !ok {
		return
	}

	model := req.Model
	if model == "" {
		model = c.model
	}
	temperature := req.Temperature
	if temperature <= 0 {
		temperature = rag.DefaultTemperature
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = rag.DefaultMaxTokens
	}

	body, err := c.opener.OpenChatStream(ctx, apiclient.ChatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		if parent.Err() != nil {
			return
		}
		logging.LogError("streaming: open failed: %v", err)
		s.emit(Chunk{Type: Error, Content: c.describe(ctx, err, false)})
		return
	}
	defer body.Close()

	c.consume(ctx, cancel, s, body)
}

// buildMessages runs the retrieval phase when requested and returns the
// messages to send upstream. Without a query to retrieve for, the request is
// sent as in plain mode.
func (c *Consumer) buildMessages(ctx context.Context, s session, req Request) ([]apiclient.Message, bool) {
	query, history := req.Query, req.History
	if req.UseRAG && strings.TrimSpace(query) == "" {
		query, history = splitLastUser(req.Messages)
	}
	if !req.UseRAG || c.recaller == nil || strings.TrimSpace(query) == "" {
		return plainMessages(req), true
	}

	if !s.emit(Chunk{Type: RetrievalStart, Content: retrievalStartMsg}) {
		return nil, false
	}

	var citations []rag.Citation
	results, err := c.recaller.Recall(ctx, query, req.CategoryFilter, maxCitations)
	if err != nil {
		if s.parent.Err() != nil {
			return nil, false
		}
		logging.LogWarning("streaming: retrieval failed: %v", err)
		if !s.emit(Chunk{Type: RetrievalError, Content: err.Error()}) {
			return nil, false
		}
	} else {
		citations = rag.Citations(results, maxCitations)
		if !s.emit(Chunk{Type: Citations, Citations: citations}) {
			return nil, false
		}
		if !s.emit(Chunk{Type: RetrievalComplete}) {
			return nil, false
		}
	}

	entries := make([]lore.Entry, len(citations))
	for i, cit := range citations {
		entries[i] = cit.Entry()
	}
	return rag.BuildPrompt(query, entries, conversational(history), c.historyLimit), true
}

func plainMessages(req Request) []apiclient.Message {
	if len(req.Messages) > 0 {
		return req.Messages
	}
	msgs := append([]apiclient.Message(nil), req.History...)
	return append(msgs, apiclient.Message{Role: "user", Content: req.Query})
}

// consume reads the event stream line by line until the terminator, EOF,
// an error or cancellation. The read timeout only runs while waiting on the
// upstream, never while the receiver is slow to take a chunk.
func (c *Consumer) consume(ctx context.Context, cancel context.CancelFunc, s session, body io.Reader) {
	var idle atomic.Bool
	timer := time.AfterFunc(c.readTimeout, func() {
		idle.Store(true)
		cancel()
	})
	defer timer.Stop()

	reader := bufio.NewReader(body)
	finishReason := ""
	for first := true; ; first = false {
		if s.parent.Err() != nil {
			return
		}
		if !first {
			timer.Reset(c.readTimeout)
		}
		line, readErr := reader.ReadString('\n')
		timer.Stop()

		if data, ok := eventData(line); ok {
			if data == doneMarker {
				s.emit(Chunk{Type: Complete, FinishReason: finishReason})
				return
			}
			var chunk streamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				logging.LogWarning("streaming: skipping malformed line %q: %v", data, err)
			} else if len(chunk.Choices) > 0 {
				choice := chunk.Choices[0]
				if choice.FinishReason != nil && *choice.FinishReason != "" {
					finishReason = *choice.FinishReason
				}
				if choice.Delta.Content != "" {
					if !s.emit(Chunk{Type: TextDelta, Content: choice.Delta.Content}) {
						return
					}
				}
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				s.emit(Chunk{Type: Complete, FinishReason: finishReason})
				return
			}
			if s.parent.Err() != nil {
				return
			}
			logging.LogError("streaming: read failed: %v", readErr)
			s.emit(Chunk{Type: Error, Content: c.describe(ctx, readErr, idle.Load())})
			return
		}
	}
}

func (c *Consumer) describe(ctx context.Context, err error, idle bool) string {
	switch {
	case idle:
		return fmt.Sprintf("stream stalled: no data for %s", c.readTimeout)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Sprintf("stream exceeded %s", c.timeout)
	default:
		return err.Error()
	}
}

// eventData extracts the payload of a "data:" line.
func eventData(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "data:") {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(line, "data:")), true
}

// splitLastUser returns the last user message and everything before it.
func splitLastUser(messages []apiclient.Message) (string, []apiclient.Message) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content, messages[:i]
		}
	}
	return "", messages
}

// conversational keeps the non-empty user and assistant turns.
func conversational(history []apiclient.Message) []apiclient.Message {
	out := make([]apiclient.Message, 0, len(history))
	for _, m := range history {
		if (m.Role == "user" || m.Role == "assistant") && strings.TrimSpace(m.Content) != "" {
			out = append(out, m)
		}
	}
	return out
}
