// Package rag answers questions from the knowledge base: recall by substring
// search, rank by embedding similarity, rerank with a cross-encoder, then
// generate with a chat model.
package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mwiater/loremaster/internal/apiclient"
	"github.com/mwiater/loremaster/internal/embedding"
	"github.com/mwiater/loremaster/internal/logging"
	"github.com/mwiater/loremaster/internal/lore"
)

const (
	emptyQueryAnswer = "请输入有效的问题。"
	noAnswer         = "抱歉，无法生成回答。"
	failureAnswer    = "抱歉，处理您的问题时出现了错误：%v"
	generateFailure  = "生成答案时出现错误：%v"
)

// Searcher recalls candidate entries for a raw query string.
type Searcher interface {
	Search(query string) ([]lore.SearchResult, error)
}

// Embeddings ensures candidate entries have cached vectors.
type Embeddings interface {
	Ensure(ctx context.Context, ids []string, model string) embedding.Result
}

// Client is the subset of the remote API the engine calls.
type Client interface {
	Embed(ctx context.Context, texts []string, model string) ([][]float64, error)
	Rerank(ctx context.Context, query string, documents []string, model string, topK int) ([]apiclient.RerankResult, error)
	ChatCompletion(ctx context.Context, req apiclient.ChatRequest) (*apiclient.ChatResponse, error)
}

// Engine runs the retrieval pipeline. It holds no per-call state and is safe
// for concurrent use.
type Engine struct {
	searcher   Searcher
	embeddings Embeddings
	client     Client
	dataRoot   string
}

// New builds an Engine. dataRoot is used to turn absolute category filters
// into paths relative to the knowledge base.
func New(searcher Searcher, embeddings Embeddings, client Client, dataRoot string) *Engine {
	return &Engine{searcher: searcher, embeddings: embeddings, client: client, dataRoot: dataRoot}
}

// Candidate is an entry with its similarity to the query.
type Candidate struct {
	Entry        lore.Entry
	CategoryPath string
	Score        float64
}

// Retrieval is the outcome of the recall, embed, filter and rerank stages.
type Retrieval struct {
	Candidates     []lore.SearchResult
	Embedded       embedding.Result
	Scored         []Candidate
	Entries        []lore.Entry
	RerankFallback bool

	RecallMs int
	EmbedMs  int
	FilterMs int
	RerankMs int
}

// Answer runs the full pipeline and always returns a user-facing string.
func (e *Engine) Answer(ctx context.Context, query string, history []apiclient.Message, opts Options) (answer string) {
	defer func() {
		if r := recover(); r != nil {
			logging.LogError("rag: pipeline panic: %v", r)
			answer = fmt.Sprintf(failureAnswer, r)
		}
	}()

	if strings.TrimSpace(query) == "" {
		return emptyQueryAnswer
	}
	opts = opts.withDefaults()

	retrieval, err := e.Retrieve(ctx, query, opts)
	if err != nil {
		logging.LogError("rag: retrieval failed: %v", err)
		return fmt.Sprintf(failureAnswer, err)
	}

	messages := BuildPrompt(query, retrieval.Entries, history, opts.HistoryLimit)
	return e.generate(ctx, messages, opts)
}

// Retrieve runs recall through rerank. Stage failures degrade to less context;
// only cancellation of ctx is returned as an error.
func (e *Engine) Retrieve(ctx context.Context, query string, opts Options) (Retrieval, error) {
	opts = opts.withDefaults()
	var r Retrieval

	start := time.Now()
	candidates, err := e.Recall(ctx, query, opts.CategoryFilter, opts.MaxCandidates)
	if err != nil {
		logging.LogError("rag: recall failed: %v", err)
		candidates = nil
	}
	r.Candidates = candidates
	r.RecallMs = elapsedMs(start)
	logging.LogEvent("rag: recalled %d candidates (filter %v)", len(candidates), opts.CategoryFilter)

	if err := ctx.Err(); err != nil {
		return r, err
	}
	if len(candidates) == 0 {
		return r, nil
	}

	start = time.Now()
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.Entry.UUID
	}
	r.Embedded = e.embeddings.Ensure(ctx, ids, opts.EmbeddingModel)
	r.EmbedMs = elapsedMs(start)
	if err := ctx.Err(); err != nil {
		return r, err
	}

	start = time.Now()
	r.Scored = e.filter(ctx, query, candidates, r.Embedded.Vectors, opts)
	r.FilterMs = elapsedMs(start)
	if err := ctx.Err(); err != nil {
		return r, err
	}
	if len(r.Scored) == 0 {
		return r, nil
	}

	start = time.Now()
	r.Entries, r.RerankFallback = e.rerank(ctx, query, r.Scored, opts)
	r.RerankMs = elapsedMs(start)
	if err := ctx.Err(); err != nil {
		return r, err
	}
	return r, nil
}

func (e *Engine) filter(ctx context.Context, query string, candidates []lore.SearchResult, vectors map[string][]float64, opts Options) []Candidate {
	queryVecs, err := e.client.Embed(ctx, []string{query}, opts.EmbeddingModel)
	if err != nil || len(queryVecs) == 0 {
		logging.LogError("rag: could not embed query: %v", err)
		return nil
	}
	scored := scoreCandidates(candidates, vectors, queryVecs[0])
	if len(scored) > opts.TopKRetrieval {
		scored = scored[:opts.TopKRetrieval]
	}
	logging.LogEvent("rag: similarity filter kept %d candidates", len(scored))
	return scored
}

// rerank orders scored candidates with the rerank model. The service order is
// kept as-is. On failure it falls back to the similarity order.
func (e *Engine) rerank(ctx context.Context, query string, scored []Candidate, opts Options) ([]lore.Entry, bool) {
	documents := make([]string, len(scored))
	for i, c := range scored {
		documents[i] = rerankDocument(c.Entry)
	}

	results, err := e.client.Rerank(ctx, query, documents, opts.RerankModel, opts.TopKRerank)
	if err != nil {
		logging.LogWarning("rag: rerank failed, keeping similarity order: %v", err)
		n := opts.TopKRerank
		if n > len(scored) {
			n = len(scored)
		}
		entries := make([]lore.Entry, n)
		for i := 0; i < n; i++ {
			entries[i] = scored[i].Entry
		}
		return entries, true
	}

	seen := make(map[int]struct{}, len(results))
	entries := make([]lore.Entry, 0, len(results))
	for _, res := range results {
		if res.Index < 0 || res.Index >= len(scored) {
			continue
		}
		if _, dup := seen[res.Index]; dup {
			continue
		}
		seen[res.Index] = struct{}{}
		entries = append(entries, scored[res.Index].Entry)
		if len(entries) == opts.TopKRerank {
			break
		}
	}
	logging.LogEvent("rag: rerank selected %d entries", len(entries))
	return entries, false
}

func (e *Engine) generate(ctx context.Context, messages []apiclient.Message, opts Options) string {
	resp, err := e.client.ChatCompletion(ctx, apiclient.ChatRequest{
		Model:       opts.ChatModel,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		logging.LogError("rag: generation failed: %v", err)
		return fmt.Sprintf(generateFailure, err)
	}
	content, ok := resp.Content()
	content = strings.TrimSpace(content)
	if !ok || content == "" {
		return noAnswer
	}
	return content
}

func elapsedMs(start time.Time) int {
	return int(time.Since(start) / time.Millisecond)
}
