package rag

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
)

// RunPreview runs retrieval for query without generating an answer and
// reports each stage to out. It backs the "rag preview" command.
func RunPreview(ctx context.Context, engine *Engine, out io.Writer, query string, opts Options) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return fmt.Errorf("query is required")
	}
	if engine == nil {
		return fmt.Errorf("engine is nil")
	}
	opts = opts.withDefaults()

	status := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		log.Print(msg)
		fmt.Fprintln(out, msg)
	}

	status("[RAG] Preview query: %s", query)
	status("[RAG] embedding model: %s", opts.EmbeddingModel)
	status("[RAG] rerank model: %s", opts.RerankModel)
	status("[RAG] maxCandidates: %d, topKRetrieval: %d, topKRerank: %d", opts.MaxCandidates, opts.TopKRetrieval, opts.TopKRerank)
	if len(opts.CategoryFilter) > 0 {
		status("[RAG] category filter: %v", opts.CategoryFilter)
	}

	r, err := engine.Retrieve(ctx, query, opts)
	if err != nil {
		return err
	}

	status("[RAG] recall: %d candidates in %dms", len(r.Candidates), r.RecallMs)
	status("[RAG] embeddings: %d ready, %d failed, %d unresolved in %dms", len(r.Embedded.Vectors), len(r.Embedded.Failed), len(r.Embedded.Unresolved), r.EmbedMs)
	status("[RAG] similarity: %d kept in %dms", len(r.Scored), r.FilterMs)
	for i, c := range r.Scored {
		status("[RAG] candidate %d score=%.6f category=%s title=%s", i+1, c.Score, displayCategory(c.CategoryPath), c.Entry.Title)
	}
	if r.RerankFallback {
		status("[RAG] rerank failed; using similarity order")
	}
	status("[RAG] final entries: %d in %dms", len(r.Entries), r.RerankMs)
	for i, e := range r.Entries {
		status("[RAG] entry %d uuid=%s title=%s", i+1, e.UUID, e.Title)
	}
	if len(r.Entries) > 0 {
		status("[RAG] context:\n%s", FormatKnowledge(r.Entries))
	}
	return nil
}

func displayCategory(category string) string {
	if category == "" {
		return "/"
	}
	return category
}
