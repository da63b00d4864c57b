package rag

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mwiater/loremaster/internal/lore"
)

// Recall returns substring-search candidates for query, restricted to
// categories starting with one of filter (when non-empty) and truncated to
// maxCandidates (when positive).
func (e *Engine) Recall(ctx context.Context, query string, filter []string, maxCandidates int) ([]lore.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	results, err := e.searcher.Search(query)
	if err != nil {
		return nil, fmt.Errorf("search knowledge base: %w", err)
	}

	prefixes := e.normalizeFilter(filter)
	out := make([]lore.SearchResult, 0, len(results))
	for _, res := range results {
		if len(prefixes) > 0 && !matchesAny(res.CategoryPath, prefixes) {
			continue
		}
		out = append(out, res)
		if maxCandidates > 0 && len(out) == maxCandidates {
			break
		}
	}
	return out, nil
}

// normalizeFilter turns each filter into a slash-separated path relative to
// the data root. Absolute paths outside the root are kept as given.
func (e *Engine) normalizeFilter(filter []string) []string {
	if len(filter) == 0 {
		return nil
	}
	var root string
	if e.dataRoot != "" {
		if abs, err := filepath.Abs(e.dataRoot); err == nil {
			root = abs
		}
	}

	prefixes := make([]string, 0, len(filter))
	for _, f := range filter {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if root != "" && filepath.IsAbs(f) {
			if rel, err := filepath.Rel(root, filepath.Clean(f)); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
				f = rel
			}
		}
		f = strings.Trim(filepath.ToSlash(f), "/")
		if f == "." {
			f = ""
		}
		prefixes = append(prefixes, f)
	}
	return prefixes
}

func matchesAny(category string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(category, p) {
			return true
		}
	}
	return false
}
