package rag

import (
	"github.com/google/uuid"

	"github.com/mwiater/loremaster/internal/lore"
	"github.com/mwiater/loremaster/internal/util"
)

const (
	citationExcerptLimit = 200
	citationSource       = "knowledge_base"
	citationScore        = 0.8
)

// Citation is the presentation form of a recalled entry.
type Citation struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Source  string  `json:"source"`
	URL     string  `json:"url,omitempty"`
	Score   float64 `json:"score"`
}

// Citations converts up to limit recall results into citations with short excerpts.
func Citations(results []lore.SearchResult, limit int) []Citation {
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	citations := make([]Citation, 0, len(results))
	for _, res := range results {
		citations = append(citations, Citation{
			ID:      uuid.NewString(),
			Title:   res.Entry.Title,
			Content: util.TruncateRunes(res.Entry.Content, citationExcerptLimit),
			Source:  citationSource,
			Score:   citationScore,
		})
	}
	return citations
}

// Entry turns a citation back into prompt entries carrying only the excerpt.
func (c Citation) Entry() lore.Entry {
	return lore.Entry{UUID: c.ID, Title: c.Title, Content: c.Content, Tags: []string{}}
}
