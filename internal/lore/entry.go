// Package lore reads and writes the on-disk knowledge base: a directory tree
// of categories, each holding one JSON file per entry.
package lore

import (
	"fmt"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Entry is a single note in the knowledge base. The retrieval pipeline treats
// it as read-only.
type Entry struct {
	UUID        string              `json:"uuid"`
	Title       string              `json:"title"`
	Content     string              `json:"content"`
	Tags        []string            `json:"tags"`
	Metadata    map[string]any      `json:"metadata,omitempty"`
	Attachments []map[string]string `json:"attachments"`
	Version     int                 `json:"version"`
}

// SearchResult pairs a matching entry with the slash-separated category path
// it lives in, relative to the store root ("" for the root itself).
type SearchResult struct {
	Entry        Entry
	CategoryPath string
}

// NotFoundError reports an entry UUID that could not be resolved.
type NotFoundError struct {
	UUID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("entry %s not found", e.UUID)
}

// NewEntry builds a fresh entry with a random UUID and creation metadata.
func NewEntry(title, content string, tags []string) Entry {
	now := time.Now().UTC().Format(time.RFC3339)
	if tags == nil {
		tags = []string{}
	}
	return Entry{
		UUID:    uuid.NewString(),
		Title:   title,
		Content: content,
		Tags:    tags,
		Metadata: map[string]any{
			"created_at": now,
			"updated_at": now,
			"word_count": WordCount(content),
		},
		Attachments: []map[string]string{},
		Version:     1,
	}
}

// WordCount counts CJK characters individually and other text by
// whitespace-separated words.
func WordCount(text string) int {
	count := 0
	inWord := false
	for len(text) > 0 {
		r, size := utf8.DecodeRuneInString(text)
		text = text[size:]
		switch {
		case unicode.Is(unicode.Han, r):
			count++
			inWord = false
		case unicode.IsSpace(r) || unicode.IsPunct(r):
			inWord = false
		default:
			if !inWord {
				count++
				inWord = true
			}
		}
	}
	return count
}
