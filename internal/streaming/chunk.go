// Package streaming turns a chat completion into a channel of incremental
// chunks, optionally preceded by a knowledge base retrieval phase.
package streaming

import "github.com/mwiater/loremaster/internal/rag"

// ChunkType tags each emitted chunk.
type ChunkType string

const (
	TextDelta         ChunkType = "text_delta"
	Citations         ChunkType = "citations"
	RetrievalStart    ChunkType = "retrieval_start"
	RetrievalComplete ChunkType = "retrieval_complete"
	RetrievalError    ChunkType = "retrieval_error"
	Complete          ChunkType = "complete"
	Error             ChunkType = "error"
)

// Chunk is one event of a streaming session.
type Chunk struct {
	Type         ChunkType      `json:"type"`
	Content      string         `json:"content,omitempty"`
	Citations    []rag.Citation `json:"citations,omitempty"`
	FinishReason string         `json:"finish_reason,omitempty"`
}

// streamChunk is one decoded "data:" payload of the upstream event stream.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}
