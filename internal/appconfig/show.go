package appconfig

import (
	"fmt"
	"io"
	"strings"
)

// ShowConfig prints the current configuration summary.
func ShowConfig(out io.Writer, cfg Config) {
	if cfg.ConfigPath == "" {
		fmt.Fprintln(out, "No config file loaded (using defaults).")
	} else {
		fmt.Fprintf(out, "Config file: %s\n\n", cfg.ConfigPath)
	}

	fmt.Fprintln(out, "Current configuration:")
	fmt.Fprintf(out, "  Debug:             %v\n", cfg.Debug)
	fmt.Fprintf(out, "  Data Path:         %s\n", cfg.DataPath)
	fmt.Fprintf(out, "  Embeddings File:   %s\n", cfg.EmbeddingsFile())
	fmt.Fprintf(out, "  Log File:          %s\n", cfg.LogFilePath())
	fmt.Fprintf(out, "  API Base URL:      %s\n", cfg.API.BaseURL)
	fmt.Fprintf(out, "  API Key:           %s\n", maskKey(cfg.ResolveAPIKey()))
	fmt.Fprintf(out, "  Embedding Model:   %s\n", cfg.RAG.EmbeddingModel)
	fmt.Fprintf(out, "  Rerank Model:      %s\n", cfg.RAG.RerankModel)
	fmt.Fprintf(out, "  Chat Model:        %s\n", cfg.RAG.ChatModel)
	fmt.Fprintf(out, "  Top K Retrieval:   %d\n", cfg.RAG.TopKRetrieval)
	fmt.Fprintf(out, "  Top K Rerank:      %d\n", cfg.RAG.TopKRerank)
	fmt.Fprintf(out, "  Max Candidates:    %d\n", cfg.RAG.MaxCandidates)
	fmt.Fprintf(out, "  Temperature:       %.2f\n", cfg.RAG.Temperature)
	fmt.Fprintf(out, "  Max Tokens:        %d\n", cfg.RAG.MaxTokens)
	fmt.Fprintf(out, "  History Limit:     %d\n", cfg.RAG.HistoryLimit)
	fmt.Fprintf(out, "  Batch Size:        %d\n", cfg.RAG.BatchSize)
	fmt.Fprintf(out, "  Batch Delay:       %s\n", cfg.BatchDelay())
	fmt.Fprintf(out, "  Stream Timeout:    %s (connect %s, read %s)\n", cfg.StreamTimeout(), cfg.StreamConnectTimeout(), cfg.StreamReadTimeout())
	if len(cfg.RAG.CategoryFilter) > 0 {
		fmt.Fprintf(out, "  Category Filter:   %v\n", cfg.RAG.CategoryFilter)
	}
}

func maskKey(key string) string {
	key = strings.TrimSpace(key)
	switch {
	case key == "":
		return "(not set)"
	case len(key) <= 8:
		return strings.Repeat("*", len(key))
	default:
		return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
	}
}
