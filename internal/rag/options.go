package rag

import "github.com/mwiater/loremaster/internal/appconfig"

const (
	DefaultTopKRetrieval = 20
	DefaultTopKRerank    = 5
	DefaultMaxCandidates = 50
	DefaultTemperature   = 0.7
	DefaultMaxTokens     = 2000
	DefaultHistoryLimit  = 8
)

// Options are the per-call pipeline settings. Zero values fall back to the defaults.
type Options struct {
	EmbeddingModel string
	RerankModel    string
	ChatModel      string
	TopKRetrieval  int
	TopKRerank     int
	MaxCandidates  int
	Temperature    float64
	MaxTokens      int
	HistoryLimit   int
	CategoryFilter []string
}

// DefaultOptions returns the stock pipeline settings.
func DefaultOptions() Options {
	return Options{}.withDefaults()
}

// OptionsFromConfig maps the rag section of cfg onto Options.
func OptionsFromConfig(cfg appconfig.Config) Options {
	return Options{
		EmbeddingModel: cfg.RAG.EmbeddingModel,
		RerankModel:    cfg.RAG.RerankModel,
		ChatModel:      cfg.RAG.ChatModel,
		TopKRetrieval:  cfg.RAG.TopKRetrieval,
		TopKRerank:     cfg.RAG.TopKRerank,
		MaxCandidates:  cfg.RAG.MaxCandidates,
		Temperature:    cfg.RAG.Temperature,
		MaxTokens:      cfg.RAG.MaxTokens,
		HistoryLimit:   cfg.RAG.HistoryLimit,
		CategoryFilter: append([]string(nil), cfg.RAG.CategoryFilter...),
	}.withDefaults()
}

func (o Options) withDefaults() Options {
	if o.EmbeddingModel == "" {
		o.EmbeddingModel = appconfig.DefaultEmbeddingModel
	}
	if o.RerankModel == "" {
		o.RerankModel = appconfig.DefaultRerankModel
	}
	if o.ChatModel == "" {
		o.ChatModel = appconfig.DefaultChatModel
	}
	if o.TopKRetrieval <= 0 {
		o.TopKRetrieval = DefaultTopKRetrieval
	}
	if o.TopKRerank <= 0 {
		o.TopKRerank = DefaultTopKRerank
	}
	if o.MaxCandidates <= 0 {
		o.MaxCandidates = DefaultMaxCandidates
	}
	if o.Temperature <= 0 {
		o.Temperature = DefaultTemperature
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = DefaultHistoryLimit
	}
	return o
}
