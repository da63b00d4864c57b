// internal/cli/services.go
package loremaster

import (
	"fmt"

	"github.com/mwiater/loremaster/internal/apiclient"
	"github.com/mwiater/loremaster/internal/appconfig"
	"github.com/mwiater/loremaster/internal/embedding"
	"github.com/mwiater/loremaster/internal/embedstore"
	"github.com/mwiater/loremaster/internal/lore"
	"github.com/mwiater/loremaster/internal/rag"
	"github.com/mwiater/loremaster/internal/streaming"
)

// services bundles the components a command needs, built from one config.
type services struct {
	cfg      appconfig.Config
	store    *lore.Store
	client   *apiclient.Client
	cache    *embedstore.Store
	manager  *embedding.Manager
	engine   *rag.Engine
	consumer *streaming.Consumer
}

// requireConfig returns the loaded config or an error when the root hook did not run.
func requireConfig() (appconfig.Config, error) {
	cfg := GetConfig()
	if cfg == nil {
		return appconfig.Config{}, fmt.Errorf("config is nil")
	}
	return *cfg, nil
}

// newServices validates cfg and wires the store, cache, client and pipeline together.
func newServices(cfg appconfig.Config) (*services, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := apiclient.New(&cfg)
	if err != nil {
		return nil, err
	}

	cache, err := embedstore.Open(cfg.EmbeddingsFile())
	if err != nil {
		return nil, fmt.Errorf("open embedding cache: %w", err)
	}

	store := openStore(cfg)
	manager := newManager(cfg, cache, client, store)
	engine := rag.New(store, manager, client, cfg.DataPath)
	consumer := streaming.NewConsumer(client, engine,
		streaming.WithModel(cfg.RAG.ChatModel),
		streaming.WithTimeout(cfg.StreamTimeout()),
		streaming.WithReadTimeout(cfg.StreamReadTimeout()),
		streaming.WithHistoryLimit(cfg.RAG.HistoryLimit),
	)

	return &services{
		cfg:      cfg,
		store:    store,
		client:   client,
		cache:    cache,
		manager:  manager,
		engine:   engine,
		consumer: consumer,
	}, nil
}

// openStore returns the knowledge base, with the embedding cache file hidden from it.
func openStore(cfg appconfig.Config) *lore.Store {
	return lore.NewStore(cfg.DataPath, lore.WithIgnore(cfg.EmbeddingsFile()))
}

func newManager(cfg appconfig.Config, cache *embedstore.Store, embedder embedding.Embedder, store *lore.Store) *embedding.Manager {
	return embedding.New(cache, embedder, store,
		embedding.WithBatchSize(cfg.RAG.BatchSize),
		embedding.WithBatchDelay(cfg.BatchDelay()),
	)
}

// openManager builds a manager for cache maintenance. It has no embedder, so
// it must not be asked to generate vectors.
func openManager(cfg appconfig.Config) (*embedding.Manager, error) {
	cache, err := openCache(cfg)
	if err != nil {
		return nil, err
	}
	return newManager(cfg, cache, nil, openStore(cfg)), nil
}

// openCache opens only the embedding cache, for commands that never call the API.
func openCache(cfg appconfig.Config) (*embedstore.Store, error) {
	cache, err := embedstore.Open(cfg.EmbeddingsFile())
	if err != nil {
		return nil, fmt.Errorf("open embedding cache: %w", err)
	}
	return cache, nil
}
