// Package embedding fills the embedding cache on demand, in throttled batches.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mwiater/loremaster/internal/embedstore"
	"github.com/mwiater/loremaster/internal/logging"
	"github.com/mwiater/loremaster/internal/lore"
)

const (
	DefaultBatchSize  = 10
	DefaultBatchDelay = time.Second
)

// Embedder turns texts into vectors, one per text, aligned by position.
type Embedder interface {
	Embed(ctx context.Context, texts []string, model string) ([][]float64, error)
}

// EntryLookup resolves entries by UUID. FindEntries omits ids it cannot find.
type EntryLookup interface {
	FindEntry(id string) (lore.Entry, error)
	FindEntries(ids []string) (map[string]lore.Entry, error)
}

// Result reports the outcome of Ensure. Vectors holds every requested id that
// has a vector afterwards; Failed lists ids whose batch could not be embedded;
// Unresolved lists ids that no entry could be found for.
type Result struct {
	Vectors    map[string][]float64
	Failed     []string
	Unresolved []string
}

// Manager coordinates the cache, the embedding service and the entry store.
type Manager struct {
	store     *embedstore.Store
	embedder  Embedder
	entries   EntryLookup
	batchSize int
	delay     time.Duration
	limiter   *rate.Limiter
}

// Option configures a Manager.
type Option func(*Manager)

func WithBatchSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.batchSize = n
		}
	}
}

// WithBatchDelay sets the minimum spacing between embedding batches. Zero or
// negative disables throttling.
func WithBatchDelay(d time.Duration) Option {
	return func(m *Manager) {
		m.delay = d
	}
}

func New(store *embedstore.Store, embedder Embedder, entries EntryLookup, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		embedder:  embedder,
		entries:   entries,
		batchSize: DefaultBatchSize,
		delay:     DefaultBatchDelay,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.delay > 0 {
		m.limiter = rate.NewLimiter(rate.Every(m.delay), 1)
	} else {
		m.limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return m
}

// BuildText is the text embedded for an entry. The title is repeated to
// weight it above the body.
func BuildText(entry lore.Entry) string {
	var parts []string
	if title := strings.TrimSpace(entry.Title); title != "" {
		parts = append(parts, title, title, title)
	}
	if content := strings.TrimSpace(entry.Content); content != "" {
		parts = append(parts, content)
	}
	if len(entry.Tags) > 0 {
		parts = append(parts, "标签: "+strings.Join(entry.Tags, " "))
	}
	return strings.Join(parts, " ")
}

// Ensure makes sure every id has a cached vector for model, generating the
// missing ones. A failing batch is logged and skipped; the others proceed.
func (m *Manager) Ensure(ctx context.Context, ids []string, model string) Result {
	result := Result{Vectors: make(map[string][]float64, len(ids))}

	missing := dedupe(m.store.Missing(ids, model))
	if len(missing) > 0 {
		logging.LogEvent("embedding: generating %d missing vectors with %s", len(missing), model)
		m.generate(ctx, missing, model, &result)
	}

	for _, id := range ids {
		if vec, ok := m.current(id, model); ok {
			result.Vectors[id] = vec
		}
	}
	return result
}

// current returns the cached vector for id when it was produced by model,
// matching the rules of embedstore.Store.Missing.
func (m *Manager) current(id, model string) ([]float64, bool) {
	rec, ok := m.store.Lookup(id)
	if !ok || (rec.Model != "" && model != "" && rec.Model != model) {
		return nil, false
	}
	return rec.Vector, true
}

type pending struct {
	id   string
	text string
}

func (m *Manager) generate(ctx context.Context, ids []string, model string, result *Result) {
	entries, err := m.entries.FindEntries(ids)
	if err != nil {
		logging.LogError("embedding: resolving %d entries failed: %v", len(ids), err)
		result.Unresolved = append(result.Unresolved, ids...)
		return
	}
	var work []pending
	for _, id := range ids {
		entry, ok := entries[id]
		if !ok {
			logging.LogWarning("embedding: skipping %s: no entry with that uuid", id)
			result.Unresolved = append(result.Unresolved, id)
			continue
		}
		work = append(work, pending{id: id, text: BuildText(entry)})
	}

	stored := 0
	for start := 0; start < len(work); start += m.batchSize {
		end := start + m.batchSize
		if end > len(work) {
			end = len(work)
		}
		batch := work[start:end]
		batchNo := start/m.batchSize + 1

		if err := m.limiter.Wait(ctx); err != nil {
			logging.LogWarning("embedding: stopping before batch %d: %v", batchNo, err)
			for _, p := range work[start:] {
				result.Failed = append(result.Failed, p.id)
			}
			break
		}

		if err := m.embedBatch(ctx, batch, model); err != nil {
			logging.LogError("embedding: batch %d (%d entries) failed: %v", batchNo, len(batch), err)
			for _, p := range batch {
				result.Failed = append(result.Failed, p.id)
			}
			continue
		}
		stored += len(batch)
	}
	logging.LogEvent("embedding: generated %d/%d vectors", stored, len(ids))
}

func (m *Manager) embedBatch(ctx context.Context, batch []pending, model string) error {
	texts := make([]string, len(batch))
	for i, p := range batch {
		texts[i] = p.text
	}
	vectors, err := m.embedder.Embed(ctx, texts, model)
	if err != nil {
		return err
	}
	if len(vectors) != len(batch) {
		return fmt.Errorf("expected %d vectors, got %d", len(batch), len(vectors))
	}
	byID := make(map[string][]float64, len(batch))
	for i, p := range batch {
		byID[p.id] = vectors[i]
	}
	return m.store.PutMany(byID, model)
}

// GenerateSingle returns the vector for id, embedding and caching it first if needed.
func (m *Manager) GenerateSingle(ctx context.Context, id, model string) ([]float64, error) {
	if vec, ok := m.current(id, model); ok {
		return vec, nil
	}
	entry, err := m.entries.FindEntry(id)
	if err != nil {
		var nf *lore.NotFoundError
		if errors.As(err, &nf) {
			return nil, err
		}
		return nil, fmt.Errorf("resolve entry %s: %w", id, err)
	}
	if err := m.embedBatch(ctx, []pending{{id: id, text: BuildText(entry)}}, model); err != nil {
		return nil, fmt.Errorf("embed entry %s: %w", id, err)
	}
	vec, _ := m.current(id, model)
	return vec, nil
}

// Remove drops the cached vector for id, reporting whether one existed.
func (m *Manager) Remove(id string) (bool, error) {
	return m.store.Remove(id)
}

// Stats extends the cache statistics with the batching settings.
type Stats struct {
	embedstore.Stats
	BatchSize  int           `json:"batch_size"`
	BatchDelay time.Duration `json:"batch_delay"`
}

// Stats reports the cache file and the batching the manager applies.
func (m *Manager) Stats() (Stats, error) {
	st, err := m.store.Stats()
	if err != nil {
		return Stats{}, err
	}
	return Stats{Stats: st, BatchSize: m.batchSize, BatchDelay: m.delay}, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
