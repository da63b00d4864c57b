package lore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/mwiater/loremaster/internal/logging"
)

const (
	entryPattern = "**/*.json"
	// cacheFile is the default embedding cache name, kept beside the entries.
	cacheFile = "embeddings.json"
)

// Store is a knowledge base rooted at a directory.
type Store struct {
	root   string
	fsys   fs.FS
	ignore map[string]struct{}
}

// Option configures a Store.
type Option func(*Store)

// WithIgnore excludes files below the root from every listing and lookup.
// Paths outside the root are ignored.
func WithIgnore(paths ...string) Option {
	return func(s *Store) {
		for _, p := range paths {
			if rel, ok := s.relative(p); ok {
				s.ignore[rel] = struct{}{}
			}
		}
	}
}

// NewStore returns a store over root. The directory is created lazily by Create.
func NewStore(root string, opts ...Option) *Store {
	s := &Store{root: root, fsys: os.DirFS(root), ignore: map[string]struct{}{cacheFile: {}}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// relative maps p onto the slash-separated name used inside the store.
func (s *Store) relative(p string) (string, bool) {
	if p == "" {
		return "", false
	}
	if !filepath.IsAbs(p) {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
	}
	root, err := filepath.Abs(s.root)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (s *Store) ignored(name string) bool {
	_, ok := s.ignore[name]
	return ok
}

// Root returns the directory the store was opened on.
func (s *Store) Root() string {
	return s.root
}

// Categories lists every category directory, slash-separated and sorted.
func (s *Store) Categories() ([]string, error) {
	var categories []string
	err := fs.WalkDir(s.fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == "." || !d.IsDir() {
			return nil
		}
		if hidden(d.Name()) {
			return fs.SkipDir
		}
		categories = append(categories, p)
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list categories under %s: %w", s.root, err)
	}
	sort.Strings(categories)
	return categories, nil
}

// EntriesInCategory returns the entries stored directly in category.
func (s *Store) EntriesInCategory(category string) ([]Entry, error) {
	dir := cleanCategory(category)
	items, err := fs.ReadDir(s.fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read category %q: %w", category, err)
	}
	var entries []Entry
	for _, item := range items {
		name := path.Join(dir, item.Name())
		if item.IsDir() || hidden(item.Name()) || path.Ext(item.Name()) != ".json" || s.ignored(name) {
			continue
		}
		entry, err := s.readEntry(name)
		if err != nil {
			logging.LogWarning("lore: skipping unreadable entry %s: %v", name, err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Entry loads the entry with id from category.
func (s *Store) Entry(category, id string) (Entry, error) {
	entry, err := s.readEntry(path.Join(cleanCategory(category), id+".json"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Entry{}, &NotFoundError{UUID: id}
		}
		return Entry{}, err
	}
	return entry, nil
}

// FindEntry resolves id across every category.
func (s *Store) FindEntry(id string) (Entry, error) {
	var (
		found Entry
		ok    bool
	)
	err := s.walkEntries(func(_ string, entry Entry) bool {
		if entry.UUID == id {
			found, ok = entry, true
			return false
		}
		return true
	})
	if err != nil {
		return Entry{}, err
	}
	if !ok {
		return Entry{}, &NotFoundError{UUID: id}
	}
	return found, nil
}

// FindEntries resolves every id it can in a single walk. Ids without an
// entry are absent from the result.
func (s *Store) FindEntries(ids []string) (map[string]Entry, error) {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	found := make(map[string]Entry, len(want))
	if len(want) == 0 {
		return found, nil
	}
	err := s.walkEntries(func(_ string, entry Entry) bool {
		if _, ok := want[entry.UUID]; ok {
			if _, dup := found[entry.UUID]; !dup {
				found[entry.UUID] = entry
			}
		}
		return len(found) < len(want)
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// Search returns entries whose title, content or any tag contains query,
// ignoring case. Each entry appears at most once, in directory walk order.
func (s *Store) Search(query string) ([]SearchResult, error) {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return nil, nil
	}

	var results []SearchResult
	seen := make(map[string]struct{})
	err := s.walkEntries(func(category string, entry Entry) bool {
		if _, dup := seen[entry.UUID]; dup {
			return true
		}
		if matches(entry, needle) {
			seen[entry.UUID] = struct{}{}
			results = append(results, SearchResult{Entry: entry, CategoryPath: category})
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Create writes entry into category, creating the directory as needed. A
// blank UUID is replaced with a fresh one.
func (s *Store) Create(category string, entry Entry) (Entry, error) {
	if strings.TrimSpace(entry.Title) == "" {
		return Entry{}, errors.New("entry title must not be empty")
	}
	if entry.UUID == "" {
		fresh := NewEntry(entry.Title, entry.Content, entry.Tags)
		fresh.Metadata = mergeMetadata(fresh.Metadata, entry.Metadata)
		entry = fresh
	}
	if entry.Tags == nil {
		entry.Tags = []string{}
	}
	if entry.Attachments == nil {
		entry.Attachments = []map[string]string{}
	}
	if entry.Version == 0 {
		entry.Version = 1
	}

	dir := filepath.Join(s.root, filepath.FromSlash(cleanCategory(category)))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Entry{}, fmt.Errorf("create category %q: %w", category, err)
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return Entry{}, fmt.Errorf("encode entry: %w", err)
	}
	target := filepath.Join(dir, entry.UUID+".json")
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return Entry{}, fmt.Errorf("write entry %s: %w", target, err)
	}
	return entry, nil
}

// walkEntries visits every decodable entry file below the root. visit
// returns false to stop early.
func (s *Store) walkEntries(visit func(category string, entry Entry) bool) error {
	matches, err := doublestar.Glob(s.fsys, entryPattern)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("scan %s: %w", s.root, err)
	}
	for _, match := range matches {
		if hiddenPath(match) || s.ignored(match) {
			continue
		}
		entry, err := s.readEntry(match)
		if err != nil {
			logging.LogWarning("lore: skipping unreadable entry %s: %v", match, err)
			continue
		}
		if entry.UUID == "" {
			continue
		}
		category := path.Dir(match)
		if category == "." {
			category = ""
		}
		if !visit(category, entry) {
			return nil
		}
	}
	return nil
}

func (s *Store) readEntry(name string) (Entry, error) {
	data, err := fs.ReadFile(s.fsys, name)
	if err != nil {
		return Entry{}, err
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, fmt.Errorf("decode %s: %w", name, err)
	}
	if entry.Tags == nil {
		entry.Tags = []string{}
	}
	return entry, nil
}

func matches(entry Entry, needle string) bool {
	if strings.Contains(strings.ToLower(entry.Title), needle) {
		return true
	}
	if strings.Contains(strings.ToLower(entry.Content), needle) {
		return true
	}
	for _, tag := range entry.Tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	return false
}

func mergeMetadata(base, extra map[string]any) map[string]any {
	for k, v := range extra {
		base[k] = v
	}
	return base
}

func cleanCategory(category string) string {
	c := strings.Trim(filepath.ToSlash(strings.TrimSpace(category)), "/")
	if c == "" {
		return "."
	}
	return path.Clean(c)
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

func hiddenPath(p string) bool {
	for _, part := range strings.Split(p, "/") {
		if hidden(part) {
			return true
		}
	}
	return false
}
