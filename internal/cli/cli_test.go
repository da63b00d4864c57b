// internal/cli/cli_test.go
package loremaster

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mwiater/loremaster/internal/appconfig"
	"github.com/mwiater/loremaster/internal/embedstore"
	"github.com/mwiater/loremaster/internal/tui"
)

// writeConfig creates a JSON config pointing at a temporary data directory.
func writeConfig(t *testing.T, baseURL string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		t.Fatal(err)
	}
	cfg := map[string]any{
		"dataPath": dataDir,
		"logFile":  filepath.Join(dir, "loremaster.log"),
		"api": map[string]any{
			"baseURL": baseURL,
			"apiKey":  "test-key",
		},
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path, dataDir
}

// run executes the root command with args and returns its output.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	b := new(bytes.Buffer)
	rootCmd.SetOut(b)
	rootCmd.SetErr(b)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)
	err := rootCmd.Execute()
	return b.String(), err
}

func TestUnknownCommand(t *testing.T) {
	if _, err := run(t, "definitely-not-a-command"); err == nil {
		t.Fatal("expected an error for an unknown command")
	}
}

// TestChatCmd verifies that 'chat' loads the config and hands the stream
// consumer to the chat UI with options taken from the config.
func TestChatCmd(t *testing.T) {
	path, _ := writeConfig(t, "http://127.0.0.1:1/v1")

	originalStartGUI := startGUI
	defer func() { startGUI = originalStartGUI }()

	startCalled := false
	var received tui.Options
	startGUI = func(ctx context.Context, streamer tui.Streamer, opts tui.Options) error {
		startCalled = true
		received = opts
		if streamer == nil {
			t.Error("expected a streamer")
		}
		return nil
	}

	if _, err := run(t, "chat", "--config", path); err != nil {
		t.Fatalf("chat failed: %v", err)
	}
	if !startCalled {
		t.Fatal("expected startGUI to be invoked")
	}
	if !received.UseRAG {
		t.Error("expected retrieval to be enabled by default")
	}
	if received.Model != appconfig.DefaultChatModel {
		t.Errorf("model = %q, want %q", received.Model, appconfig.DefaultChatModel)
	}
	if GetConfig() == nil || GetConfig().ConfigPath != path {
		t.Fatalf("expected config loaded from %s, got %+v", path, GetConfig())
	}
}

func TestEntryAddListSearch(t *testing.T) {
	path, dataDir := writeConfig(t, "http://127.0.0.1:1/v1")

	out, err := run(t, "entry", "add", "--config", path, "--category", "people/heroes", "--title", "Aria Vale", "--content", "A ranger of the northern wilds", "--tag", "ranger")
	if err != nil {
		t.Fatalf("entry add failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Aria Vale") {
		t.Fatalf("unexpected add output: %s", out)
	}
	matches, _ := filepath.Glob(filepath.Join(dataDir, "people", "heroes", "*.json"))
	if len(matches) != 1 {
		t.Fatalf("expected one entry file, got %v", matches)
	}

	out, err = run(t, "entry", "list", "--config", path)
	if err != nil {
		t.Fatalf("entry list failed: %v", err)
	}
	if !strings.Contains(out, "people/heroes") || !strings.Contains(out, "1 entries") {
		t.Fatalf("unexpected list output: %s", out)
	}

	out, err = run(t, "entry", "search", "--config", path, "northern")
	if err != nil {
		t.Fatalf("entry search failed: %v", err)
	}
	if !strings.Contains(out, "Aria Vale") || !strings.Contains(out, "1 matches") {
		t.Fatalf("unexpected search output: %s", out)
	}
}

func TestCacheStatsAndClear(t *testing.T) {
	path, _ := writeConfig(t, "http://127.0.0.1:1/v1")

	out, err := run(t, "cache", "stats", "--config", path)
	if err != nil {
		t.Fatalf("cache stats failed: %v", err)
	}
	if !strings.Contains(out, "Embeddings:      0") {
		t.Fatalf("unexpected stats output: %s", out)
	}

	if _, err := run(t, "cache", "clear", "--config", path); err == nil {
		t.Fatal("expected clear without --yes to fail")
	}
	if _, err := run(t, "cache", "clear", "--config", path, "--yes"); err != nil {
		t.Fatalf("cache clear failed: %v", err)
	}
}

func TestCacheRemoveAndStatsThroughManager(t *testing.T) {
	path, dataDir := writeConfig(t, "http://127.0.0.1:1/v1")
	cache, err := embedstore.Open(filepath.Join(dataDir, "embeddings.json"))
	if err != nil {
		t.Fatal(err)
	}
	if err := cache.PutMany(map[string][]float64{"u-1": {1, 2}, "u-2": {3, 4}}, "m1"); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "cache", "stats", "--config", path)
	if err != nil {
		t.Fatalf("cache stats failed: %v", err)
	}
	for _, want := range []string{"Embeddings:      2", "Batch size:      10", "Batch delay:     1s"} {
		if !strings.Contains(out, want) {
			t.Fatalf("stats output missing %q: %s", want, out)
		}
	}

	out, err = run(t, "cache", "remove", "--config", path, "u-1", "ghost")
	if err != nil {
		t.Fatalf("cache remove failed: %v", err)
	}
	if !strings.Contains(out, "u-1") || !strings.Contains(out, "not cached") {
		t.Fatalf("unexpected remove output: %s", out)
	}

	out, err = run(t, "cache", "stats", "--config", path)
	if err != nil {
		t.Fatalf("cache stats failed: %v", err)
	}
	if !strings.Contains(out, "Embeddings:      1") {
		t.Fatalf("expected one remaining embedding: %s", out)
	}

	out, err = run(t, "entry", "list", "--config", path)
	if err != nil {
		t.Fatalf("entry list failed: %v", err)
	}
	if !strings.Contains(out, "0 entries") {
		t.Fatalf("cache file listed as an entry: %s", out)
	}
}

func TestPing(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hi"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	path, _ := writeConfig(t, srv.URL)
	out, err := run(t, "ping", "--config", path)
	if err != nil {
		t.Fatalf("ping failed: %v\n%s", err, out)
	}
	if auth != "Bearer test-key" {
		t.Errorf("authorization header = %q", auth)
	}
	if !strings.Contains(out, srv.URL) {
		t.Errorf("unexpected ping output: %s", out)
	}
}

func TestConfigInit(t *testing.T) {
	path, _ := writeConfig(t, "http://127.0.0.1:1/v1")
	target := filepath.Join(t.TempDir(), "generated.yaml")

	if _, err := run(t, "config", "init", "--config", path, target); err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	cfg, err := appconfig.Load(target)
	if err != nil {
		t.Fatalf("generated config does not load: %v", err)
	}
	if cfg.RAG.TopKRerank != appconfig.Default().RAG.TopKRerank {
		t.Errorf("unexpected topKRerank %d", cfg.RAG.TopKRerank)
	}
	if _, err := run(t, "config", "init", "--config", path, target); err == nil {
		t.Fatal("expected refusal to overwrite an existing file")
	}
}

func TestListCommands(t *testing.T) {
	var b bytes.Buffer
	runListCommands(&b, rootCmd)
	for _, want := range []string{"loremaster ask", "loremaster cache stats", "loremaster rag preview"} {
		if !strings.Contains(b.String(), want) {
			t.Errorf("command list missing %q:\n%s", want, b.String())
		}
	}
}
