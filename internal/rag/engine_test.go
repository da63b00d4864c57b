package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/mwiater/loremaster/internal/apiclient"
	"github.com/mwiater/loremaster/internal/appconfig"
	"github.com/mwiater/loremaster/internal/embedding"
	"github.com/mwiater/loremaster/internal/embedstore"
	"github.com/mwiater/loremaster/internal/lore"
)

// fakeUpstream scripts the remote API and records what the engine sent.
type fakeUpstream struct {
	mu          sync.Mutex
	failRerank  bool
	failChat    bool
	rerankOrder []int
	embedCalls  int
	rerankCalls int
	chatBodies  []chatBody
}

type chatBody struct {
	Model       string              `json:"model"`
	Messages    []apiclient.Message `json:"messages"`
	Temperature float64             `json:"temperature"`
	MaxTokens   int                 `json:"max_tokens"`
}

func vectorFor(text string) []float64 {
	switch {
	case strings.Contains(text, "alpha"):
		return []float64{1, 0}
	case strings.Contains(text, "beta"):
		return []float64{0, 1}
	default:
		return []float64{1, 0}
	}
}

func (f *fakeUpstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.URL.Path {
	case "/embeddings":
		f.embedCalls++
		var req struct {
			Input []string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		data := make([]map[string]any, len(req.Input))
		for i, text := range req.Input {
			data[i] = map[string]any{"index": i, "embedding": vectorFor(text)}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	case "/rerank":
		f.rerankCalls++
		if f.failRerank {
			http.Error(w, "rerank down", http.StatusBadGateway)
			return
		}
		results := make([]map[string]any, 0, len(f.rerankOrder))
		for i, idx := range f.rerankOrder {
			results = append(results, map[string]any{"index": idx, "relevance_score": 1 - float64(i)/10})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"results": results})
	case "/chat/completions":
		var body chatBody
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.chatBodies = append(f.chatBodies, body)
		if f.failChat {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"  ok answer  "},"finish_reason":"stop"}]}`)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeUpstream) lastSystemPrompt(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.chatBodies) == 0 {
		t.Fatal("no chat completion was issued")
	}
	return f.chatBodies[len(f.chatBodies)-1].Messages[0].Content
}

func newTestEngine(t *testing.T, upstream *fakeUpstream) (*Engine, *lore.Store) {
	t.Helper()
	server := httptest.NewServer(upstream)
	t.Cleanup(server.Close)

	dir := t.TempDir()
	store := lore.NewStore(filepath.Join(dir, "data"))
	seed := []struct {
		category string
		entry    lore.Entry
	}{
		{"characters", lore.Entry{UUID: "a", Title: "Knight Aria", Content: "alpha knight of the dawn", Tags: []string{"hero"}}},
		{"characters", lore.Entry{UUID: "b", Title: "Knight Bran", Content: "beta knight of the dusk"}},
		{"places", lore.Entry{UUID: "c", Title: "Knight Hall", Content: "beta hall where knights gather"}},
	}
	for _, s := range seed {
		if _, err := store.Create(s.category, s.entry); err != nil {
			t.Fatal(err)
		}
	}

	cfg := appconfig.Default()
	cfg.API.BaseURL = server.URL
	cfg.API.APIKey = "sk-test"
	client, err := apiclient.New(&cfg)
	if err != nil {
		t.Fatal(err)
	}
	cache, err := embedstore.Open(filepath.Join(dir, "embeddings.json"))
	if err != nil {
		t.Fatal(err)
	}
	manager := embedding.New(cache, client, store, embedding.WithBatchDelay(0))
	return New(store, manager, client, store.Root()), store
}

func TestScoreCandidatesOrdersBySimilarity(t *testing.T) {
	candidates := []lore.SearchResult{
		{Entry: lore.Entry{UUID: "orthogonal"}},
		{Entry: lore.Entry{UUID: "collinear"}},
		{Entry: lore.Entry{UUID: "diagonal"}},
		{Entry: lore.Entry{UUID: "no-vector"}},
		{Entry: lore.Entry{UUID: "wrong-dim"}},
		{Entry: lore.Entry{UUID: "collinear-2"}},
	}
	vectors := map[string][]float64{
		"orthogonal":  {0, 1},
		"collinear":   {2, 0},
		"diagonal":    {1, 1},
		"wrong-dim":   {1, 0, 0},
		"collinear-2": {5, 0},
	}

	scored := scoreCandidates(candidates, vectors, []float64{1, 0})
	if len(scored) != 4 {
		t.Fatalf("expected 4 scored candidates, got %d", len(scored))
	}
	want := []string{"collinear", "collinear-2", "diagonal", "orthogonal"}
	for i, id := range want {
		if scored[i].Entry.UUID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, scored[i].Entry.UUID)
		}
	}
	if scored[0].Score < 0.999 || scored[3].Score > 0.001 {
		t.Fatalf("unexpected scores %+v", scored)
	}
}

func TestCosineSimilarityGuards(t *testing.T) {
	if got := CosineSimilarity([]float64{0, 0}, []float64{1, 1}); got != 0 {
		t.Fatalf("zero vector: expected 0, got %f", got)
	}
	if got := CosineSimilarity([]float64{1}, []float64{1, 1}); got != 0 {
		t.Fatalf("dimension mismatch: expected 0, got %f", got)
	}
	if got := CosineSimilarity([]float64{1, 0}, []float64{-1, 0}); got > -0.999 {
		t.Fatalf("opposite vectors: expected -1, got %f", got)
	}
}

func TestAnswerFollowsRerankOrder(t *testing.T) {
	upstream := &fakeUpstream{rerankOrder: []int{1, 0}}
	engine, _ := newTestEngine(t, upstream)

	answer := engine.Answer(context.Background(), "knight", nil, Options{CategoryFilter: []string{"characters"}})
	if answer != "ok answer" {
		t.Fatalf("unexpected answer %q", answer)
	}
	prompt := upstream.lastSystemPrompt(t)
	if !strings.Contains(prompt, "【条目1：Knight Bran】") || !strings.Contains(prompt, "【条目2：Knight Aria】") {
		t.Fatalf("knowledge blocks not in rerank order:\n%s", prompt)
	}
	if !strings.Contains(prompt, "标签：hero") {
		t.Fatalf("expected tags line in prompt:\n%s", prompt)
	}
	if strings.Contains(prompt, "Knight Hall") {
		t.Fatalf("category filter ignored:\n%s", prompt)
	}

	body := upstream.chatBodies[0]
	if body.Temperature != 0.7 || body.MaxTokens != 2000 || body.Model != appconfig.DefaultChatModel {
		t.Fatalf("unexpected generation parameters %+v", body)
	}
}

func TestAnswerRerankFallback(t *testing.T) {
	upstream := &fakeUpstream{failRerank: true}
	engine, _ := newTestEngine(t, upstream)

	answer := engine.Answer(context.Background(), "knight", nil, Options{TopKRerank: 2})
	if answer != "ok answer" {
		t.Fatalf("expected answer despite rerank failure, got %q", answer)
	}
	if upstream.rerankCalls != 1 {
		t.Fatalf("expected one rerank attempt, got %d", upstream.rerankCalls)
	}
	prompt := upstream.lastSystemPrompt(t)
	// "a" is collinear with the query and must lead the similarity order.
	if !strings.Contains(prompt, "【条目1：Knight Aria】") {
		t.Fatalf("expected similarity order fallback:\n%s", prompt)
	}
	if strings.Contains(prompt, "【条目3") {
		t.Fatalf("fallback should keep only topKRerank entries:\n%s", prompt)
	}
}

func TestAnswerEmptyRecall(t *testing.T) {
	upstream := &fakeUpstream{}
	engine, _ := newTestEngine(t, upstream)

	answer := engine.Answer(context.Background(), "zzz_no_match_000", nil, DefaultOptions())
	if answer != "ok answer" {
		t.Fatalf("expected general-knowledge answer, got %q", answer)
	}
	if upstream.embedCalls != 0 || upstream.rerankCalls != 0 {
		t.Fatalf("expected no embed/rerank calls, got %d/%d", upstream.embedCalls, upstream.rerankCalls)
	}
	if prompt := upstream.lastSystemPrompt(t); prompt != generalPrompt {
		t.Fatalf("expected general prompt, got:\n%s", prompt)
	}
}

func TestAnswerEmptyQuery(t *testing.T) {
	upstream := &fakeUpstream{}
	engine, _ := newTestEngine(t, upstream)

	if got := engine.Answer(context.Background(), "   ", nil, DefaultOptions()); got != emptyQueryAnswer {
		t.Fatalf("unexpected answer %q", got)
	}
	if len(upstream.chatBodies) != 0 || upstream.embedCalls != 0 {
		t.Fatal("expected no API calls for an empty query")
	}
}

func TestAnswerGenerationFailure(t *testing.T) {
	upstream := &fakeUpstream{failChat: true, rerankOrder: []int{0}}
	engine, _ := newTestEngine(t, upstream)

	answer := engine.Answer(context.Background(), "knight", nil, DefaultOptions())
	if !strings.HasPrefix(answer, "生成答案时出现错误：") {
		t.Fatalf("expected generation error string, got %q", answer)
	}
}

func TestAnswerCancelledContext(t *testing.T) {
	upstream := &fakeUpstream{}
	engine, _ := newTestEngine(t, upstream)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	answer := engine.Answer(ctx, "knight", nil, DefaultOptions())
	if !strings.HasPrefix(answer, "抱歉，处理您的问题时出现了错误：") {
		t.Fatalf("expected user-facing error string, got %q", answer)
	}
}

func TestAnswerPassesRecentHistory(t *testing.T) {
	upstream := &fakeUpstream{rerankOrder: []int{0}}
	engine, _ := newTestEngine(t, upstream)

	var history []apiclient.Message
	for i := 0; i < 10; i++ {
		history = append(history, apiclient.Message{Role: "user", Content: fmt.Sprintf("turn %d", i)})
	}
	engine.Answer(context.Background(), "knight", history, DefaultOptions())

	msgs := upstream.chatBodies[0].Messages
	if len(msgs) != 10 {
		t.Fatalf("expected system + 8 history + query, got %d messages", len(msgs))
	}
	if msgs[1].Content != "turn 2" || msgs[8].Content != "turn 9" {
		t.Fatalf("unexpected history window: %+v", msgs[1:9])
	}
	if last := msgs[len(msgs)-1]; last.Role != "user" || last.Content != "knight" {
		t.Fatalf("query must be the final message, got %+v", last)
	}
}

func TestRecallCategoryFilter(t *testing.T) {
	engine, store := newTestEngine(t, &fakeUpstream{})
	ctx := context.Background()

	all, err := engine.Recall(ctx, "knight", nil, 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("expected 3 candidates, got %d (%v)", len(all), err)
	}

	places, err := engine.Recall(ctx, "knight", []string{"places"}, 0)
	if err != nil || len(places) != 1 || places[0].Entry.UUID != "c" {
		t.Fatalf("expected only the place, got %+v (%v)", places, err)
	}

	abs, err := filepath.Abs(filepath.Join(store.Root(), "characters"))
	if err != nil {
		t.Fatal(err)
	}
	chars, err := engine.Recall(ctx, "knight", []string{abs}, 0)
	if err != nil || len(chars) != 2 {
		t.Fatalf("expected absolute filter to match characters, got %+v (%v)", chars, err)
	}

	capped, err := engine.Recall(ctx, "knight", nil, 1)
	if err != nil || len(capped) != 1 {
		t.Fatalf("expected truncation to 1, got %d (%v)", len(capped), err)
	}
}

func TestBuildPromptGeneral(t *testing.T) {
	msgs := BuildPrompt("q", nil, nil, 8)
	if len(msgs) != 2 || msgs[0].Content != generalPrompt || msgs[1].Content != "q" {
		t.Fatalf("unexpected messages %+v", msgs)
	}
}

func TestRerankDocument(t *testing.T) {
	long := strings.Repeat("字", 600)
	doc := rerankDocument(lore.Entry{Title: "T", Content: long, Tags: []string{"x", "y"}})
	want := "T " + strings.Repeat("字", 500) + "... 标签: x, y"
	if doc != want {
		t.Fatalf("unexpected rerank document (len %d)", len([]rune(doc)))
	}
	if got := rerankDocument(lore.Entry{Title: "T", Content: "short"}); got != "T short" {
		t.Fatalf("unexpected short document %q", got)
	}
}

func TestCitations(t *testing.T) {
	var results []lore.SearchResult
	for i := 0; i < 7; i++ {
		results = append(results, lore.SearchResult{Entry: lore.Entry{Title: fmt.Sprintf("t%d", i), Content: strings.Repeat("a", 250)}})
	}
	citations := Citations(results, 5)
	if len(citations) != 5 {
		t.Fatalf("expected 5 citations, got %d", len(citations))
	}
	c := citations[0]
	if c.ID == "" || c.Source != "knowledge_base" || c.Score != 0.8 {
		t.Fatalf("unexpected citation %+v", c)
	}
	if len(c.Content) != 203 || !strings.HasSuffix(c.Content, "...") {
		t.Fatalf("expected 200-char excerpt, got %d chars", len(c.Content))
	}
	if citations[0].ID == citations[1].ID {
		t.Fatal("citation ids must be unique")
	}
}

func TestRunPreview(t *testing.T) {
	engine, _ := newTestEngine(t, &fakeUpstream{rerankOrder: []int{0}})

	var buf bytes.Buffer
	if err := RunPreview(context.Background(), engine, &buf, "knight", DefaultOptions()); err != nil {
		t.Fatalf("RunPreview failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"[RAG] recall: 3 candidates", "[RAG] final entries: 1", "【条目1："} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
	if err := RunPreview(context.Background(), engine, &buf, " ", DefaultOptions()); err == nil {
		t.Fatal("expected error for empty query")
	}
}
