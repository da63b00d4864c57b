// internal/tui/tui_test.go
package tui

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mwiater/loremaster/internal/rag"
	"github.com/mwiater/loremaster/internal/streaming"
)

// fakeStreamer replays a fixed set of chunks and records every request.
type fakeStreamer struct {
	chunks   []streaming.Chunk
	requests []streaming.Request
}

func (f *fakeStreamer) Stream(ctx context.Context, req streaming.Request) <-chan streaming.Chunk {
	f.requests = append(f.requests, req)
	ch := make(chan streaming.Chunk, len(f.chunks))
	for _, c := range f.chunks {
		ch <- c
	}
	close(ch)
	return ch
}

// drain runs the read command chain until the stream reports its end.
func drain(t *testing.T, m *model) {
	t.Helper()
	for i := 0; i < 50 && m.stream != nil; i++ {
		msg := waitForChunk(m.stream)()
		next, _ := m.Update(msg)
		m = next.(*model)
	}
	if m.stream != nil {
		t.Fatalf("stream did not finish")
	}
}

func sendInput(m *model, text string) *model {
	m.textArea.SetValue(text)
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(*model)
}

func TestChatTurnWithCitations(t *testing.T) {
	streamer := &fakeStreamer{chunks: []streaming.Chunk{
		{Type: streaming.RetrievalStart, Content: "searching"},
		{Type: streaming.Citations, Citations: []rag.Citation{{ID: "c1", Title: "The Iron Keep"}}},
		{Type: streaming.RetrievalComplete},
		{Type: streaming.TextDelta, Content: "The keep "},
		{Type: streaming.TextDelta, Content: "fell."},
		{Type: streaming.Complete, FinishReason: "stop"},
	}}
	m := initialModel(context.Background(), streamer, Options{UseRAG: true, CategoryFilter: []string{"places"}, Debug: true})
	_, _ = m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})

	m = sendInput(m, "What happened to the keep?")
	if !m.isLoading {
		t.Fatalf("expected loading after sending a message")
	}
	if len(streamer.requests) != 1 {
		t.Fatalf("expected one stream request, got %d", len(streamer.requests))
	}
	req := streamer.requests[0]
	if req.Query != "What happened to the keep?" || !req.UseRAG || len(req.History) != 0 {
		t.Fatalf("unexpected request: %+v", req)
	}
	if len(req.CategoryFilter) != 1 || req.CategoryFilter[0] != "places" {
		t.Fatalf("category filter not forwarded: %v", req.CategoryFilter)
	}

	drain(t, m)

	if m.isLoading {
		t.Fatalf("expected loading to stop after the stream ended")
	}
	if len(m.chatHistory) != 2 {
		t.Fatalf("expected user and assistant turns, got %v", m.chatHistory)
	}
	if got := m.chatHistory[1]; got.Role != "assistant" || got.Content != "The keep fell." {
		t.Fatalf("unexpected assistant turn: %+v", got)
	}
	if m.finishReason != "stop" {
		t.Fatalf("finish reason = %q", m.finishReason)
	}

	view := m.View()
	for _, want := range []string{"The Iron Keep", "Knowledge Base: on", "Categories: places", "finish_reason: stop"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestSecondTurnCarriesHistory(t *testing.T) {
	streamer := &fakeStreamer{chunks: []streaming.Chunk{
		{Type: streaming.TextDelta, Content: "answer"},
		{Type: streaming.Complete, FinishReason: "stop"},
	}}
	m := initialModel(context.Background(), streamer, Options{})
	_, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})

	m = sendInput(m, "first")
	drain(t, m)
	m = sendInput(m, "second")
	drain(t, m)

	if len(streamer.requests) != 2 {
		t.Fatalf("expected two requests, got %d", len(streamer.requests))
	}
	history := streamer.requests[1].History
	if len(history) != 2 || history[0].Content != "first" || history[1].Content != "answer" {
		t.Fatalf("unexpected history on second turn: %+v", history)
	}
}

func TestStreamErrorIsShown(t *testing.T) {
	streamer := &fakeStreamer{chunks: []streaming.Chunk{
		{Type: streaming.TextDelta, Content: "partial"},
		{Type: streaming.Error, Content: "stream stalled"},
	}}
	m := initialModel(context.Background(), streamer, Options{})
	_, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})

	m = sendInput(m, "hello")
	drain(t, m)

	if m.err == nil || !strings.Contains(m.err.Error(), "stream stalled") {
		t.Fatalf("expected stream error, got %v", m.err)
	}
	if last := m.chatHistory[len(m.chatHistory)-1]; last.Content != "partial" {
		t.Fatalf("expected partial response kept, got %+v", last)
	}
	if !strings.Contains(m.View(), "Error: stream stalled") {
		t.Fatalf("expected error in view")
	}
}

func TestKeys(t *testing.T) {
	m := initialModel(context.Background(), &fakeStreamer{}, Options{})

	if m.View() != "Initializing..." {
		t.Fatalf("expected initializing view before the first resize")
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if cmd == nil {
		t.Fatalf("expected quit command when idle")
	}

	cancelled := false
	m.isLoading = true
	m.cancelStream = func() { cancelled = true }
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if cmd != nil || !cancelled {
		t.Fatalf("expected esc to cancel the running stream without quitting")
	}

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatalf("expected quit command on ctrl+c")
	}
}

func TestEmptyInputIgnored(t *testing.T) {
	streamer := &fakeStreamer{}
	m := initialModel(context.Background(), streamer, Options{})
	_, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})

	m = sendInput(m, "   ")
	if m.isLoading || len(streamer.requests) != 0 {
		t.Fatalf("blank input should not start a stream")
	}
}

func TestStartGUIRequiresStreamer(t *testing.T) {
	if err := StartGUI(context.Background(), nil, Options{}); err == nil {
		t.Fatalf("expected error without a streamer")
	}
}
