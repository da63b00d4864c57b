// internal/tui/tui.go
// Package tui provides the interactive chat interface for LoreMaster.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mwiater/loremaster/internal/apiclient"
	"github.com/mwiater/loremaster/internal/logging"
	"github.com/mwiater/loremaster/internal/rag"
	"github.com/mwiater/loremaster/internal/streaming"
	"github.com/mwiater/loremaster/internal/util"
)

const citationTitleWidth = 40

// Streamer starts a streaming chat session.
type Streamer interface {
	Stream(ctx context.Context, req streaming.Request) <-chan streaming.Chunk
}

// Options configures a chat session.
type Options struct {
	UseRAG         bool
	CategoryFilter []string
	Model          string
	Temperature    float64
	MaxTokens      int
	Debug          bool
}

// model is the Bubble Tea model of the chat screen.
type model struct {
	ctx              context.Context
	streamer         Streamer
	opts             Options
	ragStatus        ragStatus
	isLoading        bool
	err              error
	textArea         textarea.Model
	viewport         viewport.Model
	spinner          spinner.Model
	chatHistory      []apiclient.Message
	responseBuf      strings.Builder
	status           string
	citations        []rag.Citation
	finishReason     string
	stream           <-chan streaming.Chunk
	cancelStream     context.CancelFunc
	width, height    int
	requestStartTime time.Time
}

// initialModel creates the chat model with its input, spinner and viewport.
func initialModel(ctx context.Context, streamer Streamer, opts Options) *model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	ta := textarea.New()
	ta.Placeholder = "Ask about your world..."
	ta.Focus()
	ta.Prompt = "Ask LoreMaster: "
	ta.ShowLineNumbers = false
	ta.CharLimit = -1
	ta.SetHeight(1)
	ta.KeyMap.InsertNewline.SetEnabled(false)

	return &model{
		ctx:       ctx,
		streamer:  streamer,
		opts:      opts,
		ragStatus: deriveRAGStatus(opts),
		spinner:   s,
		textArea:  ta,
		viewport:  viewport.New(100, 5),
	}
}

// streamChunkMsg carries one chunk of the active session.
type streamChunkMsg struct{ chunk streaming.Chunk }

// streamEndMsg is sent once the session's channel is closed.
type streamEndMsg struct{}

// streamErr is sent when the session reports an error chunk.
type streamErr struct{ error }

// tickMsg keeps the elapsed timer moving while a response is pending.
type tickMsg time.Time

// waitForChunk reads the next chunk of ch.
func waitForChunk(ch <-chan streaming.Chunk) tea.Cmd {
	return func() tea.Msg {
		chunk, ok := <-ch
		if !ok {
			return streamEndMsg{}
		}
		if chunk.Type == streaming.Error {
			return streamErr{error: errors.New(chunk.Content)}
		}
		return streamChunkMsg{chunk: chunk}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*100, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init starts the spinner animation.
func (m *model) Init() tea.Cmd {
	return m.spinner.Tick
}

// startStream opens a session for input, with the prior turns as history.
func (m *model) startStream(input string) tea.Cmd {
	ctx, cancel := context.WithCancel(m.ctx)
	history := append([]apiclient.Message(nil), m.chatHistory...)
	m.chatHistory = append(m.chatHistory, apiclient.Message{Role: "user", Content: input})
	m.cancelStream = cancel
	m.citations = nil
	m.status = ""
	m.finishReason = ""
	m.err = nil
	m.isLoading = true
	m.requestStartTime = time.Now()

	logging.LogEvent("[tui] query=%q rag=%v history=%d", input, m.opts.UseRAG, len(history))
	m.stream = m.streamer.Stream(ctx, streaming.Request{
		Query:          input,
		History:        history,
		UseRAG:         m.opts.UseRAG,
		CategoryFilter: m.opts.CategoryFilter,
		Model:          m.opts.Model,
		Temperature:    m.opts.Temperature,
		MaxTokens:      m.opts.MaxTokens,
	})
	return waitForChunk(m.stream)
}

// finishResponse moves the buffered response into the history.
func (m *model) finishResponse() {
	if m.responseBuf.Len() > 0 {
		m.chatHistory = append(m.chatHistory, apiclient.Message{
			Role:    "assistant",
			Content: m.responseBuf.String(),
		})
		m.responseBuf.Reset()
	}
	if m.cancelStream != nil {
		m.cancelStream()
		m.cancelStream = nil
	}
	m.stream = nil
	m.isLoading = false
	m.textArea.Focus()
	m.viewport.GotoBottom()
}

// applyChunk folds one chunk into the model.
func (m *model) applyChunk(chunk streaming.Chunk) {
	switch chunk.Type {
	case streaming.TextDelta:
		m.responseBuf.WriteString(chunk.Content)
		m.viewport.GotoBottom()
	case streaming.RetrievalStart:
		m.status = chunk.Content
	case streaming.Citations:
		m.citations = chunk.Citations
	case streaming.RetrievalComplete:
		m.status = fmt.Sprintf("Found %d related entries", len(m.citations))
	case streaming.RetrievalError:
		m.status = fmt.Sprintf("Retrieval failed: %s", chunk.Content)
	case streaming.Complete:
		m.finishReason = chunk.FinishReason
	}
}

// Update is the central update function for the Bubble Tea model.
func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			if m.cancelStream != nil {
				m.cancelStream()
			}
			return m, tea.Quit
		case "esc":
			if m.isLoading && m.cancelStream != nil {
				m.cancelStream()
				return m, nil
			}
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.textArea.SetWidth(msg.Width - 3)
		headerHeight := 3
		footerHeight := 5
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - headerHeight - footerHeight

	case streamChunkMsg:
		m.applyChunk(msg.chunk)
		if m.stream == nil {
			return m, nil
		}
		return m, waitForChunk(m.stream)

	case streamEndMsg:
		m.finishResponse()
		return m, nil

	case streamErr:
		m.err = msg.error
		logging.LogError("[tui] stream failed: %v", msg.error)
		m.finishResponse()
		return m, nil

	case tickMsg:
		if m.isLoading {
			return m, tickCmd()
		}
		return m, nil
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	if !m.isLoading {
		m.textArea, cmd = m.textArea.Update(msg)
		cmds = append(cmds, cmd)

		if msg, ok := msg.(tea.KeyMsg); ok && msg.String() == "enter" {
			userInput := strings.TrimSpace(m.textArea.Value())
			if userInput != "" {
				m.textArea.Reset()
				cmds = append(cmds, m.spinner.Tick, m.startStream(userInput), tickCmd())
			}
		}
	}

	if m.isLoading {
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// View renders the chat screen.
func (m *model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var builder strings.Builder

	headerStyle := lipgloss.NewStyle().Background(lipgloss.Color("62")).Foreground(lipgloss.Color("230")).Padding(0, 1)
	labelStyle := lipgloss.NewStyle().Background(lipgloss.Color("0")).Foreground(lipgloss.Color("255")).Padding(0, 1)

	modelName := m.opts.Model
	if modelName == "" {
		modelName = "default"
	}
	header := lipgloss.JoinHorizontal(lipgloss.Top,
		labelStyle.Render("LoreMaster"),
		headerStyle.Render(fmt.Sprintf("Model: %s", modelName)),
		renderRAGBadge(m.ragStatus),
		renderFilterBadge(m.opts.CategoryFilter),
	)
	help := lipgloss.NewStyle().Render(" (esc to stop or quit, ctrl+c to exit)")
	builder.WriteString(header + help + "\n\n")

	var historyBuilder strings.Builder
	userStyle := lipgloss.NewStyle().Bold(true)
	assistantStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("5"))

	for _, msg := range m.chatHistory {
		role := userStyle.Render("You: ")
		if msg.Role == "assistant" {
			role = assistantStyle.Render("LoreMaster: ")
		}
		historyBuilder.WriteString(m.wrapTurn(role, msg.Content) + "\n")
	}
	if m.responseBuf.Len() > 0 {
		historyBuilder.WriteString(m.wrapTurn(assistantStyle.Render("LoreMaster: "), m.responseBuf.String()))
	}

	m.viewport.SetContent(historyBuilder.String())
	builder.WriteString(m.viewport.View())

	if len(m.citations) > 0 {
		builder.WriteString("\n" + renderCitations(m.citations))
	}

	if m.err != nil {
		errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
		builder.WriteString("\n" + errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	}

	if m.isLoading {
		timer := fmt.Sprintf("%.1f", time.Since(m.requestStartTime).Seconds())
		status := m.status
		if status == "" {
			status = "LoreMaster is thinking..."
		}
		builder.WriteString(fmt.Sprintf("\n%s %s %ss", m.spinner.View(), status, timer))
	} else {
		builder.WriteString("\n" + m.textArea.View())
	}

	if m.opts.Debug && m.finishReason != "" {
		metaStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
		builder.WriteString("\n" + metaStyle.Render(fmt.Sprintf("  >>> [finish_reason: %s] [citations: %d]", m.finishReason, len(m.citations))))
	}

	return builder.String()
}

func (m *model) wrapTurn(role, content string) string {
	width := m.width - lipgloss.Width(role) - 2
	if width < 10 {
		width = 10
	}
	wrapped := lipgloss.NewStyle().Width(width).Render(content)
	return lipgloss.JoinHorizontal(lipgloss.Top, role, wrapped)
}

// renderCitations lists the titles of the entries backing the current answer.
func renderCitations(citations []rag.Citation) string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	titles := make([]string, len(citations))
	for i, c := range citations {
		titles[i] = fmt.Sprintf("[%d] %s", i+1, util.Excerpt(c.Title, citationTitleWidth))
	}
	return style.Render("Sources: " + strings.Join(titles, "  "))
}

// StartGUI runs the interactive chat until the user quits or ctx ends.
func StartGUI(ctx context.Context, streamer Streamer, opts Options) error {
	if streamer == nil {
		return errors.New("tui: no chat stream available")
	}
	m := initialModel(ctx, streamer, opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("running chat: %w", err)
	}
	return nil
}
