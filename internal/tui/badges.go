// internal/tui/badges.go
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ragStatus reports whether answers are grounded in the knowledge base.
type ragStatus string

const (
	ragStatusOff ragStatus = "off"
	ragStatusOn  ragStatus = "on"
)

func deriveRAGStatus(opts Options) ragStatus {
	if opts.UseRAG {
		return ragStatusOn
	}
	return ragStatusOff
}

func formatRAGIndicator(status ragStatus) string {
	switch status {
	case ragStatusOn:
		return "Knowledge Base: on"
	default:
		return "Knowledge Base: off"
	}
}

// renderRAGBadge returns a Lipgloss-styled badge string for the retrieval status.
func renderRAGBadge(status ragStatus) string {
	badgeStyle := lipgloss.NewStyle().Background(lipgloss.Color("229")).Foreground(lipgloss.Color("0")).Padding(0, 1).MarginLeft(1)
	return badgeStyle.Render(formatRAGIndicator(status))
}

// renderFilterBadge lists the category prefixes recall is restricted to.
func renderFilterBadge(filter []string) string {
	label := "Categories: all"
	if len(filter) > 0 {
		label = fmt.Sprintf("Categories: %s", strings.Join(filter, ", "))
	}
	badgeStyle := lipgloss.NewStyle().Background(lipgloss.Color("255")).Foreground(lipgloss.Color("0")).Padding(0, 1).MarginLeft(1)
	return badgeStyle.Render(label)
}
