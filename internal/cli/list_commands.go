// internal/cli/list_commands.go
package loremaster

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// commandsCmd prints the command tree in a two-column layout.
var commandsCmd = &cobra.Command{
	Use:   "commands",
	Short: "List all commands and subcommands",
	Run: func(cmd *cobra.Command, args []string) {
		runListCommands(cmd.OutOrStdout(), rootCmd)
	},
}

func runListCommands(out io.Writer, root *cobra.Command) {
	rows := collectCommandData(root, "", "")

	width := 0
	for _, row := range rows {
		width = max(width, len(row.path))
	}

	fmt.Fprintln(out, "Commands and Subcommands:")
	for _, row := range rows {
		if strings.Contains(row.path, "completion") || strings.Contains(row.path, "help") {
			continue
		}
		fmt.Fprintf(out, "  %s%s%s\n", row.path, strings.Repeat(" ", width-len(row.path)+2), row.description)
	}
}

type commandInfo struct {
	path        string
	description string
}

// collectCommandData flattens the command tree into indented path/description pairs.
func collectCommandData(cmd *cobra.Command, parent, indent string) []commandInfo {
	fullPath := cmd.Name()
	if parent != "" {
		fullPath = parent + " " + cmd.Name()
	}
	rows := []commandInfo{{path: indent + fullPath, description: cmd.Short}}
	for _, sub := range cmd.Commands() {
		rows = append(rows, collectCommandData(sub, fullPath, indent+"  ")...)
	}
	return rows
}

func init() {
	rootCmd.AddCommand(commandsCmd)
}
