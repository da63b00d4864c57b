// internal/cli/chat.go
package loremaster

import (
	"context"

	"github.com/mwiater/loremaster/internal/tui"
	"github.com/spf13/cobra"
)

var startGUI = tui.StartGUI

var (
	chatCategories []string
	chatNoRAG      bool
)

// chatCmd represents the 'chat' command.
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long:  `The 'chat' command starts an interactive, streaming chat session grounded in the knowledge base.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := requireConfig()
		if err != nil {
			return err
		}
		svc, err := newServices(cfg)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		filter := chatCategories
		if len(filter) == 0 {
			filter = cfg.RAG.CategoryFilter
		}
		return startGUI(ctx, svc.consumer, tui.Options{
			UseRAG:         !chatNoRAG,
			CategoryFilter: filter,
			Model:          cfg.RAG.ChatModel,
			Temperature:    cfg.RAG.Temperature,
			MaxTokens:      cfg.RAG.MaxTokens,
			Debug:          cfg.Debug,
		})
	},
}

func init() {
	chatCmd.Flags().StringSliceVar(&chatCategories, "category", nil, "restrict recall to these category prefixes")
	chatCmd.Flags().BoolVar(&chatNoRAG, "no-rag", false, "chat without consulting the knowledge base")
	rootCmd.AddCommand(chatCmd)
}
