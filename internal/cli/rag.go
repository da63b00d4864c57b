// internal/cli/rag.go
package loremaster

import (
	"context"
	"strings"

	"github.com/mwiater/loremaster/internal/rag"
	"github.com/spf13/cobra"
)

var previewCategories []string

// ragCmd groups retrieval pipeline commands.
var ragCmd = &cobra.Command{
	Use:   "rag",
	Short: "Retrieval pipeline utilities",
}

// ragPreviewCmd shows each retrieval stage for a query without generating an answer.
var ragPreviewCmd = &cobra.Command{
	Use:   "preview <query>",
	Short: "Preview recall, similarity and rerank for a query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := requireConfig()
		if err != nil {
			return err
		}
		svc, err := newServices(cfg)
		if err != nil {
			return err
		}

		opts := rag.OptionsFromConfig(cfg)
		if len(previewCategories) > 0 {
			opts.CategoryFilter = previewCategories
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return rag.RunPreview(ctx, svc.engine, cmd.OutOrStdout(), strings.Join(args, " "), opts)
	},
}

func init() {
	ragPreviewCmd.Flags().StringSliceVar(&previewCategories, "category", nil, "restrict recall to these category prefixes")
	ragCmd.AddCommand(ragPreviewCmd)
	rootCmd.AddCommand(ragCmd)
}
