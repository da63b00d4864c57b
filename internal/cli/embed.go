// internal/cli/embed.go
package loremaster

import (
	"context"
	"fmt"

	"github.com/mwiater/loremaster/internal/lore"
	"github.com/spf13/cobra"
)

// embedCmd fills the embedding cache for the given entries, or for every entry.
var embedCmd = &cobra.Command{
	Use:   "embed [uuid...]",
	Short: "Generate and cache embeddings for entries",
	Long:  `The 'embed' command generates embeddings for the named entries, or for every entry in the knowledge base when none are named. Entries that already have a vector for the configured model are skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := requireConfig()
		if err != nil {
			return err
		}
		svc, err := newServices(cfg)
		if err != nil {
			return err
		}

		ids := args
		if len(ids) == 0 {
			ids, err = allEntryIDs(svc.store)
			if err != nil {
				return err
			}
		}
		if len(ids) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No entries found.")
			return nil
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		result := svc.manager.Ensure(ctx, ids, cfg.RAG.EmbeddingModel)

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s %d of %d entries have embeddings (%s)\n", successResult("OK"), len(result.Vectors), len(ids), cfg.RAG.EmbeddingModel)
		for _, id := range result.Failed {
			fmt.Fprintf(out, "  %s %s\n", failedResult("failed"), id)
		}
		for _, id := range result.Unresolved {
			fmt.Fprintf(out, "  %s %s\n", warningResult("not found"), id)
		}
		if len(result.Failed) > 0 {
			return fmt.Errorf("%d embeddings could not be generated", len(result.Failed))
		}
		return nil
	},
}

// allEntryIDs lists every entry uuid under the knowledge base root.
func allEntryIDs(store *lore.Store) ([]string, error) {
	categories, err := store.Categories()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var ids []string
	for _, category := range append([]string{""}, categories...) {
		entries, err := store.EntriesInCategory(category)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.UUID == "" {
				continue
			}
			if _, dup := seen[e.UUID]; dup {
				continue
			}
			seen[e.UUID] = struct{}{}
			ids = append(ids, e.UUID)
		}
	}
	return ids, nil
}

func init() {
	rootCmd.AddCommand(embedCmd)
}
