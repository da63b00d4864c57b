// internal/cli/entry.go
package loremaster

import (
	"fmt"
	"io"
	"strings"

	"github.com/mwiater/loremaster/internal/lore"
	"github.com/mwiater/loremaster/internal/util"
	"github.com/spf13/cobra"
)

var (
	entryAddCategory string
	entryAddTitle    string
	entryAddContent  string
	entryAddTags     []string
)

// entryCmd groups knowledge base entry commands.
var entryCmd = &cobra.Command{
	Use:   "entry",
	Short: "List, search and add knowledge base entries",
}

var entryListCmd = &cobra.Command{
	Use:   "list [category]",
	Short: "List entries, optionally within one category",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := requireConfig()
		if err != nil {
			return err
		}
		store := openStore(cfg)
		out := cmd.OutOrStdout()

		categories := args
		if len(categories) == 0 {
			all, err := store.Categories()
			if err != nil {
				return err
			}
			categories = append([]string{""}, all...)
		}

		total := 0
		for _, category := range categories {
			entries, err := store.EntriesInCategory(category)
			if err != nil {
				return err
			}
			for _, e := range entries {
				if e.UUID == "" {
					continue
				}
				printEntry(out, lore.SearchResult{Entry: e, CategoryPath: category})
				total++
			}
		}
		fmt.Fprintf(out, "%d entries\n", total)
		return nil
	},
}

var entrySearchCmd = &cobra.Command{
	Use:   "search <text>",
	Short: "Keyword search over titles, content and tags",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := requireConfig()
		if err != nil {
			return err
		}
		results, err := openStore(cfg).Search(strings.Join(args, " "))
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, r := range results {
			printEntry(out, r)
		}
		fmt.Fprintf(out, "%d matches\n", len(results))
		return nil
	},
}

var entryAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a new entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := requireConfig()
		if err != nil {
			return err
		}
		entry := lore.NewEntry(entryAddTitle, entryAddContent, entryAddTags)
		created, err := openStore(cfg).Create(entryAddCategory, entry)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", successResult("created"), created.Title, created.UUID)
		return nil
	},
}

func printEntry(out io.Writer, r lore.SearchResult) {
	category := r.CategoryPath
	if category == "" || category == "." {
		category = "/"
	}
	fmt.Fprintf(out, "%s  %-24s %s\n", r.Entry.UUID, category, util.Excerpt(r.Entry.Title, 60))
}

func init() {
	entryAddCmd.Flags().StringVar(&entryAddCategory, "category", "", "category path relative to the data directory")
	entryAddCmd.Flags().StringVar(&entryAddTitle, "title", "", "entry title")
	entryAddCmd.Flags().StringVar(&entryAddContent, "content", "", "entry body")
	entryAddCmd.Flags().StringSliceVar(&entryAddTags, "tag", nil, "entry tag (repeatable)")
	_ = entryAddCmd.MarkFlagRequired("title")

	entryCmd.AddCommand(entryListCmd, entrySearchCmd, entryAddCmd)
	rootCmd.AddCommand(entryCmd)
}
