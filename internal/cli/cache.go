// internal/cli/cache.go
package loremaster

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var cacheClearYes bool

// cacheCmd groups embedding cache maintenance commands.
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the embedding cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show embedding cache statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := requireConfig()
		if err != nil {
			return err
		}
		manager, err := openManager(cfg)
		if err != nil {
			return err
		}
		st, err := manager.Stats()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Embedding cache: %s\n", st.Path)
		fmt.Fprintf(out, "  File exists:     %v\n", st.FileExists)
		fmt.Fprintf(out, "  Embeddings:      %d\n", st.Count)
		fmt.Fprintf(out, "  File size:       %d bytes\n", st.SizeBytes)
		fmt.Fprintf(out, "  Embedding model: %s\n", cfg.RAG.EmbeddingModel)
		fmt.Fprintf(out, "  Batch size:      %d\n", st.BatchSize)
		fmt.Fprintf(out, "  Batch delay:     %s\n", st.BatchDelay)
		return nil
	},
}

var cacheRemoveCmd = &cobra.Command{
	Use:   "remove <uuid>...",
	Short: "Remove cached embeddings for entries",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := requireConfig()
		if err != nil {
			return err
		}
		manager, err := openManager(cfg)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, id := range args {
			removed, err := manager.Remove(id)
			if err != nil {
				return err
			}
			if removed {
				fmt.Fprintf(out, "%s %s\n", successResult("removed"), id)
			} else {
				fmt.Fprintf(out, "%s %s\n", warningResult("not cached"), id)
			}
		}
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cached embedding",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cacheClearYes {
			return fmt.Errorf("refusing to clear the cache without --yes")
		}
		cfg, err := requireConfig()
		if err != nil {
			return err
		}
		cache, err := openCache(cfg)
		if err != nil {
			return err
		}
		if err := cache.Clear(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s cleared %s\n", successResult("OK"), cache.Path())
		return nil
	},
}

var cacheBackupCmd = &cobra.Command{
	Use:   "backup [path]",
	Short: "Copy the embedding cache to a backup file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := requireConfig()
		if err != nil {
			return err
		}
		cache, err := openCache(cfg)
		if err != nil {
			return err
		}
		target := cache.Path() + ".backup." + time.Now().Format("20060102-150405")
		if len(args) == 1 {
			target = args[0]
		}
		if err := cache.Backup(target); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s backup written to %s\n", successResult("OK"), target)
		return nil
	},
}

func init() {
	cacheClearCmd.Flags().BoolVarP(&cacheClearYes, "yes", "y", false, "confirm clearing the cache")
	cacheCmd.AddCommand(cacheStatsCmd, cacheRemoveCmd, cacheClearCmd, cacheBackupCmd)
	rootCmd.AddCommand(cacheCmd)
}
