package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ObiAU/newssearch/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the summary cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print cache statistics as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := cache.Open(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		stats, err := store.Stats(cmd.Context())
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	},
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove expired and least recently used entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := cache.Open(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		removed, err := store.Evict(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries\n", removed)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd, cachePruneCmd)
	rootCmd.AddCommand(cacheCmd)
}
