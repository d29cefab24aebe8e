package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/boxrender/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the document cache",
}

var cacheKeyCmd = &cobra.Command{
	Use:   "key URL...",
	Short: "Print the cache key of each URL",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, u := range args {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", cache.Key(u), u)
		}
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheKeyCmd)
	rootCmd.AddCommand(cacheCmd)
}
