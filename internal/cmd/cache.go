package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shoplens/shoplens/internal/observability"
	"github.com/shoplens/shoplens/internal/output"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the response cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate cache statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		formatValue, err := cmd.Flags().GetString("output")
		if err != nil {
			return err
		}
		format, err := output.ParseFormat(formatValue)
		if err != nil {
			return err
		}

		comps, err := buildComponents(cmd.Context())
		if err != nil {
			return err
		}
		defer comps.Close()

		rendered, err := output.NewFormatter(format).FormatCacheStats(comps.Cache.Stats())
		if err != nil {
			return err
		}
		if rendered != "" {
			fmt.Println(rendered)
		}
		return nil
	},
}

var cacheInvalidateCmd = &cobra.Command{
	Use:   "invalidate <prefix>",
	Short: "Remove cached entries whose keys match a prefix",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prefix := strings.TrimSpace(args[0])
		if prefix == "" {
			return fmt.Errorf("prefix is required")
		}

		comps, err := buildComponents(cmd.Context())
		if err != nil {
			return err
		}
		defer comps.Close()

		removed := comps.Cache.Invalidate(prefix)
		observability.CLILogger.Info("Cache entries invalidated",
			zap.String("prefix", prefix),
			zap.Int("removed", removed))
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		comps, err := buildComponents(cmd.Context())
		if err != nil {
			return err
		}
		defer comps.Close()

		comps.Cache.Clear()
		observability.CLILogger.Info("Cache cleared")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheInvalidateCmd)
	cacheCmd.AddCommand(cacheClearCmd)

	cacheStatsCmd.Flags().String("output", "table", "Output format: table, json, markdown")
}
