package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/shoplens/shoplens/internal/config"
	"github.com/shoplens/shoplens/internal/observability"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the user configuration file",
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the user configuration file path",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(config.DefaultConfigPath())
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration file",
	Long: `Write the effective configuration to the user config path so it
can be edited. Refuses to overwrite an existing file unless --force is
given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, err := cmd.Flags().GetBool("force")
		if err != nil {
			return err
		}

		path := config.DefaultConfigPath()
		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}

		cfg, err := config.Load(cmd.Context())
		if err != nil {
			return err
		}

		data, err := yaml.Marshal(starterConfig(cfg))
		if err != nil {
			return err
		}
		header := "# shoplens configuration\n# Values here override the built-in defaults; environment\n# variables (SHOPLENS_*) override both.\n"

		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
		if err := os.WriteFile(path, append([]byte(header), data...), 0600); err != nil {
			return err
		}

		observability.CLILogger.Info("Config file written", zap.String("path", path))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configInitCmd)

	configInitCmd.Flags().Bool("force", false, "Overwrite an existing config file")
}

// starterConfig renders the effective configuration as plain YAML keys,
// matching the names the loader reads back.
func starterConfig(cfg *config.Config) map[string]any {
	return map[string]any{
		"shopify": map[string]any{
			"shop":         cfg.Shopify.Shop,
			"api_version":  cfg.Shopify.APIVersion,
			"access_token": cfg.Shopify.AccessToken,
			"storefront":   cfg.Shopify.Storefront,
			"max_attempts": cfg.Shopify.MaxAttempts,
		},
		"plan": map[string]any{
			"tier":               cfg.Plan.Tier,
			"warning_percentage": cfg.Plan.WarningPercentage,
		},
		"cache": map[string]any{
			"max_entries":    cfg.Cache.MaxEntries,
			"shards":         cfg.Cache.Shards,
			"sweep_interval": cfg.Cache.SweepInterval.String(),
			"default_ttl":    cfg.Cache.DefaultTTL.String(),
		},
		"notifications": map[string]any{
			"max": cfg.Notifications.Max,
		},
		"server": map[string]any{
			"host": cfg.Server.Host,
			"port": cfg.Server.Port,
		},
		"store": map[string]any{
			"driver": cfg.Store.Driver,
			"path":   cfg.Store.Path,
		},
		"logging": map[string]any{
			"level":   cfg.Logging.Level,
			"profile": cfg.Logging.Profile,
		},
	}
}
