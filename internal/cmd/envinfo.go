package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/shoplens/shoplens/internal/config"
	"github.com/shoplens/shoplens/internal/observability"
)

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display comprehensive environment, configuration, and version information.",
	Run: func(cmd *cobra.Command, args []string) {
		version := crucible.GetVersion()

		observability.CLILogger.Info("=== ShopLens Environment Information ===")
		observability.CLILogger.Info("")

		// Application Info
		identity := GetAppIdentity()
		observability.CLILogger.Info("Application:")
		observability.CLILogger.Info("  Name:       " + identity.BinaryName)
		observability.CLILogger.Info("  Version:    " + versionInfo.Version)
		observability.CLILogger.Info("  Commit:     " + versionInfo.Commit)
		observability.CLILogger.Info("  Built:      " + versionInfo.BuildDate)
		observability.CLILogger.Info("")

		// SSOT Info
		observability.CLILogger.Info("SSOT:")
		observability.CLILogger.Info("  Gofulmen:   "+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
		observability.CLILogger.Info("  Crucible:   "+version.Crucible, zap.String("crucible_version", version.Crucible))
		observability.CLILogger.Info("")

		// Runtime Info
		observability.CLILogger.Info("Runtime:")
		observability.CLILogger.Info("  Go Version: "+runtime.Version(), zap.String("go_version", runtime.Version()))
		observability.CLILogger.Info("  GOOS:       "+runtime.GOOS, zap.String("goos", runtime.GOOS))
		observability.CLILogger.Info("  GOARCH:     "+runtime.GOARCH, zap.String("goarch", runtime.GOARCH))
		observability.CLILogger.Info(fmt.Sprintf("  NumCPU:     %d", runtime.NumCPU()), zap.Int("num_cpu", runtime.NumCPU()))
		observability.CLILogger.Info("")

		cfg, err := config.Load(cmd.Context())
		if err != nil {
			observability.CLILogger.Warn("Config load failed", zap.Error(err))
			return
		}

		// Configuration
		observability.CLILogger.Info("Configuration:")
		observability.CLILogger.Info("  Server Host:    "+cfg.Server.Host, zap.String("host", cfg.Server.Host))
		observability.CLILogger.Info(fmt.Sprintf("  Server Port:    %d", cfg.Server.Port), zap.Int("port", cfg.Server.Port))
		observability.CLILogger.Info("  Log Level:      "+cfg.Logging.Level, zap.String("log_level", cfg.Logging.Level))
		observability.CLILogger.Info("  Log Profile:    "+cfg.Logging.Profile, zap.String("log_profile", cfg.Logging.Profile))
		observability.CLILogger.Info("  DB Driver:      "+cfg.Store.Driver, zap.String("db_driver", cfg.Store.Driver))
		if strings.TrimSpace(cfg.Store.URL) != "" {
			observability.CLILogger.Info("  DB URL:         "+cfg.Store.URL, zap.String("db_url", cfg.Store.URL))
		} else {
			observability.CLILogger.Info("  DB Path:        "+cfg.Store.Path, zap.String("db_path", cfg.Store.Path))
		}
		observability.CLILogger.Info(fmt.Sprintf("  Metrics Port:   %d", cfg.Metrics.Port), zap.Int("metrics_port", cfg.Metrics.Port))
		observability.CLILogger.Info("  Config File:    "+config.DefaultConfigPath(), zap.String("config_file", config.DefaultConfigPath()))
		observability.CLILogger.Info("")

		// Shop Configuration
		observability.CLILogger.Info("Shopify:")
		shop := strings.TrimSpace(cfg.Shopify.Shop)
		if shop == "" {
			shop = "(not set)"
		}
		observability.CLILogger.Info("  Shop:           "+shop, zap.String("shop", shop))
		observability.CLILogger.Info("  API Version:    "+cfg.Shopify.APIVersion, zap.String("api_version", cfg.Shopify.APIVersion))
		observability.CLILogger.Info(fmt.Sprintf("  Storefront:     %t", cfg.Shopify.Storefront), zap.Bool("storefront", cfg.Shopify.Storefront))
		if strings.TrimSpace(cfg.Shopify.AccessToken) != "" {
			observability.CLILogger.Info("  Access Token:   (set)")
		} else {
			observability.CLILogger.Info("  Access Token:   (not set)")
		}
		observability.CLILogger.Info(fmt.Sprintf("  Max Attempts:   %d", cfg.Shopify.MaxAttempts), zap.Int("max_attempts", cfg.Shopify.MaxAttempts))
		observability.CLILogger.Info("")

		// Rate-Limit Plan
		observability.CLILogger.Info("Plan:")
		observability.CLILogger.Info("  Tier:               "+cfg.Plan.Tier, zap.String("plan_tier", cfg.Plan.Tier))
		observability.CLILogger.Info(fmt.Sprintf("  Warning Percentage: %.0f", cfg.Plan.WarningPercentage))
		observability.CLILogger.Info("")

		// Response Cache
		observability.CLILogger.Info("Cache:")
		observability.CLILogger.Info(fmt.Sprintf("  Max Entries:    %d", cfg.Cache.MaxEntries), zap.Int("cache_max_entries", cfg.Cache.MaxEntries))
		observability.CLILogger.Info(fmt.Sprintf("  Shards:         %d", cfg.Cache.Shards))
		observability.CLILogger.Info("  Sweep Interval: " + cfg.Cache.SweepInterval.String())
		observability.CLILogger.Info("  Default TTL:    " + cfg.Cache.DefaultTTL.String())
		observability.CLILogger.Info("")

		observability.CLILogger.Info("=== End Environment Information ===")
	},
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}
