package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shoplens/shoplens/internal/core"
	"github.com/shoplens/shoplens/internal/core/executor"
	"github.com/shoplens/shoplens/internal/observability"
	"github.com/shoplens/shoplens/internal/output"
)

var queryCmd = &cobra.Command{
	Use:   "query <operation>",
	Short: "Execute a GraphQL operation",
	Long: `Execute a GraphQL operation against the configured shop.

The operation is passed as a single argument, or read from stdin when
the argument is "-". Throttled responses are retried with exponential
backoff; cost telemetry is recorded and surfaced in the output.

Examples:
  # Run an inline query
  shoplens query '{ shop { name } }'

  # Pipe a query from a file, with variables
  shoplens query - < order.graphql --variables '{"id":"gid://shopify/Order/1"}'

  # Cache the result for ten minutes
  shoplens query '{ shop { name } }' --cache-key shop/name --ttl 10m`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)

	queryCmd.Flags().String("variables", "", "Operation variables as a JSON object")
	queryCmd.Flags().String("cache-key", "", "Cache the response under this key")
	queryCmd.Flags().Duration("ttl", 0, "Cache TTL (requires --cache-key)")
	queryCmd.Flags().String("category", "", "Cache category: config, operational, analytics, temporary")
	queryCmd.Flags().String("refresh", "", "Refresh policy: never, on_expire, background, always")
	queryCmd.Flags().StringSlice("sanitize", nil, "Field paths stripped before caching (e.g. customer.email)")
	queryCmd.Flags().Bool("no-cache", false, "Skip cache lookup for this call")
	queryCmd.Flags().String("output", "table", "Output format: table, json, markdown")
	queryCmd.Flags().String("out", "", "Write output to file instead of stdout")
}

func runQuery(cmd *cobra.Command, args []string) error {
	operation, err := resolveOperation(args[0])
	if err != nil {
		return err
	}

	variablesRaw, err := cmd.Flags().GetString("variables")
	if err != nil {
		return err
	}
	variables, err := parseVariables(variablesRaw)
	if err != nil {
		return err
	}

	opts, err := resolveQueryOptions(cmd)
	if err != nil {
		return err
	}

	formatValue, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	format, err := output.ParseFormat(formatValue)
	if err != nil {
		return err
	}

	outPath, err := cmd.Flags().GetString("out")
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	startedAt := time.Now()
	comps, err := buildComponents(ctx)
	if err != nil {
		return err
	}
	defer comps.Close()

	if comps.Executor == nil {
		return errors.New("no shop configured: set shopify.shop and shopify.access_token")
	}
	if opts != nil && opts.TTL <= 0 && opts.RefreshPolicy != core.RefreshNever {
		opts.TTL = comps.DefaultTTL
	}

	resp, err := comps.Executor.Execute(ctx, operation, variables, opts)
	if err != nil {
		return err
	}

	rendered, err := output.NewFormatter(format).FormatResponse(resp)
	if err != nil {
		return err
	}

	sink, err := openSink(outPath)
	if err != nil {
		return err
	}
	defer sink.close() // nolint:errcheck // best-effort cleanup

	if rendered != "" {
		fmt.Fprintln(sink.writer, rendered)
	}

	if format != output.FormatJSON {
		observability.CLILogger.Info("Query complete",
			zap.Bool("from_cache", resp.FromCache),
			zap.Duration("elapsed", time.Since(startedAt)),
		)
	}
	return nil
}

func resolveOperation(arg string) (string, error) {
	if arg == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read operation from stdin: %w", err)
		}
		arg = string(data)
	}

	operation := strings.TrimSpace(arg)
	if operation == "" {
		return "", errors.New("graphql operation is required")
	}
	return operation, nil
}

func parseVariables(raw string) (map[string]any, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}

	var variables map[string]any
	if err := json.Unmarshal([]byte(trimmed), &variables); err != nil {
		return nil, fmt.Errorf("variables must be a JSON object: %w", err)
	}
	return variables, nil
}

func resolveQueryOptions(cmd *cobra.Command) (*executor.Options, error) {
	cacheKey, err := cmd.Flags().GetString("cache-key")
	if err != nil {
		return nil, err
	}
	ttl, err := cmd.Flags().GetDuration("ttl")
	if err != nil {
		return nil, err
	}
	category, err := cmd.Flags().GetString("category")
	if err != nil {
		return nil, err
	}
	refresh, err := cmd.Flags().GetString("refresh")
	if err != nil {
		return nil, err
	}
	sanitize, err := cmd.Flags().GetStringSlice("sanitize")
	if err != nil {
		return nil, err
	}
	noCache, err := cmd.Flags().GetBool("no-cache")
	if err != nil {
		return nil, err
	}

	cacheKey = strings.TrimSpace(cacheKey)
	if cacheKey == "" {
		if ttl != 0 || category != "" || refresh != "" || len(sanitize) > 0 {
			return nil, errors.New("--ttl, --category, --refresh, and --sanitize require --cache-key")
		}
		return nil, nil
	}

	return &executor.Options{
		CacheKey:       cacheKey,
		TTL:            ttl,
		Category:       core.CacheCategory(strings.ToLower(strings.TrimSpace(category))),
		RefreshPolicy:  core.RefreshPolicy(strings.ToLower(strings.TrimSpace(refresh))),
		SanitizeFields: sanitize,
		SkipCache:      noCache,
	}, nil
}
