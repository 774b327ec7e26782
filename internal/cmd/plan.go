package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shoplens/shoplens/internal/core"
	"github.com/shoplens/shoplens/internal/observability"
	"github.com/shoplens/shoplens/internal/output"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Manage the rate-limit plan tier",
	Long: `Inspect or switch the Shopify plan tier used for rate-limit
thresholds. The selected tier persists across invocations.`,
}

var planGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the active plan tier",
	RunE: func(cmd *cobra.Command, args []string) error {
		comps, err := buildComponents(cmd.Context())
		if err != nil {
			return err
		}
		defer comps.Close()

		current := comps.Registry.CurrentPlan()
		limits := map[core.Plan]core.PlanLimits{current: comps.Registry.RateLimits(current)}
		return renderPlans(cmd, current, limits)
	},
}

var planListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all plan tiers and their limits",
	RunE: func(cmd *cobra.Command, args []string) error {
		comps, err := buildComponents(cmd.Context())
		if err != nil {
			return err
		}
		defer comps.Close()

		return renderPlans(cmd, comps.Registry.CurrentPlan(), comps.Registry.AllPlans())
	},
}

var planSetCmd = &cobra.Command{
	Use:   "set <tier>",
	Short: "Switch the active plan tier",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		comps, err := buildComponents(ctx)
		if err != nil {
			return err
		}
		defer comps.Close()

		plan := core.Plan(strings.ToLower(strings.TrimSpace(args[0])))
		if err := comps.Registry.SetPlan(plan); err != nil {
			return err
		}
		if err := comps.Store.SetSetting(ctx, "plan", string(plan)); err != nil {
			return err
		}

		observability.CLILogger.Info("Plan updated", zap.String("plan", string(plan)))
		return renderPlans(cmd, plan, map[core.Plan]core.PlanLimits{plan: comps.Registry.RateLimits(plan)})
	},
}

func init() {
	rootCmd.AddCommand(planCmd)
	planCmd.AddCommand(planGetCmd)
	planCmd.AddCommand(planListCmd)
	planCmd.AddCommand(planSetCmd)

	planCmd.PersistentFlags().String("output", "table", "Output format: table, json, markdown")
}

func renderPlans(cmd *cobra.Command, current core.Plan, limits map[core.Plan]core.PlanLimits) error {
	formatValue, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	format, err := output.ParseFormat(formatValue)
	if err != nil {
		return err
	}

	rendered, err := output.NewFormatter(format).FormatPlans(current, limits)
	if err != nil {
		return err
	}
	if rendered != "" {
		fmt.Println(rendered)
	}
	return nil
}
