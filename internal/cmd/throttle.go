package cmd

import (
	"fmt"
	"strings"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"

	"github.com/shoplens/shoplens/internal/output"
)

var throttleCmd = &cobra.Command{
	Use:   "throttle",
	Short: "Show the last observed throttle state",
	Long: `Show the most recent point-bucket telemetry together with the
active plan's warning threshold. Telemetry is only observed while
queries run, so a fresh process reports none.`,
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

		plan := comps.Registry.CurrentPlan()
		report := output.ThrottleReport{
			Plan:             plan,
			WarningThreshold: comps.Registry.WarningThreshold(plan, 0),
		}
		if comps.Executor != nil {
			report.Status = comps.Executor.LastThrottleStatus()
		}
		if report.Status != nil {
			report.Approaching = comps.Registry.CheckApproaching(*report.Status, plan)
		}

		if format == output.FormatTable {
			fmt.Print(ascii.DrawBox(strings.Join(throttleLines(report), "\n"), 0))
			return nil
		}

		rendered, err := output.NewFormatter(format).FormatThrottle(report)
		if err != nil {
			return err
		}
		if rendered != "" {
			fmt.Println(rendered)
		}
		return nil
	},
}

func throttleLines(report output.ThrottleReport) []string {
	lines := []string{
		fmt.Sprintf("plan: %s", report.Plan),
		fmt.Sprintf("warn below: %.0f points", report.WarningThreshold),
	}
	if report.Status == nil {
		return append(lines, "telemetry: none observed yet")
	}
	return append(lines,
		fmt.Sprintf("available: %.0f / %.0f", report.Status.CurrentlyAvailable, report.Status.MaximumAvailable),
		fmt.Sprintf("restore rate: %.0f/s", report.Status.RestoreRate),
		fmt.Sprintf("approaching limit: %t", report.Approaching),
	)
}

func init() {
	rootCmd.AddCommand(throttleCmd)

	throttleCmd.Flags().String("output", "table", "Output format: table, json, markdown")
}
