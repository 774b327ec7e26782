package output

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shoplens/shoplens/internal/core"
	"github.com/shoplens/shoplens/internal/core/cache"
	"github.com/shoplens/shoplens/internal/core/executor"
)

// MarkdownFormatter renders results as markdown tables.
type MarkdownFormatter struct{}

// FormatResponse renders the query data as a fenced JSON block with a
// cost table when telemetry was observed.
func (f *MarkdownFormatter) FormatResponse(resp *executor.Response) (string, error) {
	if resp == nil {
		return "", nil
	}

	var sb strings.Builder
	if resp.Data != nil {
		data, err := json.MarshalIndent(resp.Data, "", "  ")
		if err != nil {
			return "", err
		}
		sb.WriteString("```json\n")
		sb.Write(data)
		sb.WriteString("\n```\n")
	}

	for _, gqlErr := range resp.Errors {
		sb.WriteString(fmt.Sprintf("- **error**: %s\n", escapeMarkdownCell(gqlErr.Message)))
	}

	if resp.Cost != nil {
		sb.WriteString("\n| Requested | Actual | Available | Restore/s | Source |\n")
		sb.WriteString("|-----------|--------|-----------|-----------|--------|\n")
		available, restore := "-", "-"
		if ts := resp.Cost.ThrottleStatus; ts != nil {
			available = formatPoints(ts.CurrentlyAvailable)
			restore = formatPoints(ts.RestoreRate)
		}
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s |\n",
			formatPoints(resp.Cost.RequestedQueryCost),
			formatPoints(resp.Cost.ActualQueryCost),
			available,
			restore,
			sourceLabel(resp.FromCache),
		))
	} else if resp.FromCache {
		sb.WriteString("\n*(served from cache)*\n")
	}

	return sb.String(), nil
}

// FormatPlans renders the plan table, marking the active tier.
func (f *MarkdownFormatter) FormatPlans(current core.Plan, limits map[core.Plan]core.PlanLimits) (string, error) {
	var sb strings.Builder
	sb.WriteString("| | Plan | Points/s | Max Query Cost | Restore/s |\n")
	sb.WriteString("|-|------|----------|----------------|-----------|\n")

	for _, plan := range planOrder {
		limit, ok := limits[plan]
		if !ok {
			continue
		}
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s |\n",
			markerFor(plan, current),
			string(plan),
			formatPoints(limit.PointsPerSecond),
			formatPoints(limit.MaxSingleQueryCost),
			formatPoints(limit.RestoreRate),
		))
	}

	return sb.String(), nil
}

// FormatNotifications renders the event log as a markdown table.
func (f *MarkdownFormatter) FormatNotifications(events []core.NotificationEvent, unread int) (string, error) {
	if len(events) == 0 {
		return "No notifications\n", nil
	}

	var sb strings.Builder
	sb.WriteString("| ID | Time | Type | Topic | Status | Message |\n")
	sb.WriteString("|----|------|------|-------|--------|---------|\n")

	for _, event := range events {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s |\n",
			shortID(event.ID),
			event.Timestamp.Format("2006-01-02 15:04:05"),
			escapeMarkdownCell(string(event.Type)),
			escapeMarkdownCell(string(event.Topic)),
			eventLabel(event),
			escapeMarkdownCell(event.Message),
		))
	}
	sb.WriteString(fmt.Sprintf("\n**Unread**: %d\n", unread))

	return sb.String(), nil
}

// FormatCacheStats renders aggregate cache metrics as a markdown table.
func (f *MarkdownFormatter) FormatCacheStats(stats cache.Stats) (string, error) {
	var sb strings.Builder
	sb.WriteString("| Entries | Sanitized | Avg Accesses | Approx Size |\n")
	sb.WriteString("|---------|-----------|--------------|-------------|\n")
	sb.WriteString(fmt.Sprintf("| %d | %d | %.1f | %s |\n",
		stats.TotalEntries,
		stats.SanitizedEntries,
		stats.AvgAccessCount,
		formatBytes(stats.ApproxSizeBytes),
	))
	return sb.String(), nil
}

// FormatThrottle renders the last observed bucket state.
func (f *MarkdownFormatter) FormatThrottle(report ThrottleReport) (string, error) {
	if report.Status == nil {
		return fmt.Sprintf("No throttle telemetry observed yet (plan: %s)\n", report.Plan), nil
	}

	var sb strings.Builder
	sb.WriteString("| Plan | Available | Maximum | Restore/s | Warn Below | Approaching |\n")
	sb.WriteString("|------|-----------|---------|-----------|------------|-------------|\n")
	sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %t |\n",
		string(report.Plan),
		formatPoints(report.Status.CurrentlyAvailable),
		formatPoints(report.Status.MaximumAvailable),
		formatPoints(report.Status.RestoreRate),
		formatPoints(report.WarningThreshold),
		report.Approaching,
	))
	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}
