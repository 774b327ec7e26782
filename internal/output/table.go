package output

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/shoplens/shoplens/internal/core"
	"github.com/shoplens/shoplens/internal/core/cache"
	"github.com/shoplens/shoplens/internal/core/executor"
)

// TableFormatter renders results as ASCII tables.
type TableFormatter struct{}

// FormatResponse renders the query data as indented JSON followed by a
// cost summary table when telemetry was observed.
func (f *TableFormatter) FormatResponse(resp *executor.Response) (string, error) {
	if resp == nil {
		return "", nil
	}

	var sb strings.Builder
	if resp.Data != nil {
		data, err := json.MarshalIndent(resp.Data, "", "  ")
		if err != nil {
			return "", err
		}
		sb.Write(data)
	}

	for _, gqlErr := range resp.Errors {
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString("error: " + gqlErr.Message)
	}

	if resp.Cost != nil {
		t := table.NewWriter()
		t.SetStyle(table.StyleRounded)
		t.AppendHeader(table.Row{"Requested", "Actual", "Available", "Restore/s", "Source"})
		row := table.Row{
			formatPoints(resp.Cost.RequestedQueryCost),
			formatPoints(resp.Cost.ActualQueryCost),
			"-", "-",
			sourceLabel(resp.FromCache),
		}
		if ts := resp.Cost.ThrottleStatus; ts != nil {
			row[2] = formatPoints(ts.CurrentlyAvailable)
			row[3] = formatPoints(ts.RestoreRate)
		}
		t.AppendRow(row)
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(t.Render())
	} else if resp.FromCache {
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString("(served from cache)")
	}

	return sb.String(), nil
}

// FormatPlans renders the plan table, marking the active tier.
func (f *TableFormatter) FormatPlans(current core.Plan, limits map[core.Plan]core.PlanLimits) (string, error) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"", "Plan", "Points/s", "Max Query Cost", "Restore/s"})

	for _, plan := range planOrder {
		limit, ok := limits[plan]
		if !ok {
			continue
		}
		t.AppendRow(table.Row{
			markerFor(plan, current),
			string(plan),
			formatPoints(limit.PointsPerSecond),
			formatPoints(limit.MaxSingleQueryCost),
			formatPoints(limit.RestoreRate),
		})
	}

	return t.Render(), nil
}

// FormatNotifications renders the event log newest first.
func (f *TableFormatter) FormatNotifications(events []core.NotificationEvent, unread int) (string, error) {
	if len(events) == 0 {
		return "No notifications", nil
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"ID", "Time", "Type", "Topic", "Status", "Message"})

	for _, event := range events {
		t.AppendRow(table.Row{
			shortID(event.ID),
			event.Timestamp.Format("2006-01-02 15:04:05"),
			string(event.Type),
			string(event.Topic),
			eventLabel(event),
			event.Message,
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", fmt.Sprintf("%d unread", unread)})

	return t.Render(), nil
}

// FormatCacheStats renders aggregate cache metrics.
func (f *TableFormatter) FormatCacheStats(stats cache.Stats) (string, error) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Entries", "Sanitized", "Avg Accesses", "Approx Size"})
	t.AppendRow(table.Row{
		stats.TotalEntries,
		stats.SanitizedEntries,
		fmt.Sprintf("%.1f", stats.AvgAccessCount),
		formatBytes(stats.ApproxSizeBytes),
	})
	return t.Render(), nil
}

// FormatThrottle renders the last observed bucket state.
func (f *TableFormatter) FormatThrottle(report ThrottleReport) (string, error) {
	if report.Status == nil {
		return fmt.Sprintf("No throttle telemetry observed yet (plan: %s)", report.Plan), nil
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Plan", "Available", "Maximum", "Restore/s", "Warn Below", "Approaching"})
	t.AppendRow(table.Row{
		string(report.Plan),
		formatPoints(report.Status.CurrentlyAvailable),
		formatPoints(report.Status.MaximumAvailable),
		formatPoints(report.Status.RestoreRate),
		formatPoints(report.WarningThreshold),
		report.Approaching,
	})
	return t.Render(), nil
}

func sourceLabel(fromCache bool) string {
	if fromCache {
		return "cache"
	}
	return "network"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatBytes(size int64) string {
	switch {
	case size >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(size)/(1<<20))
	case size >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(size)/(1<<10))
	default:
		return fmt.Sprintf("%d B", size)
	}
}
