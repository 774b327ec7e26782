package output

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shoplens/shoplens/internal/core"
	"github.com/shoplens/shoplens/internal/core/cache"
	"github.com/shoplens/shoplens/internal/core/executor"
)

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat("table")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	format, err = ParseFormat("JSON")
	require.NoError(t, err)
	require.Equal(t, FormatJSON, format)

	format, err = ParseFormat("")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	_, err = ParseFormat("csv")
	require.Error(t, err)
}

func TestFormatResponseTable(t *testing.T) {
	resp := &executor.Response{
		Data: map[string]any{"shop": map[string]any{"name": "demo"}},
		Cost: &core.Cost{
			RequestedQueryCost: 10,
			ActualQueryCost:    8,
			ThrottleStatus: &core.ThrottleStatus{
				MaximumAvailable:   1000,
				CurrentlyAvailable: 950,
				RestoreRate:        100,
			},
		},
	}

	rendered, err := (&TableFormatter{}).FormatResponse(resp)
	require.NoError(t, err)
	require.Contains(t, rendered, "demo")
	require.Contains(t, rendered, "950")
	require.Contains(t, rendered, "network")
}

func TestFormatResponseJSON(t *testing.T) {
	resp := &executor.Response{
		Data:      map[string]any{"ok": true},
		FromCache: true,
	}

	rendered, err := (&JSONFormatter{Indent: true}).FormatResponse(resp)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(rendered), &decoded))
	require.Equal(t, true, decoded["from_cache"])
}

func TestFormatPlansMarksCurrent(t *testing.T) {
	limits := map[core.Plan]core.PlanLimits{
		core.PlanStandard: {PointsPerSecond: 100, MaxSingleQueryCost: 1000, RestoreRate: 100},
		core.PlanPlus:     {PointsPerSecond: 1000, MaxSingleQueryCost: 10000, RestoreRate: 1000},
	}

	rendered, err := (&TableFormatter{}).FormatPlans(core.PlanPlus, limits)
	require.NoError(t, err)
	require.Contains(t, rendered, "standard")
	require.Contains(t, rendered, "plus")

	var marked string
	for _, line := range strings.Split(rendered, "\n") {
		if strings.Contains(line, "*") {
			marked = line
		}
	}
	require.Contains(t, marked, "plus")
}

func TestFormatNotifications(t *testing.T) {
	events := []core.NotificationEvent{
		{
			ID:        "3f2a9c1e-0000-0000-0000-000000000000",
			Type:      core.EventWarning,
			Topic:     core.TopicRateLimitApproaching,
			Message:   "available points 79 below threshold 80",
			Timestamp: time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			ID:        "7b1d4e2f-0000-0000-0000-000000000000",
			Type:      core.EventError,
			Topic:     core.TopicRateLimitExceeded,
			Message:   "throttled",
			Timestamp: time.Date(2025, 8, 1, 12, 1, 0, 0, time.UTC),
			Read:      true,
		},
	}

	rendered, err := (&TableFormatter{}).FormatNotifications(events, 1)
	require.NoError(t, err)
	require.Contains(t, rendered, "3f2a9c1e")
	require.Contains(t, rendered, "rate_limit_approaching")
	require.Contains(t, strings.ToLower(rendered), "1 unread")

	rendered, err = (&MarkdownFormatter{}).FormatNotifications(events, 1)
	require.NoError(t, err)
	require.Contains(t, rendered, "| 3f2a9c1e |")
	require.Contains(t, rendered, "**Unread**: 1")

	rendered, err = (&TableFormatter{}).FormatNotifications(nil, 0)
	require.NoError(t, err)
	require.Equal(t, "No notifications", rendered)
}

func TestFormatCacheStats(t *testing.T) {
	stats := cache.Stats{
		TotalEntries:     3,
		SanitizedEntries: 1,
		AvgAccessCount:   2.5,
		ApproxSizeBytes:  2048,
	}

	rendered, err := (&TableFormatter{}).FormatCacheStats(stats)
	require.NoError(t, err)
	require.Contains(t, rendered, "2.5")
	require.Contains(t, rendered, "2.0 KiB")

	rendered, err = (&JSONFormatter{}).FormatCacheStats(stats)
	require.NoError(t, err)
	require.Contains(t, rendered, "\"total_entries\":3")
}

func TestFormatThrottle(t *testing.T) {
	report := ThrottleReport{
		Status: &core.ThrottleStatus{
			MaximumAvailable:   1000,
			CurrentlyAvailable: 75,
			RestoreRate:        100,
		},
		Plan:             core.PlanStandard,
		WarningThreshold: 80,
		Approaching:      true,
	}

	rendered, err := (&TableFormatter{}).FormatThrottle(report)
	require.NoError(t, err)
	require.Contains(t, rendered, "75")
	require.Contains(t, rendered, "true")

	rendered, err = (&TableFormatter{}).FormatThrottle(ThrottleReport{Plan: core.PlanStandard})
	require.NoError(t, err)
	require.Contains(t, rendered, "No throttle telemetry")
}

func TestNewFormatterSelectsImplementation(t *testing.T) {
	require.IsType(t, &TableFormatter{}, NewFormatter(FormatTable))
	require.IsType(t, &JSONFormatter{}, NewFormatter(FormatJSON))
	require.IsType(t, &MarkdownFormatter{}, NewFormatter(FormatMarkdown))
}
