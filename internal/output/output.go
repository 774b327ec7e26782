package output

import (
	"fmt"
	"strings"

	"github.com/shoplens/shoplens/internal/core"
	"github.com/shoplens/shoplens/internal/core/cache"
	"github.com/shoplens/shoplens/internal/core/executor"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// ThrottleReport bundles the last observed bucket state with the plan
// context needed to interpret it.
type ThrottleReport struct {
	Status           *core.ThrottleStatus `json:"status"`
	Plan             core.Plan            `json:"plan"`
	WarningThreshold float64              `json:"warning_threshold"`
	Approaching      bool                 `json:"approaching"`
}

// Formatter renders access-layer results.
type Formatter interface {
	FormatResponse(resp *executor.Response) (string, error)
	FormatPlans(current core.Plan, limits map[core.Plan]core.PlanLimits) (string, error)
	FormatNotifications(events []core.NotificationEvent, unread int) (string, error)
	FormatCacheStats(stats cache.Stats) (string, error)
	FormatThrottle(report ThrottleReport) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown):
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}

// planOrder fixes the row order for plan tables, cheapest tier first.
var planOrder = []core.Plan{
	core.PlanStandard,
	core.PlanAdvanced,
	core.PlanPlus,
	core.PlanEnterprise,
}

func formatPoints(value float64) string {
	trimmed := strings.TrimRight(fmt.Sprintf("%.2f", value), "0")
	return strings.TrimSuffix(trimmed, ".")
}

func eventLabel(event core.NotificationEvent) string {
	switch {
	case event.Dismissed:
		return "dismissed"
	case event.Read:
		return "read"
	default:
		return "unread"
	}
}

func markerFor(plan, current core.Plan) string {
	if plan == current {
		return "*"
	}
	return ""
}
