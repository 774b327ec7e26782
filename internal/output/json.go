package output

import (
	"encoding/json"

	"github.com/shoplens/shoplens/internal/core"
	"github.com/shoplens/shoplens/internal/core/cache"
	"github.com/shoplens/shoplens/internal/core/executor"
)

// JSONFormatter renders results as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatResponse renders the full response envelope as JSON.
func (f *JSONFormatter) FormatResponse(resp *executor.Response) (string, error) {
	if resp == nil {
		return "", nil
	}
	return f.marshal(resp)
}

// FormatPlans renders the plan table as JSON.
func (f *JSONFormatter) FormatPlans(current core.Plan, limits map[core.Plan]core.PlanLimits) (string, error) {
	return f.marshal(map[string]any{
		"current": current,
		"plans":   limits,
	})
}

// FormatNotifications renders the event log as JSON.
func (f *JSONFormatter) FormatNotifications(events []core.NotificationEvent, unread int) (string, error) {
	return f.marshal(map[string]any{
		"notifications": events,
		"unread":        unread,
	})
}

// FormatCacheStats renders aggregate cache metrics as JSON.
func (f *JSONFormatter) FormatCacheStats(stats cache.Stats) (string, error) {
	return f.marshal(stats)
}

// FormatThrottle renders the last observed bucket state as JSON.
func (f *JSONFormatter) FormatThrottle(report ThrottleReport) (string, error) {
	return f.marshal(report)
}

func (f *JSONFormatter) marshal(value any) (string, error) {
	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(value, "", "  ")
	} else {
		data, err = json.Marshal(value)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}
