package plans

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/shoplens/shoplens/internal/core"
)

// DefaultWarningPercentage is the threshold percentage used when a caller
// does not override it.
const DefaultWarningPercentage = 80

// Emitter receives plan change events. Satisfied by notify.Notifier.
type Emitter interface {
	Emit(eventType core.EventType, topic core.EventTopic, message string, details map[string]any) core.NotificationEvent
}

// defaultLimits holds the published capacity per plan tier.
var defaultLimits = map[core.Plan]core.PlanLimits{
	core.PlanStandard:   {PointsPerSecond: 100, MaxSingleQueryCost: 1000, RestoreRate: 100},
	core.PlanAdvanced:   {PointsPerSecond: 200, MaxSingleQueryCost: 1000, RestoreRate: 200},
	core.PlanPlus:       {PointsPerSecond: 1000, MaxSingleQueryCost: 10000, RestoreRate: 1000},
	core.PlanEnterprise: {PointsPerSecond: 2000, MaxSingleQueryCost: 10000, RestoreRate: 2000},
}

// Registry maps plan tiers to rate-limit capacity and computes warning
// thresholds. It is an explicitly constructed instance; callers inject it
// wherever threshold decisions are made.
type Registry struct {
	mu      sync.RWMutex
	limits  map[core.Plan]core.PlanLimits
	current core.Plan
	emitter Emitter
}

// NewRegistry returns a registry seeded with the published plan limits.
// The emitter may be nil when plan change events are not needed.
func NewRegistry(initial core.Plan, emitter Emitter) (*Registry, error) {
	if initial == "" {
		initial = core.PlanStandard
	}
	if !core.ValidPlan(initial) {
		return nil, fmt.Errorf("unknown plan tier: %s", initial)
	}

	limits := make(map[core.Plan]core.PlanLimits, len(defaultLimits))
	for plan, limit := range defaultLimits {
		limits[plan] = limit
	}

	return &Registry{
		limits:  limits,
		current: initial,
		emitter: emitter,
	}, nil
}

// RateLimits returns the capacity for the given plan. An unknown plan
// falls back to the standard tier.
func (r *Registry) RateLimits(plan core.Plan) core.PlanLimits {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit, ok := r.limits[normalizePlan(plan)]; ok {
		return limit
	}
	return r.limits[core.PlanStandard]
}

// WarningThreshold computes the point level below which a bucket is
// considered to be approaching its limit. The percentage defaults to
// DefaultWarningPercentage when zero.
func (r *Registry) WarningThreshold(plan core.Plan, percentage float64) float64 {
	if percentage <= 0 {
		percentage = DefaultWarningPercentage
	}
	limits := r.RateLimits(plan)
	return math.Floor(limits.PointsPerSecond * percentage / 100)
}

// CheckApproaching reports whether the throttle status has dropped below
// the warning threshold for the plan.
func (r *Registry) CheckApproaching(status core.ThrottleStatus, plan core.Plan) bool {
	return status.CurrentlyAvailable < r.WarningThreshold(plan, 0)
}

// CurrentPlan returns the active plan tier.
func (r *Registry) CurrentPlan() core.Plan {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// SetPlan switches the active plan tier and emits a PlanChanged event
// carrying the new limits.
func (r *Registry) SetPlan(plan core.Plan) error {
	plan = normalizePlan(plan)
	if !core.ValidPlan(plan) {
		return fmt.Errorf("unknown plan tier: %s", plan)
	}

	r.mu.Lock()
	previous := r.current
	r.current = plan
	limits := r.limits[plan]
	emitter := r.emitter
	r.mu.Unlock()

	if emitter != nil && previous != plan {
		emitter.Emit(core.EventInfo, core.TopicPlanChanged,
			fmt.Sprintf("plan changed from %s to %s", previous, plan),
			map[string]any{
				"previous_plan":         string(previous),
				"plan":                  string(plan),
				"points_per_second":     limits.PointsPerSecond,
				"max_single_query_cost": limits.MaxSingleQueryCost,
				"restore_rate":          limits.RestoreRate,
			})
	}

	return nil
}

// AllPlans returns a copy of the full plan table.
func (r *Registry) AllPlans() map[core.Plan]core.PlanLimits {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[core.Plan]core.PlanLimits, len(r.limits))
	for plan, limit := range r.limits {
		out[plan] = limit
	}
	return out
}

func normalizePlan(plan core.Plan) core.Plan {
	return core.Plan(strings.ToLower(strings.TrimSpace(string(plan))))
}
