package plans

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shoplens/shoplens/internal/core"
)

type stubEmitter struct {
	events []core.NotificationEvent
}

func (s *stubEmitter) Emit(eventType core.EventType, topic core.EventTopic, message string, details map[string]any) core.NotificationEvent {
	event := core.NotificationEvent{Type: eventType, Topic: topic, Message: message, Details: details}
	s.events = append(s.events, event)
	return event
}

func TestWarningThresholdDefaults(t *testing.T) {
	registry, err := NewRegistry(core.PlanStandard, nil)
	require.NoError(t, err)

	require.Equal(t, float64(80), registry.WarningThreshold(core.PlanStandard, 0))
	require.Equal(t, float64(50), registry.WarningThreshold(core.PlanStandard, 50))
	require.Equal(t, float64(1600), registry.WarningThreshold(core.PlanEnterprise, 0))
}

func TestCheckApproaching(t *testing.T) {
	registry, err := NewRegistry(core.PlanStandard, nil)
	require.NoError(t, err)

	status := core.ThrottleStatus{MaximumAvailable: 1000, CurrentlyAvailable: 79, RestoreRate: 100}
	require.True(t, registry.CheckApproaching(status, core.PlanStandard))

	status.CurrentlyAvailable = 81
	require.False(t, registry.CheckApproaching(status, core.PlanStandard))

	// Exactly at the threshold is not yet approaching.
	status.CurrentlyAvailable = 80
	require.False(t, registry.CheckApproaching(status, core.PlanStandard))
}

func TestRateLimitsUnknownPlanFallsBack(t *testing.T) {
	registry, err := NewRegistry(core.PlanStandard, nil)
	require.NoError(t, err)

	limits := registry.RateLimits(core.Plan("basic"))
	require.Equal(t, float64(100), limits.PointsPerSecond)
}

func TestSetPlanEmitsPlanChanged(t *testing.T) {
	emitter := &stubEmitter{}
	registry, err := NewRegistry(core.PlanStandard, emitter)
	require.NoError(t, err)

	require.NoError(t, registry.SetPlan(core.PlanPlus))
	require.Equal(t, core.PlanPlus, registry.CurrentPlan())
	require.Len(t, emitter.events, 1)
	require.Equal(t, core.TopicPlanChanged, emitter.events[0].Topic)
	require.Equal(t, "plus", emitter.events[0].Details["plan"])
	require.Equal(t, float64(1000), emitter.events[0].Details["points_per_second"])

	// Setting the same plan again is a no-op for events.
	require.NoError(t, registry.SetPlan(core.PlanPlus))
	require.Len(t, emitter.events, 1)
}

func TestSetPlanRejectsUnknownTier(t *testing.T) {
	registry, err := NewRegistry(core.PlanStandard, nil)
	require.NoError(t, err)

	require.Error(t, registry.SetPlan(core.Plan("gold")))
	require.Equal(t, core.PlanStandard, registry.CurrentPlan())
}

func TestNewRegistryRejectsUnknownInitialPlan(t *testing.T) {
	_, err := NewRegistry(core.Plan("gold"), nil)
	require.Error(t, err)
}
