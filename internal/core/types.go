package core

import "time"

// Plan identifies a Shopify subscription tier.
type Plan string

const (
	PlanStandard   Plan = "standard"
	PlanAdvanced   Plan = "advanced"
	PlanPlus       Plan = "plus"
	PlanEnterprise Plan = "enterprise"
)

// PlanLimits describes the rate-limit capacity of a plan tier.
type PlanLimits struct {
	PointsPerSecond    float64 `json:"points_per_second"`
	MaxSingleQueryCost float64 `json:"max_single_query_cost"`
	RestoreRate        float64 `json:"restore_rate"`
}

// ThrottleStatus is the point-bucket state reported by the API on every
// response. It is immutable per response; only the most recent value is
// retained per client instance.
type ThrottleStatus struct {
	MaximumAvailable   float64 `json:"maximumAvailable"`
	CurrentlyAvailable float64 `json:"currentlyAvailable"`
	RestoreRate        float64 `json:"restoreRate"`
}

// Cost is the query cost metadata accompanying a GraphQL response.
type Cost struct {
	RequestedQueryCost float64         `json:"requestedQueryCost"`
	ActualQueryCost    float64         `json:"actualQueryCost"`
	ThrottleStatus     *ThrottleStatus `json:"throttleStatus,omitempty"`
}

// CacheCategory classifies cached values by how they are used.
type CacheCategory string

const (
	CategoryConfig      CacheCategory = "config"
	CategoryOperational CacheCategory = "operational"
	CategoryAnalytics   CacheCategory = "analytics"
	CategoryTemporary   CacheCategory = "temporary"
)

// RefreshPolicy governs when a cached entry is servable versus refetched.
type RefreshPolicy string

const (
	// RefreshNever serves the entry until it is explicitly invalidated.
	RefreshNever RefreshPolicy = "never"
	// RefreshOnExpire serves the entry until its TTL lapses, then treats
	// lookups as misses.
	RefreshOnExpire RefreshPolicy = "on_expire"
	// RefreshBackground serves a stale entry while a refresh is scheduled
	// before expiry.
	RefreshBackground RefreshPolicy = "background"
	// RefreshAlways treats every lookup as a miss.
	RefreshAlways RefreshPolicy = "always"
)

// EventType is the severity of a notification event.
type EventType string

const (
	EventInfo    EventType = "info"
	EventWarning EventType = "warning"
	EventError   EventType = "error"
	EventSuccess EventType = "success"
)

// EventTopic classifies notification events by subject.
type EventTopic string

const (
	TopicRateLimitApproaching EventTopic = "rate_limit_approaching"
	TopicRateLimitExceeded    EventTopic = "rate_limit_exceeded"
	TopicAPIError             EventTopic = "api_error"
	TopicPlanChanged          EventTopic = "plan_changed"
	TopicSystem               EventTopic = "system"
)

// NotificationEvent is a single entry in the bounded notification log.
type NotificationEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Topic     EventTopic     `json:"topic"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
	Read      bool           `json:"read"`
	Dismissed bool           `json:"dismissed"`
}

// Persistence is the storage port used by the cache and notifier. The
// core never talks to a concrete backend directly.
type Persistence interface {
	Load(key string) ([]byte, error)
	Save(key string, value []byte) error
	Delete(key string) error
}

// ValidPlan reports whether the plan names a known tier.
func ValidPlan(plan Plan) bool {
	switch plan {
	case PlanStandard, PlanAdvanced, PlanPlus, PlanEnterprise:
		return true
	default:
		return false
	}
}
