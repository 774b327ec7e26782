package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shoplens/shoplens/internal/core"
	"github.com/shoplens/shoplens/internal/core/cache"
	"github.com/shoplens/shoplens/internal/core/executor"
	"github.com/shoplens/shoplens/internal/core/notify"
	"github.com/shoplens/shoplens/internal/core/plans"
	"github.com/shoplens/shoplens/internal/core/store"
	apperrors "github.com/shoplens/shoplens/internal/errors"
	"github.com/shoplens/shoplens/internal/metrics"
)

const planSettingKey = "plan"

// API exposes the GraphQL access layer over HTTP.
type API struct {
	Executor *executor.Executor
	Cache    *cache.Cache
	Notifier *notify.Notifier
	Registry *plans.Registry
	Store    *store.Store

	// DefaultTTL applies when a request asks for caching without a TTL.
	DefaultTTL time.Duration
}

// Routes mounts every /api/v1 endpoint on a fresh router.
func (a *API) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/query", a.ExecuteQuery)

	r.Get("/plan", a.GetPlan)
	r.Put("/plan", a.SetPlan)
	r.Get("/plans", a.ListPlans)

	r.Get("/throttle", a.ThrottleStatus)

	r.Get("/notifications", a.ListNotifications)
	r.Delete("/notifications", a.ClearNotifications)
	r.Post("/notifications/{id}/read", a.MarkNotificationRead)
	r.Post("/notifications/{id}/dismiss", a.DismissNotification)

	r.Get("/cache/stats", a.CacheStats)
	r.Delete("/cache", a.InvalidateCache)

	return r
}

// QueryCacheOptions configures per-request caching.
type QueryCacheOptions struct {
	Key            string   `json:"key"`
	TTL            string   `json:"ttl,omitempty"`
	Category       string   `json:"category,omitempty"`
	RefreshPolicy  string   `json:"refresh_policy,omitempty"`
	SanitizeFields []string `json:"sanitize_fields,omitempty"`
	Skip           bool     `json:"skip,omitempty"`
}

// QueryRequest is the POST /query body.
type QueryRequest struct {
	Query     string             `json:"query"`
	Variables map[string]any     `json:"variables,omitempty"`
	Cache     *QueryCacheOptions `json:"cache,omitempty"`
}

// ExecuteQuery runs a GraphQL operation through the rate-limited executor.
func (a *API) ExecuteQuery(w http.ResponseWriter, r *http.Request) {
	if a.Executor == nil {
		respondWithError(w, r, apperrors.NewConfigInvalidError("GraphQL executor is not configured"))
		return
	}

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "Invalid query request body"))
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		respondWithError(w, r, apperrors.NewInvalidInputError("Query is required"))
		return
	}

	opts, err := req.executorOptions()
	if err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "Invalid cache options"))
		return
	}
	if opts != nil && opts.TTL <= 0 && opts.RefreshPolicy != core.RefreshNever {
		opts.TTL = a.DefaultTTL
	}

	start := time.Now()
	resp, err := a.Executor.Execute(r.Context(), req.Query, req.Variables, opts)
	if err != nil {
		metrics.RecordQuery(false, false, time.Since(start))
		respondWithError(w, r, envelopeFromExecutorError(err))
		return
	}

	metrics.RecordQuery(true, resp.FromCache, time.Since(start))
	if resp.Cost != nil {
		metrics.RecordQueryCost(resp.Cost.ActualQueryCost)
		if resp.Cost.ThrottleStatus != nil {
			metrics.SetAvailablePoints(resp.Cost.ThrottleStatus.CurrentlyAvailable)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (r *QueryRequest) executorOptions() (*executor.Options, error) {
	if r.Cache == nil {
		return nil, nil
	}

	opts := &executor.Options{
		CacheKey:       strings.TrimSpace(r.Cache.Key),
		Category:       core.CacheCategory(r.Cache.Category),
		RefreshPolicy:  core.RefreshPolicy(r.Cache.RefreshPolicy),
		SanitizeFields: r.Cache.SanitizeFields,
		SkipCache:      r.Cache.Skip,
	}
	if raw := strings.TrimSpace(r.Cache.TTL); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			return nil, err
		}
		opts.TTL = ttl
	}
	return opts, nil
}

// PlanResponse describes the active plan and its limits.
type PlanResponse struct {
	Plan   core.Plan       `json:"plan"`
	Limits core.PlanLimits `json:"limits"`
}

// GetPlan returns the active plan tier.
func (a *API) GetPlan(w http.ResponseWriter, r *http.Request) {
	if a.Registry == nil {
		respondWithError(w, r, apperrors.NewConfigInvalidError("Plan registry is not configured"))
		return
	}

	plan := a.Registry.CurrentPlan()
	writeJSON(w, http.StatusOK, PlanResponse{Plan: plan, Limits: a.Registry.RateLimits(plan)})
}

// SetPlan switches the active plan tier and persists the selection.
func (a *API) SetPlan(w http.ResponseWriter, r *http.Request) {
	if a.Registry == nil {
		respondWithError(w, r, apperrors.NewConfigInvalidError("Plan registry is not configured"))
		return
	}

	var req struct {
		Plan string `json:"plan"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "Invalid plan request body"))
		return
	}

	plan := core.Plan(strings.ToLower(strings.TrimSpace(req.Plan)))
	if err := a.Registry.SetPlan(plan); err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "Unknown plan tier"))
		return
	}

	if a.Store != nil {
		if err := a.Store.SetSetting(r.Context(), planSettingKey, string(plan)); err != nil {
			respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "Failed to persist plan selection"))
			return
		}
	}

	writeJSON(w, http.StatusOK, PlanResponse{Plan: plan, Limits: a.Registry.RateLimits(plan)})
}

// ListPlans returns every known plan tier with its limits.
func (a *API) ListPlans(w http.ResponseWriter, r *http.Request) {
	if a.Registry == nil {
		respondWithError(w, r, apperrors.NewConfigInvalidError("Plan registry is not configured"))
		return
	}

	writeJSON(w, http.StatusOK, a.Registry.AllPlans())
}

// ThrottleResponse reports the most recently observed bucket state.
type ThrottleResponse struct {
	Status           *core.ThrottleStatus `json:"status"`
	Plan             core.Plan            `json:"plan"`
	WarningThreshold float64              `json:"warning_threshold"`
	Approaching      bool                 `json:"approaching"`
}

// ThrottleStatus returns the last observed throttle telemetry.
func (a *API) ThrottleStatus(w http.ResponseWriter, r *http.Request) {
	if a.Executor == nil || a.Registry == nil {
		respondWithError(w, r, apperrors.NewConfigInvalidError("GraphQL executor is not configured"))
		return
	}

	plan := a.Registry.CurrentPlan()
	resp := ThrottleResponse{
		Status:           a.Executor.LastThrottleStatus(),
		Plan:             plan,
		WarningThreshold: a.Registry.WarningThreshold(plan, 0),
	}
	if resp.Status != nil {
		resp.Approaching = a.Registry.CheckApproaching(*resp.Status, plan)
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListNotifications returns the event log, newest first.
func (a *API) ListNotifications(w http.ResponseWriter, r *http.Request) {
	if a.Notifier == nil {
		respondWithError(w, r, apperrors.NewConfigInvalidError("Notifier is not configured"))
		return
	}

	filter := notify.Filter{
		Type:             core.EventType(r.URL.Query().Get("type")),
		Topic:            core.EventTopic(r.URL.Query().Get("topic")),
		UnreadOnly:       r.URL.Query().Get("unread") == "true",
		IncludeDismissed: r.URL.Query().Get("include_dismissed") == "true",
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			respondWithError(w, r, apperrors.NewInvalidInputError("Limit must be a non-negative integer"))
			return
		}
		filter.Limit = limit
	}

	events := a.Notifier.List(filter)
	writeJSON(w, http.StatusOK, map[string]any{
		"notifications": events,
		"unread":        a.Notifier.UnreadCount(),
	})
}

// MarkNotificationRead marks one event as read.
func (a *API) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	if a.Notifier == nil {
		respondWithError(w, r, apperrors.NewConfigInvalidError("Notifier is not configured"))
		return
	}

	id := chi.URLParam(r, "id")
	if !a.Notifier.MarkRead(id) {
		respondWithError(w, r, apperrors.NewNotFoundError("Notification not found"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "read"})
}

// DismissNotification hides one event from default listings.
func (a *API) DismissNotification(w http.ResponseWriter, r *http.Request) {
	if a.Notifier == nil {
		respondWithError(w, r, apperrors.NewConfigInvalidError("Notifier is not configured"))
		return
	}

	id := chi.URLParam(r, "id")
	if !a.Notifier.Dismiss(id) {
		respondWithError(w, r, apperrors.NewNotFoundError("Notification not found"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "dismissed"})
}

// ClearNotifications drops the whole event log.
func (a *API) ClearNotifications(w http.ResponseWriter, r *http.Request) {
	if a.Notifier == nil {
		respondWithError(w, r, apperrors.NewConfigInvalidError("Notifier is not configured"))
		return
	}

	a.Notifier.Clear()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// CacheStats reports aggregate cache metrics.
func (a *API) CacheStats(w http.ResponseWriter, r *http.Request) {
	if a.Cache == nil {
		respondWithError(w, r, apperrors.NewConfigInvalidError("Cache is not configured"))
		return
	}

	stats := a.Cache.Stats()
	metrics.SetCacheEntries(stats.TotalEntries)
	writeJSON(w, http.StatusOK, stats)
}

// InvalidateCache removes entries by prefix, or everything when no prefix
// is given.
func (a *API) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	if a.Cache == nil {
		respondWithError(w, r, apperrors.NewConfigInvalidError("Cache is not configured"))
		return
	}

	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		a.Cache.Clear()
		writeJSON(w, http.StatusOK, map[string]any{"status": "cleared"})
		return
	}

	removed := a.Cache.Invalidate(prefix)
	writeJSON(w, http.StatusOK, map[string]any{"prefix": prefix, "invalidated": removed})
}

func envelopeFromExecutorError(err error) error {
	var cfgErr *executor.ConfigurationError
	var netErr *executor.NetworkError
	var gqlErr *executor.GraphQLError

	switch {
	case executor.IsThrottled(err):
		return apperrors.NewRateLimitedError(err.Error())
	case errors.As(err, &cfgErr):
		return apperrors.NewConfigInvalidError(err.Error())
	case errors.As(err, &netErr), errors.As(err, &gqlErr):
		return apperrors.NewExternalServiceError(err.Error())
	default:
		return apperrors.NewInternalError(err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
