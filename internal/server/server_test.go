package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shoplens/shoplens/internal/core"
	"github.com/shoplens/shoplens/internal/core/cache"
	"github.com/shoplens/shoplens/internal/core/executor"
	"github.com/shoplens/shoplens/internal/core/notify"
	"github.com/shoplens/shoplens/internal/core/plans"
	apperrors "github.com/shoplens/shoplens/internal/errors"
	"github.com/shoplens/shoplens/internal/server/handlers"
)

func newTestAPI(t *testing.T, upstreamURL string) *handlers.API {
	t.Helper()

	registry, err := plans.NewRegistry(core.PlanStandard, nil)
	require.NoError(t, err)

	notifier := notify.New()
	store := cache.New(cache.Options{})

	api := &handlers.API{
		Cache:    store,
		Notifier: notifier,
		Registry: registry,
	}

	if upstreamURL != "" {
		exec, err := executor.New(executor.Config{BaseURL: upstreamURL, AccessToken: "shpat_test"}, registry, notifier, store)
		require.NoError(t, err)
		api.Executor = exec
	}

	return api
}

func TestServerUsesStandardErrorHandlers(t *testing.T) {
	srv := New("127.0.0.1", 0, nil)

	req := httptest.NewRequest(http.MethodGet, "/does-not-exist", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)

	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, "NOT_FOUND", body.Error.Code)
}

func TestPlanEndpoints(t *testing.T) {
	srv := New("127.0.0.1", 0, newTestAPI(t, ""))

	t.Run("GetDefault", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/plan", nil))

		require.Equal(t, http.StatusOK, rec.Code)

		var body handlers.PlanResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		require.Equal(t, core.PlanStandard, body.Plan)
		require.Equal(t, float64(100), body.Limits.PointsPerSecond)
	})

	t.Run("SetPlan", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPut, "/api/v1/plan", bytes.NewBufferString(`{"plan": "plus"}`))
		srv.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var body handlers.PlanResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		require.Equal(t, core.PlanPlus, body.Plan)
		require.Equal(t, float64(1000), body.Limits.PointsPerSecond)
	})

	t.Run("SetUnknownPlan", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPut, "/api/v1/plan", bytes.NewBufferString(`{"plan": "titanium"}`))
		srv.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("ListPlans", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/plans", nil))

		require.Equal(t, http.StatusOK, rec.Code)

		var body map[string]core.PlanLimits
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		require.Len(t, body, 4)
		require.Equal(t, float64(2000), body["enterprise"].PointsPerSecond)
	})
}

func TestQueryEndpoint(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"data": {"shop": {"name": "Test"}},
			"extensions": {"cost": {
				"requestedQueryCost": 10,
				"actualQueryCost": 8,
				"throttleStatus": {"maximumAvailable": 1000, "currentlyAvailable": 900, "restoreRate": 100}
			}}
		}`))
	}))
	defer upstream.Close()

	srv := New("127.0.0.1", 0, newTestAPI(t, upstream.URL))

	t.Run("Success", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/query",
			bytes.NewBufferString(`{"query": "{ shop { name } }"}`))
		srv.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var body executor.Response
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		require.False(t, body.FromCache)
		require.NotNil(t, body.Cost)
		require.Equal(t, float64(8), body.Cost.ActualQueryCost)
	})

	t.Run("MissingQuery", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/query", bytes.NewBufferString(`{}`))
		srv.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("CachedSecondRead", func(t *testing.T) {
		payload := `{"query": "{ shop { name } }", "cache": {"key": "shop:info", "ttl": "1m"}}`

		first := httptest.NewRecorder()
		srv.Handler().ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/api/v1/query", bytes.NewBufferString(payload)))
		require.Equal(t, http.StatusOK, first.Code)

		second := httptest.NewRecorder()
		srv.Handler().ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/api/v1/query", bytes.NewBufferString(payload)))
		require.Equal(t, http.StatusOK, second.Code)

		var body executor.Response
		require.NoError(t, json.NewDecoder(second.Body).Decode(&body))
		require.True(t, body.FromCache)
	})
}

func TestQueryEndpointThrottledUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer upstream.Close()

	srv := New("127.0.0.1", 0, newTestAPI(t, upstream.URL))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/query",
		bytes.NewBufferString(`{"query": "{ shop { name } }"}`))
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, "RATE_LIMITED", body.Error.Code)
}

func TestNotificationEndpoints(t *testing.T) {
	api := newTestAPI(t, "")
	srv := New("127.0.0.1", 0, api)

	event := api.Notifier.Emit(core.EventWarning, core.TopicRateLimitApproaching, "rate limit approaching", nil)

	t.Run("List", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil))

		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Notifications []core.NotificationEvent `json:"notifications"`
			Unread        int                      `json:"unread"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		require.Len(t, body.Notifications, 1)
		require.Equal(t, 1, body.Unread)
	})

	t.Run("MarkRead", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/notifications/"+event.ID+"/read", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, 0, api.Notifier.UnreadCount())
	})

	t.Run("MarkReadUnknownID", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/notifications/nope/read", nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("Clear", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/notifications", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Empty(t, api.Notifier.List(notify.Filter{}))
	})
}

func TestCacheEndpoints(t *testing.T) {
	api := newTestAPI(t, "")
	srv := New("127.0.0.1", 0, api)

	require.NoError(t, api.Cache.Put("products:1", 1, core.CategoryOperational, 0, core.RefreshNever, nil))
	require.NoError(t, api.Cache.Put("orders:1", 2, core.CategoryOperational, 0, core.RefreshNever, nil))

	t.Run("Stats", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cache/stats", nil))

		require.Equal(t, http.StatusOK, rec.Code)

		var stats cache.Stats
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
		require.Equal(t, 2, stats.TotalEntries)
	})

	t.Run("InvalidatePrefix", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/cache?prefix=products:", nil))

		require.Equal(t, http.StatusOK, rec.Code)

		var body map[string]any
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		require.Equal(t, float64(1), body["invalidated"])
	})

	t.Run("ClearAll", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/cache", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, 0, api.Cache.Stats().TotalEntries)
	})
}

func TestThrottleEndpoint(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"data": {},
			"extensions": {"cost": {
				"requestedQueryCost": 1,
				"actualQueryCost": 1,
				"throttleStatus": {"maximumAvailable": 1000, "currentlyAvailable": 50, "restoreRate": 100}
			}}
		}`))
	}))
	defer upstream.Close()

	srv := New("127.0.0.1", 0, newTestAPI(t, upstream.URL))

	// No telemetry before the first query.
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/throttle", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var before handlers.ThrottleResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&before))
	require.Nil(t, before.Status)
	require.Equal(t, float64(80), before.WarningThreshold)

	queryRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(queryRec, httptest.NewRequest(http.MethodPost, "/api/v1/query",
		bytes.NewBufferString(`{"query": "{ shop { id } }"}`)))
	require.Equal(t, http.StatusOK, queryRec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/throttle", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var after handlers.ThrottleResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&after))
	require.NotNil(t, after.Status)
	require.Equal(t, float64(50), after.Status.CurrentlyAvailable)
	require.True(t, after.Approaching)
}
