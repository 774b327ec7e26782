package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shoplens/shoplens/internal/core"
	"github.com/shoplens/shoplens/internal/core/cache"
	"github.com/shoplens/shoplens/internal/core/notify"
	"github.com/shoplens/shoplens/internal/core/plans"
)

func newTestExecutor(t *testing.T, baseURL string) (*Executor, *notify.Notifier) {
	t.Helper()

	registry, err := plans.NewRegistry(core.PlanStandard, nil)
	require.NoError(t, err)

	notifier := notify.New()

	exec, err := New(Config{BaseURL: baseURL, AccessToken: "shpat_test"}, registry, notifier, cache.New(cache.Options{}))
	require.NoError(t, err)
	exec.Sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return exec, notifier
}

func costBody(data string, currentlyAvailable float64) string {
	return fmt.Sprintf(`{
		"data": %s,
		"extensions": {"cost": {
			"requestedQueryCost": 10,
			"actualQueryCost": 8,
			"throttleStatus": {"maximumAvailable": 1000, "currentlyAvailable": %g, "restoreRate": 100}
		}}
	}`, data, currentlyAvailable)
}

const throttledBody = `{
	"errors": [{"message": "Throttled", "extensions": {"code": "THROTTLED"}}],
	"extensions": {"cost": {
		"requestedQueryCost": 100,
		"actualQueryCost": 0,
		"throttleStatus": {"maximumAvailable": 1000, "currentlyAvailable": 5, "restoreRate": 100}
	}}
}`

func TestNewConfigurationErrors(t *testing.T) {
	registry, err := plans.NewRegistry(core.PlanStandard, nil)
	require.NoError(t, err)

	t.Run("MissingShop", func(t *testing.T) {
		_, err := New(Config{AccessToken: "t"}, registry, nil, nil)
		var cfgErr *ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		require.Equal(t, "shop", cfgErr.Field)
	})

	t.Run("MissingToken", func(t *testing.T) {
		_, err := New(Config{Shop: "example.myshopify.com"}, registry, nil, nil)
		var cfgErr *ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		require.Equal(t, "access_token", cfgErr.Field)
	})

	t.Run("MissingRegistry", func(t *testing.T) {
		_, err := New(Config{Shop: "example.myshopify.com", AccessToken: "t"}, nil, nil, nil)
		require.Error(t, err)
	})
}

func TestEndpointConstruction(t *testing.T) {
	registry, err := plans.NewRegistry(core.PlanStandard, nil)
	require.NoError(t, err)

	admin, err := New(Config{Shop: "example.myshopify.com", AccessToken: "t", APIVersion: "2025-07"}, registry, nil, nil)
	require.NoError(t, err)
	require.Equal(t, "https://example.myshopify.com/admin/api/2025-07/graphql.json", admin.endpoint)

	storefront, err := New(Config{Shop: "example.myshopify.com", AccessToken: "t", Storefront: true}, registry, nil, nil)
	require.NoError(t, err)
	require.Equal(t, "https://example.myshopify.com/api/"+DefaultAPIVersion+"/graphql.json", storefront.endpoint)
}

func TestExecuteSuccessParsesTelemetry(t *testing.T) {
	var gotToken string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Shopify-Access-Token")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(costBody(`{"shop": {"name": "Test"}}`, 900)))
	}))
	defer server.Close()

	exec, _ := newTestExecutor(t, server.URL)

	resp, err := exec.Execute(context.Background(), `{ shop { name } }`, map[string]any{"first": 5}, nil)
	require.NoError(t, err)
	require.False(t, resp.FromCache)
	require.Equal(t, "Test", resp.Data.(map[string]any)["shop"].(map[string]any)["name"])
	require.Equal(t, float64(8), resp.Cost.ActualQueryCost)

	require.Equal(t, "shpat_test", gotToken)
	require.Equal(t, `{ shop { name } }`, gotBody["query"])
	require.Equal(t, float64(5), gotBody["variables"].(map[string]any)["first"])

	status := exec.LastThrottleStatus()
	require.NotNil(t, status)
	require.Equal(t, float64(900), status.CurrentlyAvailable)
}

func TestExecuteEmitsApproachingWarning(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(costBody(`{}`, 79)))
	}))
	defer server.Close()

	exec, notifier := newTestExecutor(t, server.URL)

	_, err := exec.Execute(context.Background(), `{ shop { name } }`, nil, nil)
	require.NoError(t, err)

	events := notifier.List(notify.Filter{Topic: core.TopicRateLimitApproaching})
	require.Len(t, events, 1)
	require.Equal(t, core.EventWarning, events[0].Type)
	require.Equal(t, float64(80), events[0].Details["threshold"])
}

func TestExecuteNoWarningAboveThreshold(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(costBody(`{}`, 81)))
	}))
	defer server.Close()

	exec, notifier := newTestExecutor(t, server.URL)

	_, err := exec.Execute(context.Background(), `{ shop { name } }`, nil, nil)
	require.NoError(t, err)
	require.Empty(t, notifier.List(notify.Filter{Topic: core.TopicRateLimitApproaching}))
}

func TestExecuteRetriesThrottledThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			_, _ = w.Write([]byte(throttledBody))
			return
		}
		_, _ = w.Write([]byte(costBody(`{"ok": true}`, 500)))
	}))
	defer server.Close()

	exec, notifier := newTestExecutor(t, server.URL)

	var delays []time.Duration
	exec.Sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	resp, err := exec.Execute(context.Background(), `{ shop { name } }`, nil, nil)
	require.NoError(t, err)
	require.Equal(t, true, resp.Data.(map[string]any)["ok"])

	require.Equal(t, int32(3), calls.Load())
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays)
	require.Len(t, notifier.List(notify.Filter{Topic: core.TopicRateLimitExceeded}), 2)
}

func TestExecuteFirstThrottleWithoutTelemetryIsNotRetried(t *testing.T) {
	// A throttled response that carries no throttle telemetry is surfaced
	// without retry. This pins the original trigger condition.
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	exec, _ := newTestExecutor(t, server.URL)

	_, err := exec.Execute(context.Background(), `{ shop { name } }`, nil, nil)
	var throttledErr *ThrottledError
	require.ErrorAs(t, err, &throttledErr)
	require.Equal(t, http.StatusTooManyRequests, throttledErr.StatusCode)
	require.Equal(t, int32(1), calls.Load())
}

func TestExecuteMaxRetriesExceeded(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(throttledBody))
	}))
	defer server.Close()

	exec, _ := newTestExecutor(t, server.URL)

	_, err := exec.Execute(context.Background(), `{ shop { name } }`, nil, nil)
	var exhausted *MaxRetriesExceededError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, DefaultMaxAttempts, exhausted.Attempts)
	require.Equal(t, int32(DefaultMaxAttempts), calls.Load())
}

func TestBackoffDelaySequence(t *testing.T) {
	want := []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		10000 * time.Millisecond,
	}
	for attempt, expected := range want {
		require.Equal(t, expected, BackoffDelay(attempt), "attempt %d", attempt)
	}
}

func TestExecuteSurfacesGraphQLErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"errors": [{"message": "Field 'foo' doesn't exist", "path": ["query", "foo"]}]}`))
	}))
	defer server.Close()

	exec, notifier := newTestExecutor(t, server.URL)

	_, err := exec.Execute(context.Background(), `{ foo }`, nil, nil)
	var gqlErr *GraphQLError
	require.ErrorAs(t, err, &gqlErr)
	require.Len(t, gqlErr.Errors, 1)
	require.Equal(t, "Field 'foo' doesn't exist", gqlErr.Errors[0].Message)
	require.Equal(t, []any{"query", "foo"}, gqlErr.Errors[0].Path)

	require.Len(t, notifier.List(notify.Filter{Topic: core.TopicAPIError}), 1)
}

func TestExecuteSurfacesNetworkErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	exec, _ := newTestExecutor(t, server.URL)

	_, err := exec.Execute(context.Background(), `{ shop { name } }`, nil, nil)
	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
}

func TestExecuteHonorsContextDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(throttledBody))
	}))
	defer server.Close()

	exec, _ := newTestExecutor(t, server.URL)
	exec.Sleep = sleepContext

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := exec.Execute(ctx, `{ shop { name } }`, nil, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestExecuteCachesSanitizedResponses(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(costBody(`{"customer": {"email": "a@b.com", "id": "1"}}`, 900)))
	}))
	defer server.Close()

	exec, _ := newTestExecutor(t, server.URL)

	opts := &Options{
		CacheKey:       "customer:1",
		TTL:            time.Minute,
		Category:       core.CategoryOperational,
		RefreshPolicy:  core.RefreshOnExpire,
		SanitizeFields: []string{"customer.email"},
	}

	first, err := exec.Execute(context.Background(), `{ customer { email id } }`, nil, opts)
	require.NoError(t, err)
	require.False(t, first.FromCache)

	second, err := exec.Execute(context.Background(), `{ customer { email id } }`, nil, opts)
	require.NoError(t, err)
	require.True(t, second.FromCache)
	require.Equal(t, int32(1), calls.Load())

	customer := second.Data.(map[string]any)["customer"].(map[string]any)
	require.NotContains(t, customer, "email")
	require.Equal(t, "1", customer["id"])
}

func TestExecuteSkipCacheForcesNetwork(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(costBody(`{"n": 1}`, 900)))
	}))
	defer server.Close()

	exec, _ := newTestExecutor(t, server.URL)

	opts := &Options{CacheKey: "k", TTL: time.Minute, RefreshPolicy: core.RefreshOnExpire}
	_, err := exec.Execute(context.Background(), `{ n }`, nil, opts)
	require.NoError(t, err)

	skip := *opts
	skip.SkipCache = true
	_, err = exec.Execute(context.Background(), `{ n }`, nil, &skip)
	require.NoError(t, err)
	require.Equal(t, int32(2), calls.Load())
}

func TestExecuteAlwaysPolicyBypassesCache(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(costBody(`{"n": 1}`, 900)))
	}))
	defer server.Close()

	exec, _ := newTestExecutor(t, server.URL)

	opts := &Options{CacheKey: "k", TTL: time.Minute, RefreshPolicy: core.RefreshAlways}
	for i := 0; i < 2; i++ {
		resp, err := exec.Execute(context.Background(), `{ n }`, nil, opts)
		require.NoError(t, err)
		require.False(t, resp.FromCache)
	}
	require.Equal(t, int32(2), calls.Load())
}

func TestExecuteBackgroundRefreshServesStale(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		_, _ = w.Write([]byte(costBody(fmt.Sprintf(`{"n": %d}`, n), 900)))
	}))
	defer server.Close()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := cache.New(cache.Options{Clock: func() time.Time { return now }})

	registry, err := plans.NewRegistry(core.PlanStandard, nil)
	require.NoError(t, err)
	exec, err := New(Config{BaseURL: server.URL, AccessToken: "t"}, registry, notify.New(), store)
	require.NoError(t, err)

	opts := &Options{CacheKey: "k", TTL: time.Second, RefreshPolicy: core.RefreshBackground}

	_, err = exec.Execute(context.Background(), `{ n }`, nil, opts)
	require.NoError(t, err)

	// Past the TTL the stale value is served while a refresh runs.
	now = now.Add(2 * time.Second)
	stale, err := exec.Execute(context.Background(), `{ n }`, nil, opts)
	require.NoError(t, err)
	require.True(t, stale.FromCache)
	require.Equal(t, float64(1), stale.Data.(map[string]any)["n"])

	require.Eventually(t, func() bool {
		return calls.Load() == 2
	}, time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		value, found, staleNow := store.Get("k")
		if !found || staleNow {
			return false
		}
		return value.(map[string]any)["n"] == float64(2)
	}, time.Second, 10*time.Millisecond)
}
