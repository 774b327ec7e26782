package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/shoplens/shoplens/internal/core"
	"github.com/shoplens/shoplens/internal/core/cache"
	"github.com/shoplens/shoplens/internal/core/notify"
	"github.com/shoplens/shoplens/internal/core/plans"
)

const (
	// DefaultMaxAttempts bounds consecutive throttled responses per call.
	DefaultMaxAttempts = 5

	// DefaultAPIVersion is used when the config leaves the version empty.
	DefaultAPIVersion = "2025-07"

	baseBackoff = 1000 * time.Millisecond
	maxBackoff  = 10000 * time.Millisecond

	throttledCode = "THROTTLED"
)

// Config identifies the shop endpoint and credentials.
type Config struct {
	// Shop is the myshopify domain, e.g. "example.myshopify.com".
	Shop string
	// APIVersion selects the versioned endpoint path.
	APIVersion string
	// AccessToken authenticates Admin API requests.
	AccessToken string
	// Storefront switches to the Storefront API endpoint and token header.
	Storefront bool
	// BaseURL overrides the endpoint entirely. Used by tests.
	BaseURL string
}

// ResponseError is one entry of the GraphQL error list.
type ResponseError struct {
	Message    string `json:"message"`
	Path       []any  `json:"path,omitempty"`
	Extensions struct {
		Code string `json:"code,omitempty"`
	} `json:"extensions,omitempty"`
}

// Response is the typed envelope returned to callers.
type Response struct {
	Data      any             `json:"data,omitempty"`
	Errors    []ResponseError `json:"errors,omitempty"`
	Cost      *core.Cost      `json:"cost,omitempty"`
	FromCache bool            `json:"from_cache"`
}

// Options carries per-call cache behavior. A nil Options skips caching
// entirely.
type Options struct {
	CacheKey       string
	TTL            time.Duration
	Category       core.CacheCategory
	RefreshPolicy  core.RefreshPolicy
	SanitizeFields []string
	SkipCache      bool
}

// Executor runs GraphQL operations against a shop with rate-limit
// governance: it observes cost telemetry, warns on threshold crossings,
// retries throttled responses with bounded exponential backoff, and reads
// and writes through the sanitizing cache.
type Executor struct {
	cfg      Config
	endpoint string

	Client   *http.Client
	Cache    *cache.Cache
	Notifier *notify.Notifier
	Registry *plans.Registry

	MaxAttempts int

	// Sleep suspends only the calling task between attempts. Tests swap it
	// to observe backoff without waiting.
	Sleep func(ctx context.Context, d time.Duration) error

	refreshGroup singleflight.Group

	mu           sync.Mutex
	lastThrottle *core.ThrottleStatus
}

// New validates the configuration and returns an executor. Missing shop
// or credentials fail fast with a ConfigurationError.
func New(cfg Config, registry *plans.Registry, notifier *notify.Notifier, store *cache.Cache) (*Executor, error) {
	endpoint := strings.TrimSpace(cfg.BaseURL)
	if endpoint == "" {
		shop := strings.TrimSpace(cfg.Shop)
		if shop == "" {
			return nil, &ConfigurationError{Field: "shop", Reason: "domain is required"}
		}
		if _, err := url.Parse("https://" + shop); err != nil {
			return nil, &ConfigurationError{Field: "shop", Reason: "domain is invalid"}
		}
		version := strings.TrimSpace(cfg.APIVersion)
		if version == "" {
			version = DefaultAPIVersion
		}
		if cfg.Storefront {
			endpoint = fmt.Sprintf("https://%s/api/%s/graphql.json", shop, version)
		} else {
			endpoint = fmt.Sprintf("https://%s/admin/api/%s/graphql.json", shop, version)
		}
	}
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, &ConfigurationError{Field: "access_token", Reason: "is required"}
	}
	if registry == nil {
		return nil, &ConfigurationError{Field: "registry", Reason: "is required"}
	}

	return &Executor{
		cfg:         cfg,
		endpoint:    endpoint,
		Client:      &http.Client{Timeout: 30 * time.Second},
		Cache:       store,
		Notifier:    notifier,
		Registry:    registry,
		MaxAttempts: DefaultMaxAttempts,
		Sleep:       sleepContext,
	}, nil
}

// Execute runs the operation. It serves fresh cache entries without
// touching the network, retries throttled responses with backoff, and
// stores sanitized results on success. It returns a successful response,
// a non-retryable error, or MaxRetriesExceededError - never a partially
// applied retry.
func (e *Executor) Execute(ctx context.Context, operation string, variables map[string]any, opts *Options) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	operation = strings.TrimSpace(operation)
	if operation == "" {
		return nil, fmt.Errorf("graphql operation is required")
	}

	if e.cacheable(opts) && !opts.SkipCache && opts.RefreshPolicy != core.RefreshAlways {
		if value, found, stale := e.Cache.Get(opts.CacheKey); found {
			if stale && opts.RefreshPolicy == core.RefreshBackground {
				e.scheduleRefresh(ctx, operation, variables, opts)
			}
			return &Response{Data: value, FromCache: true}, nil
		}
	}

	resp, err := e.run(ctx, operation, variables)
	if err != nil {
		return nil, err
	}

	if e.cacheable(opts) {
		if err := e.Cache.Put(opts.CacheKey, resp.Data, opts.Category, opts.TTL, opts.RefreshPolicy, opts.SanitizeFields); err != nil {
			return nil, fmt.Errorf("cache response: %w", err)
		}
	}

	return resp, nil
}

// LastThrottleStatus returns the most recently observed bucket state.
// It is advisory: updates are last-write-wins across concurrent calls.
func (e *Executor) LastThrottleStatus() *core.ThrottleStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastThrottle == nil {
		return nil
	}
	status := *e.lastThrottle
	return &status
}

// run is the network path: send, observe telemetry, classify, retry.
func (e *Executor) run(ctx context.Context, operation string, variables map[string]any) (*Response, error) {
	// Retry only fires when throttle telemetry was already observed in
	// this call. A first-ever throttled response without telemetry is
	// surfaced as ThrottledError. This mirrors the original trigger
	// condition; see DESIGN.md before changing it.
	var seen *core.ThrottleStatus

	maxAttempts := e.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, statusCode, err := e.post(ctx, operation, variables)
		if err != nil {
			e.emit(core.EventError, core.TopicAPIError, "request failed", map[string]any{"error": err.Error()})
			return nil, &NetworkError{Err: err}
		}

		if resp.Cost != nil && resp.Cost.ThrottleStatus != nil {
			status := *resp.Cost.ThrottleStatus
			seen = &status
			e.recordThrottle(status)
			e.checkApproaching(status)
		}

		if throttled(resp, statusCode) {
			e.emit(core.EventError, core.TopicRateLimitExceeded, "rate limit exceeded", map[string]any{
				"attempt":     attempt + 1,
				"status_code": statusCode,
			})

			if seen == nil {
				return nil, &ThrottledError{StatusCode: statusCode, Message: firstErrorMessage(resp)}
			}
			if attempt+1 >= maxAttempts {
				return nil, &MaxRetriesExceededError{Attempts: maxAttempts}
			}
			if err := e.Sleep(ctx, BackoffDelay(attempt)); err != nil {
				return nil, err
			}
			continue
		}

		if len(resp.Errors) > 0 || statusCode != http.StatusOK {
			e.emit(core.EventError, core.TopicAPIError, "graphql request failed", map[string]any{
				"status_code": statusCode,
				"errors":      len(resp.Errors),
			})
			return nil, &GraphQLError{StatusCode: statusCode, Errors: resp.Errors}
		}

		return resp, nil
	}
}

// BackoffDelay returns the wait before retrying the given zero-based
// attempt: 1s doubling per attempt, capped at 10s.
func BackoffDelay(attempt int) time.Duration {
	delay := baseBackoff << uint(attempt)
	if delay > maxBackoff || delay <= 0 {
		return maxBackoff
	}
	return delay
}

func (e *Executor) post(ctx context.Context, operation string, variables map[string]any) (*Response, int, error) {
	payload, err := json.Marshal(map[string]any{
		"query":     operation,
		"variables": variables,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.cfg.Storefront {
		req.Header.Set("X-Shopify-Storefront-Access-Token", e.cfg.AccessToken)
	} else {
		req.Header.Set("X-Shopify-Access-Token", e.cfg.AccessToken)
	}

	client := e.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	httpResp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer httpResp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, httpResp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	var envelope struct {
		Data       json.RawMessage `json:"data"`
		Errors     []ResponseError `json:"errors"`
		Extensions *struct {
			Cost *core.Cost `json:"cost"`
		} `json:"extensions"`
	}
	if len(body) > 0 {
		// A throttled response may carry a non-JSON body; classification
		// falls back to the status code.
		_ = json.Unmarshal(body, &envelope)
	}

	resp := &Response{Errors: envelope.Errors}
	if envelope.Extensions != nil {
		resp.Cost = envelope.Extensions.Cost
	}
	if len(envelope.Data) > 0 {
		var data any
		if err := json.Unmarshal(envelope.Data, &data); err == nil {
			resp.Data = data
		}
	}

	return resp, httpResp.StatusCode, nil
}

func (e *Executor) recordThrottle(status core.ThrottleStatus) {
	e.mu.Lock()
	e.lastThrottle = &status
	e.mu.Unlock()
}

func (e *Executor) checkApproaching(status core.ThrottleStatus) {
	if e.Registry == nil {
		return
	}
	plan := e.Registry.CurrentPlan()
	if !e.Registry.CheckApproaching(status, plan) {
		return
	}
	e.emit(core.EventWarning, core.TopicRateLimitApproaching, "rate limit approaching", map[string]any{
		"currently_available": status.CurrentlyAvailable,
		"maximum_available":   status.MaximumAvailable,
		"restore_rate":        status.RestoreRate,
		"threshold":           e.Registry.WarningThreshold(plan, 0),
		"plan":                string(plan),
	})
}

func (e *Executor) emit(eventType core.EventType, topic core.EventTopic, message string, details map[string]any) {
	if e.Notifier == nil {
		return
	}
	e.Notifier.Emit(eventType, topic, message, details)
}

func (e *Executor) cacheable(opts *Options) bool {
	return opts != nil && strings.TrimSpace(opts.CacheKey) != "" && e.Cache != nil
}

// scheduleRefresh refetches a stale Background entry once, detached from
// the caller's lifetime. Concurrent stale reads share a single refresh.
func (e *Executor) scheduleRefresh(ctx context.Context, operation string, variables map[string]any, opts *Options) {
	refreshCtx := context.WithoutCancel(ctx)
	go func() {
		_, _, _ = e.refreshGroup.Do(opts.CacheKey, func() (any, error) {
			resp, err := e.run(refreshCtx, operation, variables)
			if err != nil {
				return nil, err
			}
			return nil, e.Cache.Put(opts.CacheKey, resp.Data, opts.Category, opts.TTL, opts.RefreshPolicy, opts.SanitizeFields)
		})
	}()
}

func throttled(resp *Response, statusCode int) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	for _, item := range resp.Errors {
		if item.Extensions.Code == throttledCode {
			return true
		}
	}
	return false
}

func firstErrorMessage(resp *Response) string {
	if len(resp.Errors) == 0 {
		return ""
	}
	return resp.Errors[0].Message
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
