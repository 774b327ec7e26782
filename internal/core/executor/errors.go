package executor

import (
	"errors"
	"fmt"
	"strings"
)

// ThrottledError marks a throttled response that was not retried because
// no throttle telemetry had been observed yet in the call.
type ThrottledError struct {
	StatusCode int
	Message    string
}

func (e *ThrottledError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("request throttled: %s", e.Message)
	}
	return "request throttled"
}

// NetworkError wraps a transport-level failure. This layer never retries
// it; callers may retry at a higher level.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// GraphQLError carries non-throttle business errors from the response
// envelope, preserving per-error message and path.
type GraphQLError struct {
	StatusCode int
	Errors     []ResponseError
}

func (e *GraphQLError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("graphql request failed with status %d", e.StatusCode)
	}
	messages := make([]string, 0, len(e.Errors))
	for _, item := range e.Errors {
		messages = append(messages, item.Message)
	}
	return fmt.Sprintf("graphql errors: %s", strings.Join(messages, "; "))
}

// MaxRetriesExceededError is returned after the bounded retry loop
// exhausts every attempt on consecutive throttled responses.
type MaxRetriesExceededError struct {
	Attempts int
}

func (e *MaxRetriesExceededError) Error() string {
	return fmt.Sprintf("max retries exceeded after %d throttled attempts", e.Attempts)
}

// ConfigurationError reports a missing or invalid construction parameter.
// It is raised at construction time so a misconfigured executor never
// issues requests.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

// IsThrottled reports whether err is a throttle classification, including
// retry exhaustion.
func IsThrottled(err error) bool {
	var throttled *ThrottledError
	var exhausted *MaxRetriesExceededError
	return errors.As(err, &throttled) || errors.As(err, &exhausted)
}
