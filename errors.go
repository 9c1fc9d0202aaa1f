package coqui

import (
	"fmt"
	"strings"
)

// AuthenticationError is returned when an operation needs a stored API token
// and none is present, or when the service rejects the one that is.
type AuthenticationError struct {
	Reason string
}

func (e *AuthenticationError) Error() string {
	return "coqui: authentication failed: " + e.Reason
}

// SchedulerMisuseError is returned when a blocking entry point is called from
// inside a flow already driven by Go or one of the Async entry points. Mixing
// the two calling conventions like that would deadlock, so it is rejected
// before any work happens.
type SchedulerMisuseError struct {
	Op string
}

func (e *SchedulerMisuseError) Error() string {
	return fmt.Sprintf("coqui: %s called from inside an async flow; use %sAsync and wait on the returned future", e.Op, e.Op)
}

// TransportError is returned when the exchange with the API fails below the
// GraphQL layer: connection errors, timeouts, or a non-success HTTP status.
type TransportError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("coqui: %s: request failed: %v", e.Op, e.Err)
	}
	if e.Body == "" {
		return fmt.Sprintf("coqui: %s: unexpected status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("coqui: %s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ResponseParseError is returned when a response body does not have the shape
// the operation expects.
type ResponseParseError struct {
	Op  string
	Err error
}

func (e *ResponseParseError) Error() string {
	return fmt.Sprintf("coqui: %s: malformed response: %v", e.Op, e.Err)
}

func (e *ResponseParseError) Unwrap() error { return e.Err }

// FieldError is a per-field rejection reported inside a mutation payload.
type FieldError struct {
	Field    string   `json:"field"`
	Messages []string `json:"errors"`
}

func (e FieldError) String() string {
	return e.Field + ": " + strings.Join(e.Messages, ", ")
}

func joinFieldErrors(fields []FieldError) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f.String())
	}
	return strings.Join(parts, "; ")
}

// CloneVoiceError is returned when the service rejects the cloning parameters.
type CloneVoiceError struct {
	Fields []FieldError
}

func (e *CloneVoiceError) Error() string {
	return "coqui: clone voice rejected: " + joinFieldErrors(e.Fields)
}

// SynthesisError is returned when the service rejects the synthesis parameters.
type SynthesisError struct {
	Fields []FieldError
}

func (e *SynthesisError) Error() string {
	return "coqui: synthesis rejected: " + joinFieldErrors(e.Fields)
}

// EstimateQualityError is returned when the service cannot estimate the
// quality of the given audio.
type EstimateQualityError struct {
	Messages []string
}

func (e *EstimateQualityError) Error() string {
	return "coqui: quality estimation rejected: " + strings.Join(e.Messages, "; ")
}

// RateLimitExceededError is returned when a mutation is refused at the GraphQL
// layer, which the service uses to signal account rate limiting.
type RateLimitExceededError struct {
	Err error
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("coqui: rate limit exceeded: %v", e.Err)
}

func (e *RateLimitExceededError) Unwrap() error { return e.Err }

// graphQLError carries the messages from a response's errors array. Operations
// translate it before it reaches callers.
type graphQLError struct {
	Op       string
	Messages []string
}

func (e *graphQLError) Error() string {
	return fmt.Sprintf("coqui: %s: query failed: %s", e.Op, strings.Join(e.Messages, "; "))
}
