// errors.go
// ----------
// The error taxonomy and classifier for the dispatch layer. Every failure a
// caller sees is a Failure with a stable Kind, a human-readable message, and
// an actionable suggestion; raw transport errors never cross the boundary.
//
// Classification is deterministic: the HTTP status code is the primary
// discriminant for remote failures, and the error chain (net.Error,
// context errors) discriminates transport-level ones.
package relaykit

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/relaykit/relaykit/internal"
)

// Kind identifies one class of failure in the taxonomy.
type Kind string

const (
	KindNotFound         Kind = "NotFound"
	KindForbidden        Kind = "Forbidden"
	KindBadRequest       Kind = "BadRequest"
	KindRateLimited      Kind = "RateLimited"
	KindTimeout          Kind = "Timeout"
	KindConnectionFailed Kind = "ConnectionFailed"
	KindPayloadTooLarge  Kind = "PayloadTooLarge"
	KindUnknown          Kind = "Unknown"
)

// Failure is a classified error. It implements error so internal layers can
// return it through ordinary error plumbing before it is folded into a
// Result at the dispatch boundary.
type Failure struct {
	Kind       Kind
	StatusCode int
	Message    string
	Suggestion string
	Context    map[string]any
	RequestID  string
	Cause      error
}

func (f *Failure) Error() string {
	if f.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %s", f.Kind, f.StatusCode, f.Message)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (f *Failure) Unwrap() error {
	return f.Cause
}

// Classify maps a non-success HTTP response to a Failure. context labels the
// resource being operated on and is interpolated into the message and
// suggestion. 2xx statuses, including 204, must be handled by the caller
// before classification.
func Classify(statusCode int, body []byte, context string) *Failure {
	if context == "" {
		context = "resource"
	}

	switch statusCode {
	case 404:
		return &Failure{
			Kind:       KindNotFound,
			StatusCode: statusCode,
			Message:    fmt.Sprintf("%s not found", context),
			Suggestion: fmt.Sprintf("verify the %s exists and is accessible", context),
		}
	case 403:
		return &Failure{
			Kind:       KindForbidden,
			StatusCode: statusCode,
			Message:    fmt.Sprintf("insufficient permissions for %s", context),
			Suggestion: fmt.Sprintf("check permission set for %s", context),
		}
	case 400:
		return &Failure{
			Kind:       KindBadRequest,
			StatusCode: statusCode,
			Message:    fmt.Sprintf("invalid request parameters for %s", context),
			Suggestion: fmt.Sprintf("verify request parameters for %s", context),
		}
	case 429:
		retryAfter := internal.RetryAfterSeconds(body)
		if retryAfter <= 0 {
			retryAfter = 1
		}
		return &Failure{
			Kind:       KindRateLimited,
			StatusCode: statusCode,
			Message:    fmt.Sprintf("too many requests for %s", context),
			Suggestion: fmt.Sprintf("wait %gs before retrying %s", retryAfter, context),
			Context:    map[string]any{"retryAfter": retryAfter},
		}
	default:
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = fmt.Sprintf("remote service returned status %d", statusCode)
		}
		return &Failure{
			Kind:       KindUnknown,
			StatusCode: statusCode,
			Message:    msg,
			Suggestion: "check remote service status and retry",
		}
	}
}

// classifyTransportError maps a transport-level error (no HTTP response was
// received) to a Failure. Deadline and cancellation errors become Timeout;
// everything else becomes ConnectionFailed.
func classifyTransportError(err error, label string) *Failure {
	if label == "" {
		label = "resource"
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || isTimeoutError(err) {
		return &Failure{
			Kind:       KindTimeout,
			Message:    fmt.Sprintf("request for %s timed out", label),
			Suggestion: fmt.Sprintf("retry %s with a longer timeout", label),
			Cause:      err,
		}
	}

	return &Failure{
		Kind:       KindConnectionFailed,
		Message:    fmt.Sprintf("connection failed for %s: %v", label, err),
		Suggestion: "check network connectivity and remote service status, then retry",
		Cause:      err,
	}
}

// isTimeoutError reports whether err is a timeout at the net layer.
func isTimeoutError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Timeout()
	}
	return false
}
