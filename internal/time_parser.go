// internal/time_parser.go
// ------------------------
// Helpers for parsing the retry-after hints remote services attach to
// rate-limit responses. Services are inconsistent: some return a bare number
// of seconds (integer or fractional), some a duration string like "1s" or
// "6m0s", and the field may be a JSON number or a JSON string.
//
// Functions:
// - RetryAfterSeconds: extract retry_after from a JSON error body.
// - ParseTimeStr: convert "3", "3.5", "1s", "6m0s" into seconds.
package internal

import (
	"encoding/json"
	"strconv"
	"time"
)

// RetryAfterSeconds extracts the retry_after hint from a JSON error body.
// Returns 0 if the body is not JSON or carries no usable hint.
func RetryAfterSeconds(body []byte) float64 {
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(body, &decoded); err != nil {
		return 0
	}

	raw, ok := decoded["retry_after"]
	if !ok {
		if raw, ok = decoded["retryAfter"]; !ok {
			return 0
		}
	}

	var secs float64
	if err := json.Unmarshal(raw, &secs); err == nil {
		return secs
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return ParseTimeStr(s)
	}
	return 0
}

// ParseTimeStr converts strings like "3", "3.5", "1s" or "6m0s" into seconds.
// Returns 0 for anything unparseable.
func ParseTimeStr(s string) float64 {
	if s == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return secs
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d.Seconds()
	}
	return 0
}
