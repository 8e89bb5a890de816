// request_response.go
// -------------------
// Value types crossing the dispatch boundary: the Request describing one
// logical call, the FileAttachment it may carry, and the Result envelope that
// is the only thing a caller ever receives back.
package relaykit

import (
	"encoding/json"
	"io"
	"time"
)

// Request describes one logical call. It is constructed fresh per dispatch
// and never mutated by the layer after Dispatch is called.
type Request struct {
	// Method is the HTTP method: GET, POST, PATCH, PUT or DELETE.
	Method string

	// Path is the endpoint path relative to the provider base URL. A leading
	// slash is added if missing.
	Path string

	// Query holds query parameters appended to the URL.
	Query map[string]string

	// Body is an optional JSON-serializable payload. Mutually exclusive with
	// Files.
	Body any

	// Files is an optional list of attachments. When present the request is
	// sent as multipart/form-data with Body folded into a payload_json field.
	Files []FileAttachment

	// Headers are merged over the provider's default headers.
	Headers map[string]string

	// Context labels the resource being operated on ("channel", "form",
	// "page", ...) and appears in classified error messages. Falls back to
	// the provider profile's label.
	Context string

	// Timeout overrides the configured default deadline for this call only.
	Timeout time.Duration
}

// FileAttachment is a single upload: either a filesystem path or an already
// open stream, plus a display name. Path and Reader are mutually exclusive;
// Path wins when both are set. Files opened from Path are always closed
// before payload building returns, on success and on error alike.
type FileAttachment struct {
	// Name is the display filename. Defaults to the path basename for path
	// attachments and a generated name for streams.
	Name string

	// Path is a filesystem path to read the attachment from.
	Path string

	// Reader is an open byte stream to read the attachment from. If it also
	// implements io.Seeker its size is checked against the configured
	// ceiling without disturbing the current read position.
	Reader io.Reader
}

// Result is the normalized envelope returned by Dispatch. Exactly one of
// Data (Success true) or Failure (Success false) is meaningful.
type Result struct {
	Success   bool
	Data      any
	RequestID string
	Failure   *Failure
}

// MarshalJSON flattens the envelope into the wire shape callers relay
// upstream: {success, data, requestId} or
// {success, errorKind, message, suggestion, statusCode, context, requestId}.
func (r *Result) MarshalJSON() ([]byte, error) {
	if r.Success {
		return json.Marshal(struct {
			Success   bool   `json:"success"`
			Data      any    `json:"data,omitempty"`
			RequestID string `json:"requestId"`
		}{true, r.Data, r.RequestID})
	}
	f := r.Failure
	if f == nil {
		f = &Failure{Kind: KindUnknown, Message: "unknown failure"}
	}
	return json.Marshal(struct {
		Success    bool           `json:"success"`
		ErrorKind  Kind           `json:"errorKind"`
		Message    string         `json:"message"`
		Suggestion string         `json:"suggestion,omitempty"`
		StatusCode int            `json:"statusCode,omitempty"`
		Context    map[string]any `json:"context,omitempty"`
		RequestID  string         `json:"requestId"`
	}{false, f.Kind, f.Message, f.Suggestion, f.StatusCode, f.Context, r.RequestID})
}

func successResult(requestID string, data any) *Result {
	return &Result{Success: true, Data: data, RequestID: requestID}
}

func failureResult(requestID string, f *Failure) *Result {
	f.RequestID = requestID
	return &Result{Success: false, Failure: f, RequestID: requestID}
}
