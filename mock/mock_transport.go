// mock/mock_transport.go
// ----------------------
// A scriptable http.RoundTripper for exercising the dispatch layer without a
// network. Install it via Config.Transport.
package mock

import (
	"bytes"
	"io"
	"net/http"
	"sync"
)

const (
	DefaultStatusCode = 200
	DefaultBody       = `{"success":true}`
)

// Transport replays a scripted outcome for every request and records what it
// saw. Safe for concurrent use.
type Transport struct {
	// StatusCode and Body form the response returned once Err and
	// FailFirst are out of the picture. Zero values fall back to
	// DefaultStatusCode and DefaultBody.
	StatusCode int
	Body       string
	Headers    map[string]string

	// Err, when set, is returned instead of a response.
	Err error

	// FailFirst returns Err for the first N calls, then responses. Lets
	// tests script "transport flakes, then recovers".
	FailFirst int

	// RequestsUntil429, when > 0, answers 429 after that many calls. Mirrors
	// a provider running out of quota mid-run.
	RequestsUntil429 int

	mu       sync.Mutex
	calls    int
	requests []*http.Request
	bodies   [][]byte
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.mu.Lock()
	t.calls++
	call := t.calls
	t.requests = append(t.requests, req.Clone(req.Context()))
	var payload []byte
	if req.Body != nil {
		payload, _ = io.ReadAll(req.Body)
		req.Body.Close()
	}
	t.bodies = append(t.bodies, payload)
	t.mu.Unlock()

	if t.Err != nil && (t.FailFirst == 0 || call <= t.FailFirst) {
		return nil, t.Err
	}

	status := t.StatusCode
	if status == 0 {
		status = DefaultStatusCode
	}
	body := t.Body
	if body == "" {
		body = DefaultBody
	}
	if t.RequestsUntil429 > 0 && call > t.RequestsUntil429 {
		status = 429
		body = `{"message":"rate limited","retry_after":1}`
	}

	header := http.Header{}
	for k, v := range t.Headers {
		header.Set(k, v)
	}

	return &http.Response{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
		Request:    req,
	}, nil
}

// Calls reports how many requests the transport has seen.
func (t *Transport) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

// Requests returns the recorded requests in order.
func (t *Transport) Requests() []*http.Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*http.Request(nil), t.requests...)
}

// RequestBody returns the captured body of the i-th request.
func (t *Transport) RequestBody(i int) []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i < 0 || i >= len(t.bodies) {
		return nil
	}
	return t.bodies[i]
}
