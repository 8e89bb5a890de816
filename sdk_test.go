package relaykit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaykit/relaykit/mock"
)

func newTestRelay(t *testing.T, cfg *Config) *Relay {
	t.Helper()
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.RetryDelay = time.Millisecond
	cfg.RateLimit = 1000
	relay, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(relay.Close)
	return relay
}

func registerTestServer(t *testing.T, relay *Relay, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	relay.RegisterProvider("test", &ProviderProfile{
		BaseURL:        server.URL,
		DefaultHeaders: map[string]string{"Authorization": "Bearer test-token"},
		ErrorContext:   "widget",
	})
	return server
}

func TestDispatchEchoRoundTrip(t *testing.T) {
	relay := newTestRelay(t, nil)
	registerTestServer(t, relay, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	})

	payload := map[string]any{"name": "gadget", "count": 2.0}
	res := relay.Dispatch(context.Background(), "test", &Request{
		Method: "POST",
		Path:   "/widgets",
		Body:   payload,
	})

	require.True(t, res.Success, "failure: %+v", res.Failure)
	assert.Equal(t, payload, res.Data)
	assert.NotEmpty(t, res.RequestID)
	assert.Nil(t, res.Failure)
}

func TestDispatchNotFoundScenario(t *testing.T) {
	relay := newTestRelay(t, nil)
	registerTestServer(t, relay, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(404)
		w.Write([]byte(`{"message":"unknown widget"}`))
	})

	res := relay.Dispatch(context.Background(), "test", &Request{
		Method:  "GET",
		Path:    "/widgets/42",
		Context: "widget",
	})

	require.False(t, res.Success)
	assert.Equal(t, KindNotFound, res.Failure.Kind)
	assert.Equal(t, "widget not found", res.Failure.Message)
	assert.Equal(t, 404, res.Failure.StatusCode)
}

func TestDispatchRateLimitedResponseIsNotRetried(t *testing.T) {
	var calls int32
	relay := newTestRelay(t, nil)
	registerTestServer(t, relay, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(429)
		w.Write([]byte(`{"retry_after": 3}`))
	})

	res := relay.Dispatch(context.Background(), "test", &Request{
		Method: "GET",
		Path:   "/widgets",
	})

	require.False(t, res.Success)
	assert.Equal(t, KindRateLimited, res.Failure.Kind)
	assert.Equal(t, 3.0, res.Failure.Context["retryAfter"])
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls),
		"429 must be classified, never auto-retried by this layer")
}

func TestDispatchNoContent(t *testing.T) {
	relay := newTestRelay(t, nil)
	registerTestServer(t, relay, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(204)
	})

	res := relay.Dispatch(context.Background(), "test", &Request{
		Method: "DELETE",
		Path:   "/widgets/42",
	})

	require.True(t, res.Success)
	assert.Equal(t, map[string]any{"status": 204, "detail": "No content"}, res.Data)
	assert.NotEmpty(t, res.RequestID)
}

func TestDispatchNonJSONSuccessFallsBackToRawText(t *testing.T) {
	relay := newTestRelay(t, nil)
	registerTestServer(t, relay, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		w.Write([]byte("plain text, not JSON"))
	})

	res := relay.Dispatch(context.Background(), "test", &Request{Method: "GET", Path: "/raw"})
	require.True(t, res.Success)
	assert.Equal(t, map[string]any{"status": 200, "text": "plain text, not JSON"}, res.Data)
}

func TestDispatchOversizeAttachmentMakesNoNetworkCall(t *testing.T) {
	transport := &mock.Transport{}
	cfg := DefaultConfig()
	cfg.Transport = transport
	relay := newTestRelay(t, cfg)
	relay.RegisterProvider("test", &ProviderProfile{BaseURL: "http://remote.test"})

	path := writeTempFile(t, "huge.bin", 26*1024*1024)
	res := relay.Dispatch(context.Background(), "test", &Request{
		Method: "POST",
		Path:   "/widgets",
		Files:  []FileAttachment{{Path: path}},
	})

	require.False(t, res.Success)
	assert.Equal(t, KindPayloadTooLarge, res.Failure.Kind)
	assert.Equal(t, 0, transport.Calls(), "local validation must precede any network attempt")
}

func TestDispatchUnregisteredProvider(t *testing.T) {
	relay := newTestRelay(t, nil)
	res := relay.Dispatch(context.Background(), "ghost", &Request{Method: "GET", Path: "/x"})
	require.False(t, res.Success)
	assert.Equal(t, KindBadRequest, res.Failure.Kind)
	assert.Contains(t, res.Failure.Message, `"ghost"`)
}

func TestDispatchUnsupportedMethod(t *testing.T) {
	relay := newTestRelay(t, nil)
	relay.RegisterProvider("test", &ProviderProfile{BaseURL: "http://remote.test"})
	res := relay.Dispatch(context.Background(), "test", &Request{Method: "TRACE", Path: "/x"})
	require.False(t, res.Success)
	assert.Equal(t, KindBadRequest, res.Failure.Kind)
}

func TestDispatchNormalizesPathAndEncodesQuery(t *testing.T) {
	var gotPath, gotQuery string
	relay := newTestRelay(t, nil)
	registerTestServer(t, relay, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{}`))
	})

	res := relay.Dispatch(context.Background(), "test", &Request{
		Method: "get",
		Path:   "widgets",
		Query:  map[string]string{"limit": "50", "name": "a b"},
	})

	require.True(t, res.Success)
	assert.Equal(t, "/widgets", gotPath)
	assert.Equal(t, "limit=50&name=a+b", gotQuery)
}

func TestDispatchMergesHeaders(t *testing.T) {
	var got http.Header
	relay := newTestRelay(t, nil)
	registerTestServer(t, relay, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Write([]byte(`{}`))
	})

	res := relay.Dispatch(context.Background(), "test", &Request{
		Method: "POST",
		Path:   "/widgets",
		Body:   map[string]any{"name": "x"},
		Headers: map[string]string{
			"X-Audit-Log-Reason": "cleanup",
		},
	})

	require.True(t, res.Success)
	assert.Equal(t, "Bearer test-token", got.Get("Authorization"))
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, "cleanup", got.Get("X-Audit-Log-Reason"))
}

func TestDispatchRequestHeadersOverrideDefaults(t *testing.T) {
	var got http.Header
	relay := newTestRelay(t, nil)
	registerTestServer(t, relay, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Write([]byte(`{}`))
	})

	res := relay.Dispatch(context.Background(), "test", &Request{
		Method:  "GET",
		Path:    "/widgets",
		Headers: map[string]string{"Authorization": "Bearer per-request"},
	})

	require.True(t, res.Success)
	assert.Equal(t, "Bearer per-request", got.Get("Authorization"))
}

func TestDispatchMultipartUpload(t *testing.T) {
	var contentType, payloadJSON, fileContent string
	relay := newTestRelay(t, nil)
	registerTestServer(t, relay, func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		require.NoError(t, r.ParseMultipartForm(1<<20))
		payloadJSON = r.FormValue("payload_json")
		file, _, err := r.FormFile("file[0]")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		fileContent = string(data)
		w.Write([]byte(`{"id":"123"}`))
	})

	path := filepath.Join(t.TempDir(), "note.png")
	require.NoError(t, os.WriteFile(path, []byte("pixels"), 0o644))

	res := relay.Dispatch(context.Background(), "test", &Request{
		Method: "POST",
		Path:   "/widgets",
		Body:   map[string]any{"content": "caption"},
		Files:  []FileAttachment{{Path: path}},
	})

	require.True(t, res.Success, "failure: %+v", res.Failure)
	assert.Contains(t, contentType, "multipart/form-data; boundary=")
	assert.JSONEq(t, `{"content":"caption"}`, payloadJSON)
	assert.Equal(t, "pixels", fileContent)
}

func TestDispatchTimeoutOverride(t *testing.T) {
	relay := newTestRelay(t, nil)
	registerTestServer(t, relay, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Write([]byte(`{}`))
	})

	start := time.Now()
	res := relay.Dispatch(context.Background(), "test", &Request{
		Method:  "GET",
		Path:    "/slow",
		Timeout: 30 * time.Millisecond,
	})

	require.False(t, res.Success)
	assert.Equal(t, KindTimeout, res.Failure.Kind)
	assert.Less(t, time.Since(start), 250*time.Millisecond)
}

func TestDispatchTransportFailureExhaustsRetries(t *testing.T) {
	transport := &mock.Transport{Err: errors.New("connection refused")}
	cfg := DefaultConfig()
	cfg.Transport = transport
	relay := newTestRelay(t, cfg)
	relay.RegisterProvider("test", &ProviderProfile{BaseURL: "http://remote.test", ErrorContext: "widget"})

	res := relay.Dispatch(context.Background(), "test", &Request{Method: "GET", Path: "/widgets"})

	require.False(t, res.Success)
	assert.Equal(t, KindConnectionFailed, res.Failure.Kind)
	assert.Contains(t, res.Failure.Message, "widget")
	assert.Equal(t, 4, transport.Calls(), "default three retries means four attempts")
}

func TestDispatchNeverPanics(t *testing.T) {
	relay := newTestRelay(t, nil)
	relay.RegisterProvider("test", &ProviderProfile{BaseURL: "http://remote.test"})

	// A nil request would panic inside dispatch; the boundary must convert
	// that into an Unknown envelope instead of propagating.
	res := relay.Dispatch(context.Background(), "test", nil)
	require.NotNil(t, res)
	require.False(t, res.Success)
	assert.Equal(t, KindUnknown, res.Failure.Kind)
	assert.NotEmpty(t, res.RequestID)
}

func TestDispatchFallsBackToConfigBaseURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(server.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	relay := newTestRelay(t, cfg)
	relay.RegisterProvider("test", &ProviderProfile{})

	res := relay.Dispatch(context.Background(), "test", &Request{Method: "GET", Path: "/x"})
	require.True(t, res.Success)
}

func TestDispatchWithoutAnyBaseURL(t *testing.T) {
	relay := newTestRelay(t, nil)
	relay.RegisterProvider("test", &ProviderProfile{})
	res := relay.Dispatch(context.Background(), "test", &Request{Method: "GET", Path: "/x"})
	require.False(t, res.Success)
	assert.Equal(t, KindBadRequest, res.Failure.Kind)
}

func TestResultMarshalJSONShapes(t *testing.T) {
	success := successResult("req-1", map[string]any{"id": "42"})
	out, err := json.Marshal(success)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"data":{"id":"42"},"requestId":"req-1"}`, string(out))

	failure := failureResult("req-2", &Failure{
		Kind:       KindNotFound,
		StatusCode: 404,
		Message:    "widget not found",
		Suggestion: "verify the widget exists and is accessible",
	})
	out, err = json.Marshal(failure)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"success": false,
		"errorKind": "NotFound",
		"message": "widget not found",
		"suggestion": "verify the widget exists and is accessible",
		"statusCode": 404,
		"requestId": "req-2"
	}`, string(out))
}
