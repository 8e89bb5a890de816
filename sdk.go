// sdk.go
// ------
// The sdk.go file contains the core Relay struct and its methods. This is the
// main entry point of the library for users.
//
// Key functionalities include:
// - Initializing the layer with New()
// - Registering integrations with RegisterProvider()
// - Making calls via relay.Dispatch()
// - Graceful shutdown via Close()
//
// The Relay funnels every call through the rate limiter, the multipart
// payload builder, the retry executor and the error classifier, and returns a
// normalized Result. Dispatch never returns a raw error: every failure path
// is classified into the envelope before it crosses this boundary.
package relaykit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Relay is the request dispatcher shared by all endpoint wrappers in a
// process. Safe for concurrent use.
type Relay struct {
	mu        sync.Mutex
	cfg       *Config
	providers map[string]*ProviderProfile

	limiter  *RateLimiter
	pool     *clientPool
	executor *RequestExecutor
	logger   *slog.Logger
}

// New validates cfg and builds a Relay. A nil cfg means DefaultConfig().
// Configuration problems are the only errors this layer ever raises.
func New(cfg *Config) (*Relay, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("relaykit: invalid config: %w", err)
	}

	logger := slog.Default()
	pool := newClientPool(cfg)
	return &Relay{
		cfg:       cfg,
		providers: make(map[string]*ProviderProfile),
		limiter:   NewRateLimiter(cfg.RateLimit, cfg.RateWindow),
		pool:      pool,
		executor:  NewRequestExecutor(pool, cfg.MaxRetries, cfg.RetryDelay, logger),
		logger:    logger,
	}, nil
}

// SetLogger replaces the structured logger used for dispatch logging.
func (r *Relay) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
	r.executor.logger = logger
}

// RegisterProvider associates a ProviderProfile with a provider name.
func (r *Relay) RegisterProvider(name string, profile *ProviderProfile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = profile
	r.logger.Debug("registered provider", "provider", name, "base_url", profile.BaseURL)
}

// Close releases the pooled client. The Relay remains usable; the next
// dispatch rebuilds the client.
func (r *Relay) Close() {
	r.pool.close()
}

var allowedMethods = map[string]bool{
	http.MethodGet: true, http.MethodPost: true, http.MethodPatch: true,
	http.MethodPut: true, http.MethodDelete: true,
}

// Dispatch performs one logical call against the named provider and returns
// the normalized envelope. It never returns an error and never panics past
// this boundary; unclassifiable failures come back as Unknown envelopes.
func (r *Relay) Dispatch(ctx context.Context, provider string, req *Request) (res *Result) {
	start := time.Now()
	requestID := uuid.NewString()

	defer func() {
		if rec := recover(); rec != nil {
			res = failureResult(requestID, &Failure{
				Kind:       KindUnknown,
				Message:    fmt.Sprintf("internal dispatch failure: %v", rec),
				Suggestion: "check remote service status and retry",
			})
		}
		outcome := "success"
		if !res.Success {
			outcome = string(res.Failure.Kind)
		}
		dispatchesTotal.WithLabelValues(provider, outcome).Inc()
		dispatchDurationSeconds.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	}()

	if ctx == nil {
		ctx = context.Background()
	}

	r.mu.Lock()
	profile, registered := r.providers[provider]
	logger := r.logger
	r.mu.Unlock()

	if !registered {
		return failureResult(requestID, &Failure{
			Kind:       KindBadRequest,
			Message:    fmt.Sprintf("provider %q not registered", provider),
			Suggestion: "register the provider profile before dispatching to it",
		})
	}

	label := req.Context
	if label == "" {
		label = profile.ErrorContext
	}

	method := strings.ToUpper(req.Method)
	if !allowedMethods[method] {
		return failureResult(requestID, &Failure{
			Kind:       KindBadRequest,
			Message:    fmt.Sprintf("unsupported method %q", req.Method),
			Suggestion: "use one of GET, POST, PATCH, PUT or DELETE",
		})
	}
	path := req.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	headers := map[string]string{"Content-Type": "application/json"}
	for k, v := range profile.DefaultHeaders {
		headers[k] = v
	}
	for k, v := range req.Headers {
		headers[k] = v
	}
	if len(req.Files) > 0 {
		// Multipart sets its own boundary-aware content type.
		delete(headers, "Content-Type")
	}

	maxFileSize := r.cfg.MaxFileSize
	if profile.MaxFileSize > 0 {
		maxFileSize = profile.MaxFileSize
	}
	body, contentType, buildErr := buildMultipart(req.Files, req.Body, maxFileSize, r.cfg.AllowedFileTypes, logger)
	if buildErr != nil {
		return failureResult(requestID, asFailure(buildErr, label))
	}
	if len(req.Files) > 0 && contentType != "" {
		headers["Content-Type"] = contentType
	}

	timeout := r.cfg.RequestTimeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	gateStart := time.Now()
	if err := r.limiter.Allow(ctx); err != nil {
		return failureResult(requestID, classifyTransportError(err, label))
	}
	rateLimitWaitSeconds.Observe(time.Since(gateStart).Seconds())

	baseURL := profile.BaseURL
	if baseURL == "" {
		baseURL = r.cfg.BaseURL
	}
	if baseURL == "" {
		return failureResult(requestID, &Failure{
			Kind:       KindBadRequest,
			Message:    fmt.Sprintf("no base URL configured for provider %q", provider),
			Suggestion: "set BaseURL on the provider profile or RELAY_API_BASE in the environment",
		})
	}
	fullURL := baseURL + path
	if len(req.Query) > 0 {
		q := url.Values{}
		for k, v := range req.Query {
			q.Set(k, v)
		}
		fullURL += "?" + q.Encode()
	}

	resp, err := r.executor.ExecuteWithRetry(ctx, func(client *http.Client) (*http.Response, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		httpReq, reqErr := http.NewRequestWithContext(ctx, method, fullURL, reader)
		if reqErr != nil {
			return nil, reqErr
		}
		for k, v := range headers {
			httpReq.Header.Set(k, v)
		}
		return client.Do(httpReq)
	})

	duration := time.Since(start).Milliseconds()
	if err != nil {
		f := classifyTransportError(err, label)
		logger.Warn("dispatch failed",
			"provider", provider,
			"method", method,
			"path", path,
			"kind", f.Kind,
			"duration_ms", duration,
			"error", err)
		return failureResult(requestID, f)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return failureResult(requestID, classifyTransportError(readErr, label))
	}

	status := resp.StatusCode
	switch {
	case status == http.StatusNoContent:
		logger.Debug("dispatch succeeded",
			"provider", provider, "method", method, "path", path,
			"status", status, "duration_ms", duration)
		return successResult(requestID, map[string]any{"status": 204, "detail": "No content"})

	case status >= 200 && status < 300:
		logger.Debug("dispatch succeeded",
			"provider", provider, "method", method, "path", path,
			"status", status, "duration_ms", duration)
		var decoded any
		if len(raw) > 0 && json.Unmarshal(raw, &decoded) == nil {
			return successResult(requestID, decoded)
		}
		// 2xx but not parseable JSON: still a success, raw text attached.
		return successResult(requestID, map[string]any{"status": status, "text": string(raw)})

	default:
		f := Classify(status, raw, label)
		logger.Warn("dispatch failed",
			"provider", provider, "method", method, "path", path,
			"status", status, "kind", f.Kind, "duration_ms", duration)
		return failureResult(requestID, f)
	}
}

// asFailure folds an arbitrary error into a Failure, classifying anything
// that is not one already.
func asFailure(err error, label string) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return classifyTransportError(err, label)
}
