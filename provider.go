// provider.go
// ------------
// ProviderProfile is the injected per-integration configuration: the base
// URL, the default header set, and the error-context label that turns a bare
// status code into a readable message. The dispatch layer itself is
// integration-agnostic; everything Discord-, Tally- or Notion-shaped lives in
// a profile (see the providers package for the built-ins).
package relaykit

// ProviderProfile configures one remote integration.
type ProviderProfile struct {
	// BaseURL is the API root requests are resolved against, without a
	// trailing slash. Falls back to Config.BaseURL when empty.
	BaseURL string

	// DefaultHeaders are applied to every request and overridden by
	// per-request headers. Authorization typically lives here.
	DefaultHeaders map[string]string

	// ErrorContext is the default resource label used in classified error
	// messages when the request does not set its own.
	ErrorContext string

	// MaxFileSize overrides the configured attachment ceiling for this
	// provider when > 0.
	MaxFileSize int64
}
