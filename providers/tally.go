// providers/tally.go
// ------------------
// Built-in profile for the Tally forms API.
package providers

import "github.com/relaykit/relaykit"

const tallyAPIBase = "https://api.tally.so"

// Tally returns a profile for the Tally API using bearer authentication.
func Tally(apiKey string) *relaykit.ProviderProfile {
	return &relaykit.ProviderProfile{
		BaseURL: tallyAPIBase,
		DefaultHeaders: map[string]string{
			"Authorization": "Bearer " + apiKey,
		},
		ErrorContext: "form",
	}
}
