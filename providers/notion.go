// providers/notion.go
// -------------------
// Built-in profile for the Notion API. Notion requires a versioning header on
// every call in addition to bearer authentication.
package providers

import "github.com/relaykit/relaykit"

const (
	notionAPIBase = "https://api.notion.com/v1"

	// NotionVersion pins the API revision all requests are made against.
	NotionVersion = "2022-06-28"
)

// Notion returns a profile for the Notion API.
func Notion(token string) *relaykit.ProviderProfile {
	return &relaykit.ProviderProfile{
		BaseURL: notionAPIBase,
		DefaultHeaders: map[string]string{
			"Authorization":  "Bearer " + token,
			"Notion-Version": NotionVersion,
		},
		ErrorContext: "page",
	}
}
