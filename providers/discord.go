// providers/discord.go
// --------------------
// Built-in profile for the Discord REST API (v10).
package providers

import (
	"net/url"
	"strings"

	"github.com/relaykit/relaykit"
)

const discordAPIBase = "https://discord.com/api/v10"

// AuditLogReasonHeader is the header Discord reads the audit-log reason from.
// Wrappers attach it per request via Request.Headers.
const AuditLogReasonHeader = "X-Audit-Log-Reason"

// Discord returns a profile for the Discord bot API. The token may be given
// with or without the "Bot " prefix; it is normalized either way.
func Discord(botToken string) *relaykit.ProviderProfile {
	token := strings.TrimSpace(botToken)
	if token != "" && !strings.HasPrefix(token, "Bot ") {
		token = "Bot " + token
	}
	return &relaykit.ProviderProfile{
		BaseURL: discordAPIBase,
		DefaultHeaders: map[string]string{
			"Authorization": token,
		},
		ErrorContext: "resource",
		MaxFileSize:  25 * 1024 * 1024,
	}
}

// EncodeEmoji escapes an emoji for use in a reaction path segment. Custom
// emojis in name:id form pass through unescaped; unicode emojis are
// percent-encoded.
func EncodeEmoji(emoji string) string {
	if emoji == "" {
		return ""
	}
	if parts := strings.Split(emoji, ":"); len(parts) == 2 && isDigits(parts[1]) {
		return emoji
	}
	return url.QueryEscape(emoji)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
