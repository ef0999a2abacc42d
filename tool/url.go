package tool

import (
	"fmt"
	"net/url"
	"strings"
)

// BuildBotMethodURL builds https://api.telegram.org/bot<token>/<method>.
func BuildBotMethodURL(baseURL, token, method string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("bot token is empty")
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("failed to parse base URL: %v", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid base URL: %q", baseURL)
	}
	u.Path = u.Path + "/bot" + token + "/" + method
	return u.String(), nil
}

// RedactToken hides the bot token in URLs and errors before they are logged.
func RedactToken(s, token string) string {
	if token == "" {
		return s
	}
	return strings.ReplaceAll(s, token, "<redacted>")
}
