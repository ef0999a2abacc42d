package fetch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lrstanley/go-ytdlp"

	"github.com/moyoez/splitsend-go/types"
)

const AuthRequiredMessage = "This link requires authentication or a login to access and is not supported. Please send a publicly accessible video link."

var authKeywords = []string{
	"sign in",
	"login",
	"account",
	"authenticate",
	"password",
	"private",
	"members-only",
}

// RequiresAuth reports whether extractor output asks for a login.
func RequiresAuth(msg string) bool {
	msg = strings.ToLower(msg)
	for _, kw := range authKeywords {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}

// classify maps a failed yt-dlp run to the pipeline error taxonomy.
func classify(ctx context.Context, err error, result *ytdlp.Result) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return fmt.Errorf("%w: timed out: %w", types.ErrSourceUnavailable, ctxErr)
		}
		return fmt.Errorf("%w: %w", types.ErrCancelled, ctxErr)
	}
	msg := err.Error()
	if result != nil && result.Stderr != "" {
		msg = strings.TrimSpace(result.Stderr)
	}
	if RequiresAuth(msg) {
		return fmt.Errorf("%w: %s", types.ErrAuthRequired, lastLine(msg))
	}
	return fmt.Errorf("%w: %s", types.ErrSourceUnavailable, lastLine(msg))
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
