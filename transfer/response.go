// Package transfer delivers chunk files to their destination.
package transfer

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/moyoez/splitsend-go/types"
)

const DefaultRetryAfter = 10 * time.Second

// envelope ignores the result payload, only the status fields matter here.
type envelope = types.APIResponse[struct{}]

// classifyResponse turns an HTTP response into nil, a *types.RateLimitError
// or a *types.SinkError.
func classifyResponse(status int, header http.Header, body []byte, defaultRetryAfter time.Duration) error {
	var env envelope
	parsed := len(body) > 0 && sonic.Unmarshal(body, &env) == nil

	description := http.StatusText(status)
	if parsed && env.Description != "" {
		description = env.Description
	}

	switch {
	case status == http.StatusTooManyRequests || (parsed && env.ErrorCode == http.StatusTooManyRequests):
		return &types.RateLimitError{
			RetryAfter:  retryAfter(header, env, parsed, defaultRetryAfter),
			Description: description,
		}
	case status >= 200 && status < 300:
		if parsed && !env.OK && env.ErrorCode != 0 {
			return &types.SinkError{StatusCode: env.ErrorCode, Description: description}
		}
		return nil
	case status >= 500:
		return &types.SinkError{StatusCode: status, Description: description, Retryable: true}
	default:
		return &types.SinkError{StatusCode: status, Description: description}
	}
}

// retryAfter prefers the Retry-After header, then the body's
// parameters.retry_after.
func retryAfter(header http.Header, env envelope, parsed bool, def time.Duration) time.Duration {
	if def <= 0 {
		def = DefaultRetryAfter
	}
	if v := strings.TrimSpace(header.Get("Retry-After")); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
		if at, err := http.ParseTime(v); err == nil {
			if d := time.Until(at); d > 0 {
				return d
			}
		}
	}
	if parsed && env.Parameters != nil && env.Parameters.RetryAfter > 0 {
		return time.Duration(env.Parameters.RetryAfter) * time.Second
	}
	return def
}
