package transfer

import (
	"context"
	"fmt"

	"github.com/moyoez/splitsend-go/tool"
	"github.com/moyoez/splitsend-go/types"
)

const (
	StrategyStreaming = "streaming"
	StrategySimple    = "simple"
	StrategyS3        = "s3"
)

// Sender delivers one chunk. Implementations return *types.RateLimitError or
// *types.SinkError for remote failures.
type Sender interface {
	Send(ctx context.Context, req types.SendRequest) error
}

// NewSender builds the sender selected by upload.strategy.
func NewSender(ctx context.Context, cfg types.AppConfig) (Sender, error) {
	limiter := NewLimiter(cfg.Upload.RatePerSecond)
	retryAfter := cfg.Upload.DefaultRetryAfter

	switch cfg.Upload.Strategy {
	case StrategyStreaming, "":
		url, err := tool.BuildBotMethodURL(cfg.Telegram.BaseURL, cfg.Telegram.Token, "sendDocument")
		if err != nil {
			return nil, err
		}
		client := tool.NewHTTPClient(cfg.Upload.Timeout, cfg.Upload.ConnectTimeout)
		return NewStreamingSender(url, client, limiter, retryAfter), nil
	case StrategySimple:
		url, err := tool.BuildBotMethodURL(cfg.Telegram.BaseURL, cfg.Telegram.Token, "sendDocument")
		if err != nil {
			return nil, err
		}
		return NewSimpleSender(url, cfg.Upload.Timeout, limiter, retryAfter), nil
	case StrategyS3:
		return NewS3Sender(ctx, cfg.S3, limiter, retryAfter)
	default:
		return nil, fmt.Errorf("unknown upload strategy %q", cfg.Upload.Strategy)
	}
}
