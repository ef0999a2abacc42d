// Package bot talks to the Telegram Bot API: long polling for updates, the
// conversation handlers and the status message editor used by pipelines.
package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/moyoez/splitsend-go/tool"
	"github.com/moyoez/splitsend-go/types"
)

const (
	DefaultPollTimeout = 30 * time.Second
	// requestTimeout is added to the poll timeout to bound every call.
	requestTimeout = 30 * time.Second
	maxRateRetries = 2
	parseMarkdown  = "Markdown"
)

// APIError is a Bot API answer with ok=false.
type APIError struct {
	Method      string
	Code        int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %d %s", e.Method, e.Code, e.Description)
}

// IsNotModified reports the harmless error returned when an edit repeats the
// current text.
func IsNotModified(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && strings.Contains(apiErr.Description, "message is not modified")
}

type Client struct {
	token       string
	baseURL     string
	pollTimeout time.Duration
	http        *resty.Client
	limiter     *rate.Limiter

	// minRetryWait is the floor for the 429 back-off.
	minRetryWait time.Duration
}

func NewClient(cfg types.TelegramConfig) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("bot token is empty")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.telegram.org"
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}
	limit := rate.Inf
	burst := 1
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
		burst = max(1, int(cfg.RatePerSecond))
	}
	httpClient := resty.New().
		SetTimeout(cfg.PollTimeout+requestTimeout).
		SetRetryCount(0).
		SetHeader("User-Agent", "splitsend/"+tool.Version).
		SetHeader("Content-Type", "application/json")
	return &Client{
		token:        cfg.Token,
		baseURL:      cfg.BaseURL,
		pollTimeout:  cfg.PollTimeout,
		http:         httpClient,
		limiter:      rate.NewLimiter(limit, burst),
		minRetryWait: time.Second,
	}, nil
}

// call posts params as JSON to method and decodes the result into out.
// 429 answers are retried after the advertised delay a couple of times.
func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	url, err := tool.BuildBotMethodURL(c.baseURL, c.token, method)
	if err != nil {
		return err
	}
	body, err := sonic.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", method, err)
	}

	for attempt := 0; ; attempt++ {
		if method != "getUpdates" {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		resp, err := c.http.R().SetContext(ctx).SetBody(body).Post(url)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.New(tool.RedactToken(fmt.Sprintf("%s: %v", method, err), c.token))
		}

		var envelope types.APIResponse[json.RawMessage]
		if err := sonic.Unmarshal(resp.Body(), &envelope); err != nil {
			return fmt.Errorf("%s: unexpected response (%s): %w", method, resp.Status(), err)
		}
		if envelope.OK {
			if out == nil || len(envelope.Result) == 0 {
				return nil
			}
			if err := sonic.Unmarshal(envelope.Result, out); err != nil {
				return fmt.Errorf("failed to decode %s result: %w", method, err)
			}
			return nil
		}

		apiErr := &APIError{Method: method, Code: envelope.ErrorCode, Description: envelope.Description}
		if apiErr.Code == 0 {
			apiErr.Code = resp.StatusCode()
		}
		if envelope.Parameters != nil && envelope.Parameters.RetryAfter > 0 {
			apiErr.RetryAfter = time.Duration(envelope.Parameters.RetryAfter) * time.Second
		}
		if apiErr.Code != http.StatusTooManyRequests || attempt >= maxRateRetries {
			return apiErr
		}
		wait := max(apiErr.RetryAfter, c.minRetryWait)
		tool.DefaultLogger.Warnf("[Bot] %s rate limited, retrying in %s", method, wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// GetUpdates long-polls for updates starting at offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64) ([]types.Update, error) {
	var updates []types.Update
	err := c.call(ctx, "getUpdates", map[string]any{
		"offset":          offset,
		"timeout":         int(c.pollTimeout / time.Second),
		"allowed_updates": []string{"message", "callback_query"},
	}, &updates)
	return updates, err
}

// MessageOption customises sendMessage and editMessageText.
type MessageOption func(params map[string]any)

func WithMarkdown() MessageOption {
	return func(p map[string]any) { p["parse_mode"] = parseMarkdown }
}

func WithKeyboard(markup types.InlineKeyboardMarkup) MessageOption {
	return func(p map[string]any) { p["reply_markup"] = markup }
}

func ReplyTo(messageID int64) MessageOption {
	return func(p map[string]any) {
		if messageID != 0 {
			p["reply_to_message_id"] = messageID
		}
	}
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, opts ...MessageOption) (*types.Message, error) {
	params := map[string]any{"chat_id": chatID, "text": text}
	for _, o := range opts {
		o(params)
	}
	var msg types.Message
	if err := c.call(ctx, "sendMessage", params, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string, opts ...MessageOption) error {
	params := map[string]any{"chat_id": chatID, "message_id": messageID, "text": text}
	for _, o := range opts {
		o(params)
	}
	return c.call(ctx, "editMessageText", params, nil)
}

func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID, text string) error {
	params := map[string]any{"callback_query_id": callbackID}
	if text != "" {
		params["text"] = text
	}
	return c.call(ctx, "answerCallbackQuery", params, nil)
}

func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	return c.call(ctx, "deleteMessage", map[string]any{"chat_id": chatID, "message_id": messageID}, nil)
}
