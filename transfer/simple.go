package transfer

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/moyoez/splitsend-go/tool"
	"github.com/moyoez/splitsend-go/types"
)

// SimpleSender uploads through resty. Progress is all-or-nothing: zero
// before the request and the full size once it succeeds.
type SimpleSender struct {
	URL               string
	Client            *resty.Client
	Limiter           *rate.Limiter
	DefaultRetryAfter time.Duration
}

func NewSimpleSender(url string, timeout time.Duration, limiter *rate.Limiter, defaultRetryAfter time.Duration) *SimpleSender {
	if timeout <= 0 {
		timeout = tool.DefaultTimeout
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("User-Agent", "splitsend/"+tool.Version)
	return &SimpleSender{
		URL:               url,
		Client:            client,
		Limiter:           limiter,
		DefaultRetryAfter: defaultRetryAfter,
	}
}

func (s *SimpleSender) Send(ctx context.Context, req types.SendRequest) error {
	if req.Path == "" || req.Destination == "" {
		return &types.SinkError{Description: "invalid parameters: path and destination must not be empty"}
	}
	if err := waitLimiter(ctx, s.Limiter); err != nil {
		return err
	}
	f, err := os.Open(req.Path)
	if err != nil {
		return &types.SinkError{Description: "failed to open chunk", Err: err}
	}
	defer func() {
		if err := f.Close(); err != nil {
			tool.DefaultLogger.Errorf("Failed to close chunk file: %v", err)
		}
	}()

	fileName := req.FileName
	if fileName == "" {
		fileName = filepath.Base(req.Path)
	}
	form := map[string]string{"chat_id": req.Destination}
	if req.Caption != "" {
		form["caption"] = req.Caption
	}
	if req.Progress != nil {
		req.Progress(0)
	}

	resp, err := s.Client.R().
		SetContext(ctx).
		SetFormData(form).
		SetFileReader(DocumentField, fileName, f).
		Post(s.URL)
	if err != nil {
		return transportError(ctx, err)
	}
	if err := classifyResponse(resp.StatusCode(), resp.Header(), resp.Body(), s.DefaultRetryAfter); err != nil {
		return err
	}
	if req.Progress != nil {
		req.Progress(req.Size)
	}
	return nil
}
