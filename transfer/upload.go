package transfer

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/time/rate"

	"github.com/moyoez/splitsend-go/tool"
	"github.com/moyoez/splitsend-go/types"
)

const (
	// ReadChunkSize is how much of the file is read per progress callback.
	ReadChunkSize = 64 * 1024

	DocumentField = "document"
	maxReplySize  = 1 << 20
)

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// StreamingSender posts a chunk as multipart/form-data without buffering it,
// reporting progress as the body is consumed by the connection.
type StreamingSender struct {
	URL               string
	Client            *http.Client
	Limiter           *rate.Limiter
	DefaultRetryAfter time.Duration
}

func NewStreamingSender(url string, client *http.Client, limiter *rate.Limiter, defaultRetryAfter time.Duration) *StreamingSender {
	if client == nil {
		client = tool.NewHTTPClient(0, 0)
	}
	return &StreamingSender{
		URL:               url,
		Client:            client,
		Limiter:           limiter,
		DefaultRetryAfter: defaultRetryAfter,
	}
}

// Send uploads req.Path as the document field of a sendDocument-style call.
func (s *StreamingSender) Send(ctx context.Context, req types.SendRequest) error {
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

	contentType := "application/octet-stream"
	if mt, err := mimetype.DetectFile(req.Path); err == nil {
		contentType = mt.String()
	}
	fileName := req.FileName
	if fileName == "" {
		fileName = filepath.Base(req.Path)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	done := make(chan struct{})
	go func() {
		defer close(done)
		pw.CloseWithError(writeBody(ctx, mw, f, req, fileName, contentType))
	}()
	defer func() {
		_ = pr.Close()
		<-done
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, pr)
	if err != nil {
		return &types.SinkError{Description: "failed to create upload request", Err: err}
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.Client.Do(httpReq)
	if err != nil {
		return transportError(ctx, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			tool.DefaultLogger.Errorf("Failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplySize))
	if err != nil {
		tool.DefaultLogger.Warnf("Failed to read response body: %v", err)
	}
	return classifyResponse(resp.StatusCode, resp.Header, body, s.DefaultRetryAfter)
}

func writeBody(ctx context.Context, mw *multipart.Writer, f *os.File, req types.SendRequest, fileName, contentType string) error {
	if err := mw.WriteField("chat_id", req.Destination); err != nil {
		return err
	}
	if req.Caption != "" {
		if err := mw.WriteField("caption", req.Caption); err != nil {
			return err
		}
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, DocumentField, quoteEscaper.Replace(fileName)))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	src := &tool.ProgressReader{R: f, OnRead: req.Progress}
	if _, err := tool.CopyWithContext(ctx, part, src, ReadChunkSize); err != nil {
		return err
	}
	return mw.Close()
}

// transportError wraps a failure that happened before any response arrived.
func transportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("upload cancelled: %w", ctxErr)
	}
	return &types.SinkError{Description: "failed to send upload request", Retryable: true, Err: err}
}
