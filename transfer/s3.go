package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/time/rate"

	"github.com/moyoez/splitsend-go/tool"
	"github.com/moyoez/splitsend-go/types"
)

// PutObjectAPI is the part of *s3.Client the archive sink needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sender archives chunks under <prefix>/<destination>/<file name>.
type S3Sender struct {
	Client            PutObjectAPI
	Bucket            string
	Prefix            string
	Limiter           *rate.Limiter
	DefaultRetryAfter time.Duration
}

func NewS3Sender(ctx context.Context, cfg types.S3Config, limiter *rate.Limiter, defaultRetryAfter time.Duration) (*S3Sender, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required for the s3 upload strategy")
	}
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	if awsCfg.Region == "" {
		awsCfg.Region = "us-east-1"
	}
	client := s3.NewFromConfig(awsCfg, s3Options(cfg))
	return &S3Sender{
		Client:            client,
		Bucket:            cfg.Bucket,
		Prefix:            cfg.Prefix,
		Limiter:           limiter,
		DefaultRetryAfter: defaultRetryAfter,
	}, nil
}

// s3Options turns off the SDK retryer. The upload coordinator owns the
// attempt budget and has to see throttling responses itself.
func s3Options(cfg types.S3Config) func(*s3.Options) {
	return func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
		o.Retryer = aws.NopRetryer{}
		o.RetryMaxAttempts = 1
	}
}

// Key returns the object key a request is stored under.
func (s *S3Sender) Key(req types.SendRequest) string {
	name := req.FileName
	if name == "" {
		name = filepath.Base(req.Path)
	}
	return path.Join(s.Prefix, req.Destination, name)
}

func (s *S3Sender) Send(ctx context.Context, req types.SendRequest) error {
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
	st, err := f.Stat()
	if err != nil {
		return &types.SinkError{Description: "failed to stat chunk", Err: err}
	}

	contentType := "application/octet-stream"
	if mt, err := mimetype.DetectFile(req.Path); err == nil {
		contentType = mt.String()
	}

	_, err = s.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.Bucket),
		Key:           aws.String(s.Key(req)),
		Body:          &seekableProgress{f: f, onRead: req.Progress},
		ContentLength: aws.Int64(st.Size()),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return s.classify(ctx, err)
	}
	return nil
}

func (s *S3Sender) classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("upload cancelled: %w", ctxErr)
	}
	// S3 wraps the transport error in its own response type, so match on the
	// status accessor rather than a concrete type.
	var re interface{ HTTPStatusCode() int }
	if !errors.As(err, &re) {
		return &types.SinkError{Description: "failed to put object", Retryable: true, Err: err}
	}
	status := re.HTTPStatusCode()
	switch {
	case status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable:
		after := s.DefaultRetryAfter
		if after <= 0 {
			after = DefaultRetryAfter
		}
		return &types.RateLimitError{RetryAfter: after, Description: err.Error()}
	case status >= 500:
		return &types.SinkError{StatusCode: status, Description: "put object", Retryable: true, Err: err}
	default:
		return &types.SinkError{StatusCode: status, Description: "put object", Err: err}
	}
}

// seekableProgress reports bytes read and stays seekable so the SDK can
// rewind the body when it retries or signs the payload.
type seekableProgress struct {
	f      *os.File
	onRead func(total int64)
	pos    int64
}

func (p *seekableProgress) Read(b []byte) (int, error) {
	n, err := p.f.Read(b)
	if n > 0 {
		p.pos += int64(n)
		if p.onRead != nil {
			p.onRead(p.pos)
		}
	}
	return n, err
}

func (p *seekableProgress) Seek(offset int64, whence int) (int64, error) {
	pos, err := p.f.Seek(offset, whence)
	if err == nil {
		p.pos = pos
	}
	return pos, err
}

var _ io.ReadSeeker = (*seekableProgress)(nil)
