// Package uploader sends a chunk sequence to a sink with bounded parallelism,
// per-chunk retries and a single aggregated progress stream.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/moyoez/splitsend-go/tool"
	"github.com/moyoez/splitsend-go/types"
)

const DefaultMaxParallel = 3

// Sink transmits one file to a destination.
type Sink interface {
	Send(ctx context.Context, req types.SendRequest) error
}

type (
	CaptionFunc  func(index, total int) string
	ProgressFunc func(sent, total int64)
	AttemptFunc  func(chunk types.Chunk, attempt int, err error)
)

type Coordinator struct {
	sink        Sink
	MaxParallel int
	Policy      RetryPolicy
	Sleep       SleepFunc
	OnAttempt   AttemptFunc
}

func New(sink Sink, maxParallel int, policy RetryPolicy) *Coordinator {
	if maxParallel <= 0 {
		maxParallel = DefaultMaxParallel
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	return &Coordinator{
		sink:        sink,
		MaxParallel: maxParallel,
		Policy:      policy,
		Sleep:       sleepContext,
	}
}

type chunkProgress struct {
	index int
	sent  int64
}

// UploadAll uploads every chunk to dest. Chunks are launched in index order,
// captions are fixed at launch. The first chunk that fails for good cancels
// the rest; chunks the sink already accepted stay sent.
func (c *Coordinator) UploadAll(ctx context.Context, chunks []types.Chunk, caption CaptionFunc, dest string, onProgress ProgressFunc) error {
	if len(chunks) == 0 {
		return nil
	}

	var total int64
	for _, ch := range chunks {
		total += ch.Size
	}

	events := make(chan chunkProgress, 64)
	aggregated := make(chan struct{})
	go func() {
		defer close(aggregated)
		aggregate(events, chunks, total, onProgress)
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.MaxParallel)
	for i, chunk := range chunks {
		text := ""
		if caption != nil {
			text = caption(i, len(chunks))
		}
		g.Go(func() error {
			return c.uploadChunk(gctx, chunk, text, dest, events)
		})
	}
	err := g.Wait()
	close(events)
	<-aggregated

	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("%w: %w", types.ErrCancelled, ctx.Err())
	}
	return err
}

func (c *Coordinator) uploadChunk(ctx context.Context, chunk types.Chunk, caption, dest string, events chan<- chunkProgress) error {
	publish := func(sent int64) {
		select {
		case events <- chunkProgress{index: chunk.Index, sent: sent}:
		case <-ctx.Done():
		}
	}

	var lastErr error
	for attempt := 1; attempt <= c.Policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := c.sink.Send(ctx, types.SendRequest{
			Destination: dest,
			Path:        chunk.Path,
			FileName:    filepath.Base(chunk.Path),
			Caption:     caption,
			Size:        chunk.Size,
			Progress:    publish,
		})
		if c.OnAttempt != nil {
			c.OnAttempt(chunk, attempt, err)
		}
		if err == nil {
			publish(chunk.Size)
			tool.DefaultLogger.Debugf("[Upload] %s sent on attempt %d", chunk.Name, attempt)
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !IsRetryable(err) {
			tool.DefaultLogger.Errorf("[Upload] %s failed permanently: %v", chunk.Name, err)
			return fmt.Errorf("%w: %s: %w", types.ErrUploadFatal, chunk.Name, err)
		}
		if attempt == c.Policy.MaxAttempts {
			break
		}

		delay, limited := RetryAfter(err)
		if !limited {
			delay = c.Policy.Backoff(attempt)
		}
		tool.DefaultLogger.Warnf("[Upload] %s attempt %d/%d failed: %v, retrying in %s", chunk.Name, attempt, c.Policy.MaxAttempts, err, delay)
		if err := c.Sleep(ctx, delay); err != nil {
			return err
		}
	}

	tool.DefaultLogger.Errorf("[Upload] %s gave up after %d attempts: %v", chunk.Name, c.Policy.MaxAttempts, lastErr)
	return fmt.Errorf("%w: %s after %d attempts: %w", types.ErrUploadFatal, chunk.Name, c.Policy.MaxAttempts, lastErr)
}

// aggregate is the only reader of events. It keeps the highest value seen
// per chunk so retries and reordering never move the total backwards.
func aggregate(events <-chan chunkProgress, chunks []types.Chunk, total int64, onProgress ProgressFunc) {
	limits := make(map[int]int64, len(chunks))
	for _, ch := range chunks {
		limits[ch.Index] = ch.Size
	}
	perChunk := make(map[int]int64, len(chunks))
	var sum, emitted int64

	for ev := range events {
		sent := min(max(ev.sent, 0), limits[ev.index])
		if sent <= perChunk[ev.index] {
			continue
		}
		sum += sent - perChunk[ev.index]
		perChunk[ev.index] = sent
		if sum > emitted && onProgress != nil {
			emitted = sum
			onProgress(sum, total)
		}
	}
}

// IsFatal reports whether err ended an upload batch.
func IsFatal(err error) bool {
	return errors.Is(err, types.ErrUploadFatal)
}
