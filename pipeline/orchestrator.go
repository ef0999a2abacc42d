// Package pipeline runs one request from admission to the last uploaded part.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/moyoez/splitsend-go/admission"
	"github.com/moyoez/splitsend-go/fetch"
	"github.com/moyoez/splitsend-go/metrics"
	"github.com/moyoez/splitsend-go/notify"
	"github.com/moyoez/splitsend-go/progress"
	"github.com/moyoez/splitsend-go/splitter"
	"github.com/moyoez/splitsend-go/tool"
	"github.com/moyoez/splitsend-go/types"
	"github.com/moyoez/splitsend-go/uploader"
)

// Fetcher resolves a URL and format into a local file inside dir.
type Fetcher interface {
	Fetch(ctx context.Context, url, formatID, dir string, onProgress fetch.ProgressFunc) (string, error)
}

type Options struct {
	Admission *admission.Controller
	Fetcher   Fetcher
	Sink      uploader.Sink
	Registry  *Registry
	Notifier  *notify.Notifier
	Metrics   *metrics.Metrics

	DownloadDir      string
	MaxChunkSize     int64
	BufferSize       int
	MaxParallel      int
	Retry            uploader.RetryPolicy
	ProgressInterval time.Duration

	// Sleep replaces the retry sleep, for tests.
	Sleep uploader.SleepFunc
}

// OptionsFromConfig fills the tunables from the application config.
func OptionsFromConfig(cfg types.AppConfig) Options {
	return Options{
		DownloadDir:  cfg.Download.Path,
		MaxChunkSize: cfg.Split.MaxChunkBytes(),
		BufferSize:   cfg.Split.BufferBytes(),
		MaxParallel:  cfg.Upload.MaxParallel,
		Retry: uploader.RetryPolicy{
			MaxAttempts: cfg.Upload.MaxAttempts,
			BaseDelay:   cfg.Upload.BaseDelay,
			Multiplier:  2,
		},
		ProgressInterval: cfg.Progress.Interval,
	}
}

type Orchestrator struct {
	admission   *admission.Controller
	fetcher     Fetcher
	uploader    *uploader.Coordinator
	registry    *Registry
	notifier    *notify.Notifier
	metrics     *metrics.Metrics
	downloadDir string
	maxChunk    int64
	bufferSize  int
	interval    time.Duration
}

func New(opts Options) *Orchestrator {
	if opts.Admission == nil {
		opts.Admission = admission.New(1)
	}
	if opts.Registry == nil {
		opts.Registry = NewRegistry(0)
	}
	if opts.DownloadDir == "" {
		opts.DownloadDir = "downloads"
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = uploader.DefaultRetryPolicy()
	}

	coord := uploader.New(opts.Sink, opts.MaxParallel, opts.Retry)
	if opts.Sleep != nil {
		coord.Sleep = opts.Sleep
	}
	m := opts.Metrics
	coord.OnAttempt = func(_ types.Chunk, _ int, err error) {
		switch _, limited := uploader.RetryAfter(err); {
		case err == nil:
			m.UploadAttempt(metrics.AttemptOK)
		case limited:
			m.UploadAttempt(metrics.AttemptRateLimited)
		case uploader.IsRetryable(err):
			m.UploadAttempt(metrics.AttemptRetry)
		default:
			m.UploadAttempt(metrics.AttemptFatal)
		}
	}

	return &Orchestrator{
		admission:   opts.Admission,
		fetcher:     opts.Fetcher,
		uploader:    coord,
		registry:    opts.Registry,
		notifier:    opts.Notifier,
		metrics:     m,
		downloadDir: opts.DownloadDir,
		maxChunk:    opts.MaxChunkSize,
		bufferSize:  opts.BufferSize,
		interval:    opts.ProgressInterval,
	}
}

func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

func (o *Orchestrator) Admission() *admission.Controller {
	return o.admission
}

// Cancel aborts a running pipeline.
func (o *Orchestrator) Cancel(requestID string) bool {
	return o.registry.Cancel(requestID)
}

// CancelActor aborts every running pipeline of actorID.
func (o *Orchestrator) CancelActor(actorID int64) int {
	return o.registry.CancelActor(actorID)
}

// Workdir is the directory a job owns for its whole run.
func (o *Orchestrator) Workdir(job types.Job) string {
	return filepath.Join(o.downloadDir, strconv.FormatInt(job.ActorID, 10), job.RequestID)
}

// Run executes job end to end. status receives the user-visible progress
// lines; it may be nil. The returned error wraps one of the types.Err*
// sentinels and UserMessage renders it. The workdir, ticket and actor lock
// are released on every path.
func (o *Orchestrator) Run(ctx context.Context, job types.Job, status progress.StatusSink) (*types.JobResult, error) {
	if job.RequestID == "" {
		job.RequestID = tool.ShortID()
	}
	logger := tool.DefaultLogger.With("request", job.RequestID, "actor", job.ActorID)

	reporter := progress.NewReporter(job.RequestID, o.interval)
	if status != nil {
		reporter.AddSink(status)
	}
	reporter.Listen(o.registry.observe)
	reporter.Listen(o.notifier.PipelineProgress)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var result *types.JobResult
	admitted := false
	// Actor lock first, then the ticket. The job is registered in between so
	// a cancel reaches it while it still waits for a ticket.
	err := o.admission.WithActorExclusive(ctx, job.ActorID, func(ctx context.Context) error {
		if err := o.registry.add(job, cancel); err != nil {
			return err
		}
		defer o.registry.remove(job.RequestID)

		if err := o.admission.EnterGlobal(ctx); err != nil {
			err = queuedError(ctx, err)
			o.registry.abandon(job.RequestID, UserMessage(err))
			return err
		}
		defer o.admission.ExitGlobal()
		admitted = true

		o.metrics.PipelineStarted()
		o.notifier.PipelineStarted(job)
		var runErr error
		result, runErr = o.execute(ctx, job, reporter, logger)
		o.metrics.PipelineFinished(metricResult(runErr))
		return runErr
	})

	switch {
	case err == nil:
		logger.Info("pipeline completed", "chunks", len(result.Chunks), "bytes", result.TotalBytes, "elapsed", result.Elapsed)
		o.notifier.PipelineCompleted(job, result)
		return result, nil
	case !admitted:
		err = queuedError(ctx, err)
		o.metrics.Rejected(metricResult(err))
		logger.Warn("pipeline not admitted", "err", err)
		reporter.Report(context.WithoutCancel(ctx), types.ProgressEvent{
			Stage:   types.StageFailed,
			Message: UserMessage(err),
		})
		return nil, err
	default:
		logger.Error("pipeline failed", "err", err)
		o.notifier.PipelineFailed(job, err)
		return nil, err
	}
}

// queuedError marks errors of a pipeline cancelled before it got a ticket.
func queuedError(ctx context.Context, err error) error {
	if ctx.Err() != nil && !errors.Is(err, types.ErrCancelled) {
		return fmt.Errorf("%w: %w", types.ErrCancelled, err)
	}
	return err
}

// execute runs the stages while the caller holds the ticket and actor lock.
func (o *Orchestrator) execute(ctx context.Context, job types.Job, reporter *progress.Reporter, logger *log.Logger) (res *types.JobResult, err error) {
	started := time.Now()
	stage := Admitted
	if err := o.registry.transition(job.RequestID, Admitted); err != nil {
		return nil, err
	}

	workdir := o.Workdir(job)
	defer func() {
		tool.CleanupDir(workdir)
		_ = os.Remove(filepath.Dir(workdir)) // only succeeds once the actor has nothing else running
	}()
	defer func() {
		if err == nil {
			return
		}
		err = classify(ctx, stage, err)
		if tErr := o.registry.transition(job.RequestID, Failed); tErr != nil {
			logger.Error("state", "err", tErr)
		}
		o.registry.update(job.RequestID, func(s *types.PipelineSnapshot) {
			s.Stage = types.StageFailed
			s.Error = UserMessage(err)
		})
		reporter.Report(context.WithoutCancel(ctx), types.ProgressEvent{
			Stage:   types.StageFailed,
			Message: UserMessage(err),
		})
	}()

	advance := func(next State) error {
		stage = next
		return o.registry.transition(job.RequestID, next)
	}

	// fetch
	if err := advance(Fetching); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(workdir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workdir: %w", err)
	}
	if o.fetcher == nil {
		return nil, errors.New("no fetcher configured")
	}
	reporter.Say(ctx, "Starting download...")
	t0 := time.Now()
	path, err := o.fetcher.Fetch(ctx, job.URL, job.FormatID, workdir, func(st types.Stage, percent string) {
		if st == types.StageDownloading {
			reporter.Report(ctx, types.ProgressEvent{Stage: types.StageDownloading, Percent: percent})
		}
	})
	if err != nil {
		return nil, err
	}
	o.metrics.ObserveStage(string(types.StageDownloading), time.Since(t0))
	logger.Debug("fetched", "path", path)

	title := job.Title
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		o.registry.update(job.RequestID, func(s *types.PipelineSnapshot) { s.Title = title })
	}

	// split
	if err := advance(Splitting); err != nil {
		return nil, err
	}
	reporter.Say(ctx, "Splitting video...")
	t0 = time.Now()
	sp := splitter.New(o.maxChunk, o.bufferSize)
	chunks, err := sp.SplitFile(ctx, path)
	if err != nil {
		return nil, err
	}
	o.metrics.ObserveStage(string(types.StageSplitting), time.Since(t0))
	o.metrics.ChunksProduced(len(chunks))
	o.registry.update(job.RequestID, func(s *types.PipelineSnapshot) { s.Chunks = len(chunks) })

	var total int64
	names := make([]string, len(chunks))
	for i, c := range chunks {
		total += c.Size
		names[i] = c.Name
	}
	logger.Info("split", "chunks", len(chunks), "bytes", total)

	// upload
	if err := advance(Uploading); err != nil {
		return nil, err
	}
	reporter.Say(ctx, fmt.Sprintf("Uploading %d parts...", len(chunks)))
	t0 = time.Now()
	caption := func(i, n int) string {
		if n == 1 {
			return title
		}
		return fmt.Sprintf("%s — Part %d of %d", title, i+1, n)
	}
	err = o.uploader.UploadAll(ctx, chunks, caption, job.Destination, func(sent, total int64) {
		reporter.Report(ctx, types.ProgressEvent{Stage: types.StageUploading, Sent: sent, Total: total})
	})
	if err != nil {
		return nil, err
	}
	o.metrics.ObserveStage(string(types.StageUploading), time.Since(t0))
	o.metrics.Uploaded(total)

	if err := advance(Completed); err != nil {
		return nil, err
	}
	reporter.Report(ctx, types.ProgressEvent{Stage: types.StageFinished})

	return &types.JobResult{
		RequestID:         job.RequestID,
		Chunks:            chunks,
		TotalBytes:        total,
		Elapsed:           time.Since(started),
		MergeInstructions: MergeInstructions(names, title),
	}, nil
}
