// Package progress turns pipeline progress events into throttled status text.
package progress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/moyoez/splitsend-go/tool"
	"github.com/moyoez/splitsend-go/types"
)

const DefaultInterval = 5 * time.Second

// StatusSink shows one line of status text to whoever started the pipeline.
type StatusSink interface {
	Update(ctx context.Context, text string) error
}

type StatusSinkFunc func(ctx context.Context, text string) error

func (f StatusSinkFunc) Update(ctx context.Context, text string) error {
	return f(ctx, text)
}

// Listener receives every event the reporter emits.
type Listener func(ev types.ProgressEvent)

// Reporter emits at most one update per interval. Terminal stages are always
// emitted and nothing is emitted after them. Sink failures are logged and
// otherwise ignored.
type Reporter struct {
	mu        sync.Mutex
	requestID string
	interval  time.Duration
	now       func() time.Time
	sinks     []StatusSink
	listeners []Listener

	lastEmit time.Time
	lastText string
	lastSent int64
	emitted  bool
	terminal bool
}

func NewReporter(requestID string, interval time.Duration, sinks ...StatusSink) *Reporter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reporter{
		requestID: requestID,
		interval:  interval,
		now:       time.Now,
		sinks:     sinks,
	}
}

// SetClock replaces time.Now, for tests.
func (r *Reporter) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

func (r *Reporter) AddSink(s StatusSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks = append(r.sinks, s)
}

func (r *Reporter) Listen(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// Report offers an event and reports whether it was emitted.
func (r *Reporter) Report(ctx context.Context, ev types.ProgressEvent) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.terminal {
		return false
	}
	if ev.Stage == types.StageUploading {
		if ev.Sent < r.lastSent {
			ev.Sent = r.lastSent
		}
		r.lastSent = ev.Sent
	}

	now := r.now()
	terminal := ev.Stage.IsTerminal()
	if !terminal && r.emitted && now.Sub(r.lastEmit) < r.interval {
		return false
	}
	text := Format(ev)
	if !terminal && text == r.lastText {
		return false
	}

	r.lastEmit = now
	r.lastText = text
	r.emitted = true
	r.terminal = terminal
	if ev.RequestID == "" {
		ev.RequestID = r.requestID
	}
	if ev.At.IsZero() {
		ev.At = now
	}
	r.emit(ctx, text, ev)
	return true
}

// Say sends text right away, outside the throttle. Used for one-off stage
// banners such as "Uploading 3 parts...".
func (r *Reporter) Say(ctx context.Context, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.terminal {
		return
	}
	r.lastText = text
	for _, s := range r.sinks {
		if err := s.Update(ctx, text); err != nil {
			tool.DefaultLogger.Debugf("[Progress] %s: status update failed: %v", r.requestID, err)
		}
	}
}

func (r *Reporter) emit(ctx context.Context, text string, ev types.ProgressEvent) {
	for _, s := range r.sinks {
		if err := s.Update(ctx, text); err != nil {
			tool.DefaultLogger.Debugf("[Progress] %s: status update failed: %v", r.requestID, err)
		}
	}
	for _, l := range r.listeners {
		l(ev)
	}
}

// Format renders the status line for an event.
func Format(ev types.ProgressEvent) string {
	switch ev.Stage {
	case types.StageDownloading:
		return "Downloading: " + ev.Percent
	case types.StageSplitting:
		return "Splitting video..."
	case types.StageUploading:
		var p float64
		if ev.Total > 0 {
			p = float64(ev.Sent) / float64(ev.Total) * 100
		}
		return fmt.Sprintf("Uploading: %.1f%% (%s / %s)", p, tool.HumanReadableSize(ev.Sent), tool.HumanReadableSize(ev.Total))
	case types.StageFinished:
		return "Processing complete!"
	case types.StageFailed:
		if ev.Message == "" {
			return "Task failed"
		}
		return ev.Message
	}
	return ev.Message
}
