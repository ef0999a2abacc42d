package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/moyoez/splitsend-go/tool"
	"github.com/moyoez/splitsend-go/types"
)

// Broadcaster receives every notification, e.g. the websocket hub.
type Broadcaster interface {
	Broadcast(notification *types.Notification)
}

// Notifier publishes pipeline lifecycle events. A nil *Notifier is valid and
// drops everything.
type Notifier struct {
	SocketPath string
	UseSocket  bool

	mu   sync.RWMutex
	hubs []Broadcaster
	wg   sync.WaitGroup
}

func New(cfg types.NotifyConfig) *Notifier {
	return &Notifier{
		SocketPath: cfg.SocketPath,
		UseSocket:  cfg.SocketPath != "",
	}
}

func (n *Notifier) AddHub(b Broadcaster) {
	if n == nil || b == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.hubs = append(n.hubs, b)
}

// Publish fans a notification out to the hubs, and to the unix socket in the
// background unless it is a progress tick.
func (n *Notifier) Publish(notification *types.Notification) {
	if n == nil || notification == nil {
		return
	}
	n.mu.RLock()
	hubs := append([]Broadcaster(nil), n.hubs...)
	n.mu.RUnlock()
	for _, h := range hubs {
		h.Broadcast(notification)
	}

	if !n.UseSocket || notification.Type == types.NotifyTypePipelineProgress {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), DefaultSocketTimeout)
		defer cancel()
		if err := SendNotification(ctx, notification, n.SocketPath); err != nil {
			tool.DefaultLogger.Debugf("[Notify] %s: %v", notification.Type, err)
		}
	}()
}

// Wait blocks until queued socket deliveries finish.
func (n *Notifier) Wait() {
	if n == nil {
		return
	}
	n.wg.Wait()
}

func (n *Notifier) PipelineStarted(job types.Job) {
	n.Publish(&types.Notification{
		Type:    types.NotifyTypePipelineStarted,
		Title:   "Pipeline Started",
		Message: fmt.Sprintf("%s requested by %d", job.URL, job.ActorID),
		Data:    jobData(job),
	})
}

func (n *Notifier) PipelineProgress(ev types.ProgressEvent) {
	n.Publish(&types.Notification{
		Type:  types.NotifyTypePipelineProgress,
		Title: string(ev.Stage),
		Data: map[string]any{
			"requestId": ev.RequestID,
			"stage":     ev.Stage,
			"percent":   ev.Percent,
			"sent":      ev.Sent,
			"total":     ev.Total,
		},
	})
}

func (n *Notifier) PipelineCompleted(job types.Job, result *types.JobResult) {
	data := jobData(job)
	msg := "Processing complete"
	if result != nil {
		data["chunks"] = len(result.Chunks)
		data["totalBytes"] = result.TotalBytes
		data["elapsedMs"] = result.Elapsed.Milliseconds()
		msg = fmt.Sprintf("%d part(s), %s", len(result.Chunks), tool.HumanReadableSize(result.TotalBytes))
	}
	n.Publish(&types.Notification{
		Type:    types.NotifyTypePipelineCompleted,
		Title:   "Pipeline Completed",
		Message: msg,
		Data:    data,
	})
}

func (n *Notifier) PipelineFailed(job types.Job, err error) {
	data := jobData(job)
	msg := ""
	if err != nil {
		msg = err.Error()
		data["error"] = msg
	}
	n.Publish(&types.Notification{
		Type:    types.NotifyTypePipelineFailed,
		Title:   "Pipeline Failed",
		Message: msg,
		Data:    data,
	})
}

func jobData(job types.Job) map[string]any {
	return map[string]any{
		"requestId":   job.RequestID,
		"actorId":     job.ActorID,
		"destination": job.Destination,
		"url":         job.URL,
		"title":       job.Title,
	}
}
