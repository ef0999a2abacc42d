package bot

import (
	"context"
	"sync"
	"time"

	"github.com/moyoez/splitsend-go/tool"
	"github.com/moyoez/splitsend-go/types"
)

const (
	DefaultWorkers    = 50
	defaultRetryDelay = 3 * time.Second
)

// Poller long-polls getUpdates and hands every update to the handler,
// at most Workers at a time.
type Poller struct {
	client     *Client
	handler    *Handler
	workers    int
	retryDelay time.Duration
	offset     int64
}

func NewPoller(c *Client, h *Handler, workers int) *Poller {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Poller{client: c, handler: h, workers: workers, retryDelay: defaultRetryDelay}
}

// Run polls until ctx is done, then waits for in-flight handlers.
func (p *Poller) Run(ctx context.Context) error {
	sem := make(chan struct{}, p.workers)
	var wg sync.WaitGroup
	defer wg.Wait()

	tool.DefaultLogger.Info("Bot started and polling...")
	for {
		updates, err := p.client.GetUpdates(ctx, p.offset)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			tool.DefaultLogger.Warnf("[Bot] getUpdates failed: %v, retrying in %s", err, p.retryDelay)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(p.retryDelay):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= p.offset {
				p.offset = u.UpdateID + 1
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return nil
			}
			wg.Add(1)
			go func(u types.Update) {
				defer wg.Done()
				defer func() { <-sem }()
				defer func() {
					if r := recover(); r != nil {
						tool.DefaultLogger.Errorf("[Bot] update %d caused panic: %v", u.UpdateID, r)
					}
				}()
				p.handler.Handle(ctx, u)
			}(u)
		}
	}
}
