package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/moyoez/splitsend-go/admission"
	"github.com/moyoez/splitsend-go/api"
	"github.com/moyoez/splitsend-go/api/notifyhub"
	"github.com/moyoez/splitsend-go/bot"
	"github.com/moyoez/splitsend-go/fetch"
	"github.com/moyoez/splitsend-go/metrics"
	"github.com/moyoez/splitsend-go/notify"
	"github.com/moyoez/splitsend-go/pipeline"
	"github.com/moyoez/splitsend-go/share"
	"github.com/moyoez/splitsend-go/tool"
	"github.com/moyoez/splitsend-go/transfer"
	"github.com/moyoez/splitsend-go/types"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot and the status API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(true)
			if err != nil {
				return err
			}
			defer tool.CloseLogFile()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, stop, cfg)
		},
	}
}

func runServe(ctx context.Context, stop context.CancelFunc, cfg types.AppConfig) error {
	if cfg.Download.CleanOnStart {
		if err := tool.CleanupDownloadDir(cfg.Download.Path); err != nil {
			return err
		}
	} else if err := os.MkdirAll(cfg.Download.Path, 0o755); err != nil {
		return fmt.Errorf("failed to create download directory: %v", err)
	}
	if cfg.Fetch.AutoInstall {
		if err := fetch.EnsureInstalled(ctx); err != nil {
			return err
		}
	}

	m := metrics.New(nil)
	adm := admission.New(cfg.Admission.MaxConcurrent)
	m.WatchAdmission(adm)

	notifier := notify.New(cfg.Notify)
	var hub *notifyhub.Hub
	if cfg.Notify.WebSocket {
		hub = notifyhub.New()
		notifier.AddHub(hub)
	}

	sink, err := transfer.NewSender(ctx, cfg)
	if err != nil {
		return err
	}

	opts := pipeline.OptionsFromConfig(cfg)
	opts.Admission = adm
	opts.Fetcher = fetch.NewDownloader(cfg.Fetch)
	opts.Sink = sink
	opts.Registry = pipeline.NewRegistry(0)
	opts.Notifier = notifier
	opts.Metrics = m
	orch := pipeline.New(opts)

	client, err := bot.NewClient(cfg.Telegram)
	if err != nil {
		return err
	}
	handler := bot.NewHandler(client, fetch.NewExtractor(cfg.Fetch), orch, share.NewPendingStore(cfg.Telegram.PendingTTL))
	poller := bot.NewPoller(client, handler, cfg.Telegram.Workers)

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.NewServer(ctx, api.Options{
			Listen:   cfg.API.Listen,
			Strategy: cfg.Upload.Strategy,
			Pipeline: orch,
			Hub:      hub,
			Metrics:  m,
		})
		go func() {
			if err := apiServer.Start(); err != nil {
				tool.DefaultLogger.Errorf("API server startup failed: %v", err)
				stop()
			}
		}()
	}

	go housekeeping(ctx, adm, cfg.Admission.HousekeepingInterval)

	tool.DefaultLogger.Infof("splitsend %s: strategy=%s, capacity=%d, max chunk=%s",
		tool.Version, cfg.Upload.Strategy, adm.Capacity(), tool.HumanReadableSize(cfg.Split.MaxChunkBytes()))
	err = poller.Run(ctx)

	tool.DefaultLogger.Info("Shutting down...")
	handler.Wait()
	if apiServer != nil {
		if shutdownErr := apiServer.Shutdown(context.Background()); shutdownErr != nil {
			tool.DefaultLogger.Errorf("API server shutdown failed: %v", shutdownErr)
		}
	}
	notifier.Wait()
	return err
}

// housekeeping drops lock entries of actors with nothing running.
func housekeeping(ctx context.Context, adm *admission.Controller, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := adm.ForgetIdle(); n > 0 {
				tool.DefaultLogger.Debugf("Forgot %d idle actors", n)
			}
		}
	}
}
