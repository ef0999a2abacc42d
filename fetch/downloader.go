package fetch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"github.com/moyoez/splitsend-go/tool"
	"github.com/moyoez/splitsend-go/types"
)

const (
	DefaultConcurrentFragments = 8
	outputTemplate             = "%(title)s.%(ext)s"
	progressFrequency          = 500 * time.Millisecond
)

// ProgressFunc receives the download stage and a percent string like "45.3%".
type ProgressFunc func(stage types.Stage, percent string)

type Downloader struct {
	CookiesFile         string
	ConcurrentFragments int
}

func NewDownloader(cfg types.FetchConfig) *Downloader {
	return &Downloader{
		CookiesFile:         cfg.CookiesFile,
		ConcurrentFragments: cfg.ConcurrentFragments,
	}
}

// Selector turns a bare format id into an expression that merges in the best
// audio track, falling back to the best single file.
func Selector(formatID string) string {
	if formatID == "" {
		return "best"
	}
	if strings.ContainsAny(formatID, "+/") {
		return formatID
	}
	return formatID + "+bestaudio/best"
}

// Fetch downloads url into dir and returns the path of the produced file.
func (d *Downloader) Fetch(ctx context.Context, url, formatID, dir string, onProgress ProgressFunc) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create workdir: %w", err)
	}
	fragments := d.ConcurrentFragments
	if fragments <= 0 {
		fragments = DefaultConcurrentFragments
	}

	cmd := ytdlp.New().
		Format(Selector(formatID)).
		Output(filepath.Join(dir, outputTemplate)).
		NoPlaylist().
		RestrictFilenames().
		NoPart().
		ConcurrentFragments(fragments).
		NoWarnings()
	if cookies := usableCookies(d.CookiesFile); cookies != "" {
		cmd.Cookies(cookies)
	}
	if onProgress != nil {
		cmd.ProgressFunc(progressFrequency, func(update ytdlp.ProgressUpdate) {
			if update.TotalBytes <= 0 {
				return
			}
			percent := float64(update.DownloadedBytes) / float64(update.TotalBytes) * 100
			onProgress(types.StageDownloading, fmt.Sprintf("%.1f%%", percent))
		})
	}

	result, err := cmd.Run(ctx, url)
	if err != nil {
		return "", classify(ctx, err, result)
	}

	path, err := resolveOutput(result, dir)
	if err != nil {
		return "", err
	}
	if onProgress != nil {
		onProgress(types.StageFinished, "100.0%")
	}
	tool.DefaultLogger.Debugf("[Fetch] %s downloaded to %s", url, path)
	return path, nil
}

// resolveOutput prefers the filename yt-dlp reported and falls back to the
// largest file in dir.
func resolveOutput(result *ytdlp.Result, dir string) (string, error) {
	if result != nil {
		if info, err := result.GetExtractedInfo(); err == nil && len(info) > 0 && info[0].Filename != nil {
			if st, err := os.Stat(*info[0].Filename); err == nil && !st.IsDir() {
				return *info[0].Filename, nil
			}
		}
	}
	path, err := tool.LargestFile(dir)
	if err != nil {
		return "", fmt.Errorf("%w: no output file: %w", types.ErrSourceUnavailable, err)
	}
	return path, nil
}

// EnsureInstalled downloads a yt-dlp binary when none is available.
func EnsureInstalled(ctx context.Context) error {
	resolved, err := ytdlp.Install(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to install yt-dlp: %w", err)
	}
	tool.DefaultLogger.Infof("[Fetch] using yt-dlp %s at %s", resolved.Version, resolved.Executable)
	return nil
}
