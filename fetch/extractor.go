// Package fetch drives yt-dlp to inspect and download remote media.
package fetch

import (
	"context"
	"os"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"github.com/moyoez/splitsend-go/tool"
	"github.com/moyoez/splitsend-go/types"
)

const DefaultExtractTimeout = 60 * time.Second

// Extractor lists the formats available for a URL without downloading it.
type Extractor struct {
	CookiesFile string
	Timeout     time.Duration
	MaxFormats  int
}

func NewExtractor(cfg types.FetchConfig) *Extractor {
	return &Extractor{
		CookiesFile: cfg.CookiesFile,
		Timeout:     cfg.ExtractTimeout,
		MaxFormats:  cfg.MaxFormats,
	}
}

func (e *Extractor) Extract(ctx context.Context, url string) (*types.MediaInfo, error) {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultExtractTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := ytdlp.New().
		DumpSingleJSON().
		SkipDownload().
		NoPlaylist().
		NoWarnings()
	if cookies := usableCookies(e.CookiesFile); cookies != "" {
		cmd.Cookies(cookies)
	}

	result, err := cmd.Run(ctx, url)
	if err != nil {
		tool.DefaultLogger.Warnf("[Fetch] extract %s failed: %v", url, err)
		return nil, classify(ctx, err, result)
	}
	info, err := ParseInfo(result.Stdout, e.MaxFormats)
	if err != nil {
		return nil, err
	}
	tool.DefaultLogger.Debugf("[Fetch] %s: %q, %d formats", url, info.Title, len(info.Formats))
	return info, nil
}

// usableCookies returns path when it names an existing file.
func usableCookies(path string) string {
	if path == "" {
		return ""
	}
	if _, err := os.Stat(path); err != nil {
		tool.DefaultLogger.Debugf("[Fetch] cookies file %s ignored: %v", path, err)
		return ""
	}
	return path
}
