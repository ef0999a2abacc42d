package fetch

import (
	"fmt"
	"sort"

	"github.com/bytedance/sonic"

	"github.com/moyoez/splitsend-go/tool"
	"github.com/moyoez/splitsend-go/types"
)

const DefaultMaxFormats = 10

// rawInfo is the subset of yt-dlp's info JSON we read.
type rawInfo struct {
	Title     string      `json:"title"`
	Duration  float64     `json:"duration"`
	Uploader  string      `json:"uploader"`
	Extractor string      `json:"extractor"`
	Formats   []rawFormat `json:"formats"`
}

type rawFormat struct {
	FormatID       string  `json:"format_id"`
	Resolution     string  `json:"resolution"`
	FormatNote     string  `json:"format_note"`
	Height         float64 `json:"height"`
	Ext            string  `json:"ext"`
	VCodec         string  `json:"vcodec"`
	ACodec         string  `json:"acodec"`
	Filesize       float64 `json:"filesize"`
	FilesizeApprox float64 `json:"filesize_approx"`
}

// ParseInfo decodes yt-dlp --dump-single-json output.
func ParseInfo(data string, maxFormats int) (*types.MediaInfo, error) {
	var raw rawInfo
	if err := sonic.UnmarshalString(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse extractor output: %v", err)
	}
	info := processInfo(raw, maxFormats)
	return &info, nil
}

// processInfo keeps one format per resolution, preferring mp4 and formats
// with a known size, best resolution first.
func processInfo(raw rawInfo, maxFormats int) types.MediaInfo {
	if maxFormats <= 0 {
		maxFormats = DefaultMaxFormats
	}
	info := types.MediaInfo{
		Title:    orDefault(raw.Title, "Unknown Title"),
		Duration: raw.Duration,
		Uploader: orDefault(raw.Uploader, "Unknown Uploader"),
		Platform: orDefault(raw.Extractor, "Unknown Platform"),
	}

	byResolution := make(map[string]int)
	for _, f := range raw.Formats {
		if f.VCodec == "none" || f.FormatID == "" {
			continue
		}
		resolution := f.Resolution
		if resolution == "" {
			resolution = f.FormatNote
		}
		if resolution == "" {
			if f.Height <= 0 {
				continue
			}
			resolution = fmt.Sprintf("%dp", int(f.Height))
		}

		size := int64(f.Filesize)
		if size <= 0 {
			size = int64(f.FilesizeApprox)
		}
		candidate := types.MediaFormat{
			FormatID:   f.FormatID,
			Resolution: resolution,
			Height:     int(f.Height),
			Ext:        f.Ext,
			Filesize:   size,
			VCodec:     f.VCodec,
			ACodec:     f.ACodec,
		}

		idx, seen := byResolution[resolution]
		if !seen {
			byResolution[resolution] = len(info.Formats)
			info.Formats = append(info.Formats, candidate)
			continue
		}
		existing := info.Formats[idx]
		if (existing.Filesize == 0 && size > 0) || (existing.Ext != "mp4" && f.Ext == "mp4") {
			info.Formats[idx] = candidate
		}
	}

	sort.SliceStable(info.Formats, func(i, j int) bool {
		return info.Formats[i].Height > info.Formats[j].Height
	})
	if len(info.Formats) > maxFormats {
		info.Formats = info.Formats[:maxFormats]
	}
	for i := range info.Formats {
		info.Formats[i].FilesizeStr = "Unknown"
		if info.Formats[i].Filesize > 0 {
			info.Formats[i].FilesizeStr = tool.HumanReadableSize(info.Formats[i].Filesize)
		}
	}
	return info
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
