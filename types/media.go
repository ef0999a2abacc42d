package types

import "fmt"

// MediaInfo is the processed extractor output shown to the user.
type MediaInfo struct {
	Title    string        `json:"title"`
	Duration float64       `json:"duration"`
	Uploader string        `json:"uploader"`
	Platform string        `json:"platform"`
	Formats  []MediaFormat `json:"formats"`
}

// MediaFormat is one selectable quality, deduplicated by resolution.
type MediaFormat struct {
	FormatID    string `json:"formatId"`
	Resolution  string `json:"resolution"`
	Height      int    `json:"height"`
	Ext         string `json:"ext"`
	Filesize    int64  `json:"filesize,omitempty"`
	FilesizeStr string `json:"filesizeStr"`
	VCodec      string `json:"vcodec,omitempty"`
	ACodec      string `json:"acodec,omitempty"`
}

// Label is the button text offered to the user.
func (f MediaFormat) Label() string {
	if f.Ext == "" {
		return fmt.Sprintf("%s - %s", f.Resolution, f.FilesizeStr)
	}
	return fmt.Sprintf("%s (%s) - %s", f.Resolution, f.Ext, f.FilesizeStr)
}
