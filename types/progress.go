package types

import "time"

type Stage string

const (
	StageDownloading Stage = "downloading"
	StageSplitting   Stage = "splitting"
	StageUploading   Stage = "uploading"
	StageFinished    Stage = "finished"
	StageFailed      Stage = "failed"
)

// IsTerminal reports whether no further events follow this stage.
func (s Stage) IsTerminal() bool {
	return s == StageFinished || s == StageFailed
}

// ProgressEvent is one pipeline progress observation.
// Percent is set while downloading, Sent/Total while uploading.
type ProgressEvent struct {
	RequestID string    `json:"requestId"`
	Stage     Stage     `json:"stage"`
	Percent   string    `json:"percent,omitempty"`
	Sent      int64     `json:"sent,omitempty"`
	Total     int64     `json:"total,omitempty"`
	Message   string    `json:"message,omitempty"`
	At        time.Time `json:"at"`
}
