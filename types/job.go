package types

import "time"

// Job is one end-to-end pipeline request.
type Job struct {
	RequestID   string `json:"requestId"`
	ActorID     int64  `json:"actorId"`
	Username    string `json:"username,omitempty"`
	Destination string `json:"destination"`
	URL         string `json:"url"`
	FormatID    string `json:"formatId"`
	Title       string `json:"title"`
}

// JobResult describes a completed pipeline.
type JobResult struct {
	RequestID         string        `json:"requestId"`
	Chunks            []Chunk       `json:"chunks"`
	TotalBytes        int64         `json:"totalBytes"`
	Elapsed           time.Duration `json:"elapsed"`
	MergeInstructions string        `json:"mergeInstructions,omitempty"`
}

// PipelineSnapshot is the externally visible state of a pipeline.
type PipelineSnapshot struct {
	RequestID string    `json:"requestId"`
	ActorID   int64     `json:"actorId"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	State     string    `json:"state"`
	Stage     Stage     `json:"stage,omitempty"`
	Percent   string    `json:"percent,omitempty"`
	Sent      int64     `json:"sent,omitempty"`
	Total     int64     `json:"total,omitempty"`
	Chunks    int       `json:"chunks,omitempty"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"startedAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PendingRequest is an extracted URL waiting for the user to pick a format.
type PendingRequest struct {
	RequestID string    `json:"requestId"`
	ActorID   int64     `json:"actorId"`
	ChatID    int64     `json:"chatId"`
	URL       string    `json:"url"`
	Info      MediaInfo `json:"info"`
	CreatedAt time.Time `json:"createdAt"`
}

// FindFormat returns the format with the given id.
func (p PendingRequest) FindFormat(formatID string) (MediaFormat, bool) {
	for _, f := range p.Info.Formats {
		if f.FormatID == formatID {
			return f, true
		}
	}
	return MediaFormat{}, false
}
