package types

const (
	NotifyTypePipelineStarted   = "pipeline_started"
	NotifyTypePipelineProgress  = "pipeline_progress"
	NotifyTypePipelineCompleted = "pipeline_completed"
	NotifyTypePipelineFailed    = "pipeline_failed"
)

// Notification represents a notification message structure
type Notification struct {
	Type    string         `json:"type,omitempty"`    // Notification type, e.g. "pipeline_started", "pipeline_failed", etc.
	Title   string         `json:"title,omitempty"`   // Notification title
	Message string         `json:"message,omitempty"` // Notification message/content
	Data    map[string]any `json:"data,omitempty"`    // Additional data fields
}
