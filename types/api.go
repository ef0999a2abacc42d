package types

// StatusResponse is returned by the status endpoint.
type StatusResponse struct {
	Version         string `json:"version"`
	Strategy        string `json:"strategy"`
	Capacity        int    `json:"capacity"`
	Outstanding     int    `json:"outstanding"`
	ActiveActors    int    `json:"activeActors"`
	ActivePipelines int    `json:"activePipelines"`
	Uptime          string `json:"uptime"`
}

// SubmitJobRequest is the body of a job submitted over the status API.
type SubmitJobRequest struct {
	ActorID     int64  `json:"actorId" binding:"required"`
	Destination string `json:"destination" binding:"required"`
	URL         string `json:"url" binding:"required"`
	FormatID    string `json:"formatId"`
	Title       string `json:"title"`
}
