package api

// Shared response envelopes referenced by handler swagger annotations.

type ErrorResponse struct {
	Error string `json:"error" example:"something went wrong"`
}

type MessageResponse struct {
	Message string `json:"message" example:"ok"`
}

type HealthResponse struct {
	Status   string `json:"status" example:"ok"`
	Database string `json:"database" example:"up"`
}

// InsufficientCreditsResponse is the 402 payload. Clients use required and
// available to render an upgrade prompt.
type InsufficientCreditsResponse struct {
	Error     string `json:"error" example:"insufficient credits"`
	Required  int64  `json:"required" example:"2"`
	Available int64  `json:"available" example:"1"`
}
