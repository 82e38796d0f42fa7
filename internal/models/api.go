package models

// API error response envelope.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}

type DiscoverRequest struct {
	Channel string `json:"channel"`
	MaxNew  int    `json:"max_new"`
}

type QueueRunRequest struct {
	Limit int `json:"limit"`
}
