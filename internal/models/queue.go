package models

import "time"

// QueueEntry is a discovered but not yet transcribed video. An entry is
// removed only after a transcript for its video id has been cached; a failed
// acquisition leaves the entry in place for retry.
type QueueEntry struct {
	VideoID          string    `json:"video_id"`
	CaptionAvailable bool      `json:"caption_available"`
	DiscoveredAt     time.Time `json:"discovered_at"`
}

// DiscoveryResult summarizes one discovery pass over a channel.
type DiscoveryResult struct {
	ChannelID       string   `json:"channel_id"`
	TotalDiscovered int      `json:"total_discovered"`
	AlreadyCached   int      `json:"already_cached"`
	AlreadyQueued   int      `json:"already_queued"`
	NewlyQueued     int      `json:"newly_queued"`
	Failed          int      `json:"failed"`
	VideoIDs        []string `json:"video_ids"`
}

type QueueStats struct {
	Total            int `json:"total"`
	CaptionAvailable int `json:"caption_available"`
	Pending          int `json:"pending"`
}

// Pipeline position of a video, as reported by the status endpoint.
const (
	StatusCached  = "cached"
	StatusQueued  = "queued"
	StatusUnknown = "unknown"
)

// VideoStatus reports where a video id sits in the acquisition pipeline.
type VideoStatus struct {
	VideoID          string     `json:"video_id"`
	Status           string     `json:"status"`
	CaptionAvailable *bool      `json:"caption_available,omitempty"`
	DiscoveredAt     *time.Time `json:"discovered_at,omitempty"`
}

// AcquisitionJob is the payload pushed onto the redis acquisition queue.
type AcquisitionJob struct {
	VideoID   string `json:"video_id"`
	Committee string `json:"committee,omitempty"`
}
