package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Transcript source values recorded on a cached transcript.
const (
	SourceCaptionsAPI   = "captions_api"
	SourceSpeechToText  = "speech_to_text"
	SourceDatabaseCache = "database_cache"
)

type TranscriptRecord struct {
	ID                uuid.UUID  `json:"id"`
	VideoID           string     `json:"video_id"`
	Content           string     `json:"content"`
	Source            string     `json:"source"` // "captions_api" | "speech_to_text" | "database_cache"
	Committee         string     `json:"committee,omitempty"`
	FetchedAt         time.Time  `json:"fetched_at"`
	Title             string     `json:"title,omitempty"`
	Channel           string     `json:"channel,omitempty"`
	PublishedAt       *time.Time `json:"published_at,omitempty"`
	DurationSeconds   int        `json:"duration_seconds,omitempty"`
	DurationFormatted string     `json:"duration_formatted,omitempty"`
	ViewCount         int64      `json:"view_count,omitempty"`
	LikeCount         int64      `json:"like_count,omitempty"`
	CommentCount      int64      `json:"comment_count,omitempty"`
}

// CaptionSnippet is one timed caption line as returned by the captions source.
type CaptionSnippet struct {
	Text     string  `json:"text"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// RawCaptions is the ordered caption track for a video before it is flattened
// into transcript text.
type RawCaptions struct {
	VideoID      string           `json:"video_id"`
	Snippets     []CaptionSnippet `json:"snippets"`
	Language     string           `json:"language,omitempty"`
	LanguageCode string           `json:"language_code,omitempty"`
	IsGenerated  bool             `json:"is_generated"`
}

// Text flattens the snippets into a single space-separated string.
func (c *RawCaptions) Text() string {
	var parts []string
	for _, s := range c.Snippets {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// VideoMetadata is the descriptive, best-effort metadata attached to a record.
type VideoMetadata struct {
	VideoID           string     `json:"video_id"`
	Title             string     `json:"title"`
	Channel           string     `json:"channel"`
	PublishedAt       *time.Time `json:"published_at"`
	DurationSeconds   int        `json:"duration_seconds"`
	DurationFormatted string     `json:"duration_formatted"`
	ViewCount         int64      `json:"view_count"`
	LikeCount         int64      `json:"like_count"`
	CommentCount      int64      `json:"comment_count"`
}
