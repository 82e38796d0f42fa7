package services

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"civicscribe-backend/internal/models"
)

// MetadataService retrieves descriptive video metadata from the YouTube Data
// API. Callers treat it as best effort; a failure never blocks acquisition.
type MetadataService struct {
	yt *youtube.Service
}

func NewMetadataService(ctx context.Context, apiKey string) (*MetadataService, error) {
	svc, err := youtube.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube Data API client: %w", err)
	}
	return &MetadataService{yt: svc}, nil
}

func (s *MetadataService) Fetch(ctx context.Context, videoID string) (*models.VideoMetadata, error) {
	resp, err := s.yt.Videos.List([]string{"snippet", "contentDetails", "statistics"}).
		Id(videoID).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("videos.list failed for %s: %w", videoID, err)
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("video %s not found", videoID)
	}

	item := resp.Items[0]
	meta := &models.VideoMetadata{VideoID: videoID}

	if item.Snippet != nil {
		meta.Title = item.Snippet.Title
		meta.Channel = item.Snippet.ChannelTitle
		if t, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt); err == nil {
			meta.PublishedAt = &t
		} else {
			log.Printf("Unparseable publishedAt %q for %s", item.Snippet.PublishedAt, videoID)
		}
	}
	if item.ContentDetails != nil {
		meta.DurationSeconds = parseISODuration(item.ContentDetails.Duration)
		meta.DurationFormatted = formatDuration(meta.DurationSeconds)
	}
	if item.Statistics != nil {
		meta.ViewCount = int64(item.Statistics.ViewCount)
		meta.LikeCount = int64(item.Statistics.LikeCount)
		meta.CommentCount = int64(item.Statistics.CommentCount)
	}

	return meta, nil
}

var isoDurationRe = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// parseISODuration converts the API's ISO 8601 duration (e.g. "PT19M3S") to
// seconds. Unrecognized input yields zero.
func parseISODuration(iso string) int {
	m := isoDurationRe.FindStringSubmatch(iso)
	if m == nil {
		return 0
	}
	hours, _ := strconv.Atoi(m[1])
	minutes, _ := strconv.Atoi(m[2])
	seconds, _ := strconv.Atoi(m[3])
	return hours*3600 + minutes*60 + seconds
}

// formatDuration renders seconds as "mm:ss" or "h:mm:ss".
func formatDuration(seconds int) string {
	if seconds <= 0 {
		return ""
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
