package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"civicscribe-backend/internal/models"
	"civicscribe-backend/internal/repository"
)

const playlistPageSize = 50 // YouTube Data API per-request maximum

// channelLister abstracts the platform listing calls so discovery logic is
// testable without quota.
type channelLister interface {
	ResolveChannelID(ctx context.Context, ref string) (string, error)
	UploadsPlaylistID(ctx context.Context, channelID string) (string, error)
	PlaylistVideoIDs(ctx context.Context, playlistID, pageToken string) ([]string, string, error)
	HasCaptions(ctx context.Context, videoID string) (bool, error)
}

type cachedIDSource interface {
	ExistingVideoIDs(ctx context.Context) (map[string]bool, error)
	Exists(ctx context.Context, videoID string) (bool, error)
}

type queueStore interface {
	QueuedVideoIDs(ctx context.Context) (map[string]bool, error)
	Insert(ctx context.Context, e *models.QueueEntry) error
	Get(ctx context.Context, videoID string) (*models.QueueEntry, error)
	Stats(ctx context.Context) (*models.QueueStats, error)
}

// DiscoveryService lists a channel's uploads, filters out videos already
// cached or queued, probes caption availability, and feeds the work queue.
type DiscoveryService struct {
	lister      channelLister
	transcripts cachedIDSource
	queue       queueStore
}

func NewDiscoveryService(lister channelLister, transcripts cachedIDSource, queue queueStore) *DiscoveryService {
	return &DiscoveryService{lister: lister, transcripts: transcripts, queue: queue}
}

// Discover pages through the channel's uploads until the listing is exhausted
// or maxNew previously unknown candidates have been seen, queueing each new
// one. Per-id failures are counted, not fatal to the pass.
func (s *DiscoveryService) Discover(ctx context.Context, channelRef string, maxNew int) (*models.DiscoveryResult, error) {
	channelID, err := s.lister.ResolveChannelID(ctx, channelRef)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve channel %q: %w", channelRef, err)
	}

	uploadsID, err := s.lister.UploadsPlaylistID(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve uploads playlist for %s: %w", channelID, err)
	}

	cached, err := s.transcripts.ExistingVideoIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load cached video ids: %w", err)
	}
	queued, err := s.queue.QueuedVideoIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load queued video ids: %w", err)
	}

	result := &models.DiscoveryResult{ChannelID: channelID}
	seen := make(map[string]bool)
	newCandidates := 0
	pageToken := ""

	for {
		ids, nextToken, err := s.lister.PlaylistVideoIDs(ctx, uploadsID, pageToken)
		if err != nil {
			return nil, fmt.Errorf("failed to list uploads page: %w", err)
		}

		for _, videoID := range ids {
			if seen[videoID] {
				continue
			}
			seen[videoID] = true
			result.TotalDiscovered++
			result.VideoIDs = append(result.VideoIDs, videoID)

			switch {
			case cached[videoID]:
				result.AlreadyCached++
			case queued[videoID]:
				result.AlreadyQueued++
			default:
				newCandidates++
				if s.enqueue(ctx, videoID) {
					result.NewlyQueued++
				} else {
					result.Failed++
				}
			}

			if newCandidates >= maxNew {
				break
			}
		}

		if newCandidates >= maxNew || nextToken == "" {
			break
		}
		pageToken = nextToken
	}

	log.Printf("Discovery for channel %s: %d discovered, %d cached, %d queued, %d newly queued, %d failed",
		channelID, result.TotalDiscovered, result.AlreadyCached, result.AlreadyQueued, result.NewlyQueued, result.Failed)
	return result, nil
}

// enqueue probes caption availability and inserts the queue entry. The probe
// checks for track existence only, it never downloads content; a probe failure
// queues the video with caption_available false.
func (s *DiscoveryService) enqueue(ctx context.Context, videoID string) bool {
	available, err := s.lister.HasCaptions(ctx, videoID)
	if err != nil {
		log.Printf("Caption probe failed for %s: %v", videoID, err)
		available = false
	}

	entry := &models.QueueEntry{VideoID: videoID, CaptionAvailable: available}
	if err := s.queue.Insert(ctx, entry); err != nil {
		log.Printf("Failed to queue %s: %v", videoID, err)
		return false
	}
	return true
}

func (s *DiscoveryService) QueueStats(ctx context.Context) (*models.QueueStats, error) {
	return s.queue.Stats(ctx)
}

// VideoStatus reports whether a video is cached, queued, or unknown to the
// pipeline.
func (s *DiscoveryService) VideoStatus(ctx context.Context, videoID string) (*models.VideoStatus, error) {
	cached, err := s.transcripts.Exists(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("failed to check transcript cache for %s: %w", videoID, err)
	}
	if cached {
		return &models.VideoStatus{VideoID: videoID, Status: models.StatusCached}, nil
	}

	entry, err := s.queue.Get(ctx, videoID)
	if errors.Is(err, repository.ErrNotFound) {
		return &models.VideoStatus{VideoID: videoID, Status: models.StatusUnknown}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check queue for %s: %w", videoID, err)
	}

	return &models.VideoStatus{
		VideoID:          videoID,
		Status:           models.StatusQueued,
		CaptionAvailable: &entry.CaptionAvailable,
		DiscoveredAt:     &entry.DiscoveredAt,
	}, nil
}

// youtubeDataLister implements channelLister over the YouTube Data API.
type youtubeDataLister struct {
	yt *youtube.Service
}

func NewYouTubeDataLister(ctx context.Context, apiKey string) (*youtubeDataLister, error) {
	svc, err := youtube.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube Data API client: %w", err)
	}
	return &youtubeDataLister{yt: svc}, nil
}

// ResolveChannelID maps a channel reference (direct id, @handle, or legacy
// username) to a canonical channel id.
func (l *youtubeDataLister) ResolveChannelID(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)

	// Canonical channel ids are 24 characters starting with "UC".
	if strings.HasPrefix(ref, "UC") && len(ref) == 24 {
		return ref, nil
	}

	call := l.yt.Channels.List([]string{"id"})
	if strings.HasPrefix(ref, "@") {
		call = call.ForHandle(ref)
	} else {
		call = call.ForHandle("@" + ref)
	}
	resp, err := call.Context(ctx).Do()
	if err == nil && len(resp.Items) > 0 {
		return resp.Items[0].Id, nil
	}

	// Legacy custom names resolve through forUsername.
	resp, err = l.yt.Channels.List([]string{"id"}).ForUsername(ref).Context(ctx).Do()
	if err != nil {
		return "", err
	}
	if len(resp.Items) == 0 {
		return "", fmt.Errorf("channel %q not found", ref)
	}
	return resp.Items[0].Id, nil
}

func (l *youtubeDataLister) UploadsPlaylistID(ctx context.Context, channelID string) (string, error) {
	resp, err := l.yt.Channels.List([]string{"contentDetails"}).Id(channelID).Context(ctx).Do()
	if err != nil {
		return "", err
	}
	if len(resp.Items) == 0 || resp.Items[0].ContentDetails == nil {
		return "", fmt.Errorf("channel %s has no uploads playlist", channelID)
	}
	return resp.Items[0].ContentDetails.RelatedPlaylists.Uploads, nil
}

func (l *youtubeDataLister) PlaylistVideoIDs(ctx context.Context, playlistID, pageToken string) ([]string, string, error) {
	call := l.yt.PlaylistItems.List([]string{"contentDetails"}).
		PlaylistId(playlistID).
		MaxResults(playlistPageSize)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	resp, err := call.Context(ctx).Do()
	if err != nil {
		return nil, "", err
	}

	ids := make([]string, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.ContentDetails != nil && item.ContentDetails.VideoId != "" {
			ids = append(ids, item.ContentDetails.VideoId)
		}
	}
	return ids, resp.NextPageToken, nil
}

// HasCaptions is the cheap existence probe: it lists caption tracks without
// downloading any.
func (l *youtubeDataLister) HasCaptions(ctx context.Context, videoID string) (bool, error) {
	resp, err := l.yt.Captions.List([]string{"id"}, videoID).Context(ctx).Do()
	if err != nil {
		return false, err
	}
	return len(resp.Items) > 0, nil
}
