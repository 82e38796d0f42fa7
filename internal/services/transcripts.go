package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/singleflight"

	"civicscribe-backend/internal/models"
	"civicscribe-backend/internal/repository"
)

// captionSource is the fast path: pre-produced caption tracks.
type captionSource interface {
	Fetch(videoID string) (*models.RawCaptions, error)
}

// fallbackTranscriber is the slow path: audio download plus speech-to-text.
type fallbackTranscriber interface {
	Transcribe(ctx context.Context, videoID string) (string, error)
}

type metadataSource interface {
	Fetch(ctx context.Context, videoID string) (*models.VideoMetadata, error)
}

type transcriptStore interface {
	GetByVideoID(ctx context.Context, videoID string) (*models.TranscriptRecord, error)
	Create(ctx context.Context, t *models.TranscriptRecord) error
}

// TranscriptService composes the acquisition pipeline: cache check, captions
// fast path, conditional speech-to-text fallback, metadata enrichment, cache
// write.
type TranscriptService struct {
	captions captionSource
	whisper  fallbackTranscriber
	metadata metadataSource
	store    transcriptStore

	// fallbackOnAnyError widens the fallback trigger from the caption error
	// taxonomy to every caption error. Off by default.
	fallbackOnAnyError bool

	group singleflight.Group
}

func NewTranscriptService(
	captions captionSource,
	whisper fallbackTranscriber,
	metadata metadataSource,
	store transcriptStore,
	fallbackOnAnyError bool,
) *TranscriptService {
	return &TranscriptService{
		captions:           captions,
		whisper:            whisper,
		metadata:           metadata,
		store:              store,
		fallbackOnAnyError: fallbackOnAnyError,
	}
}

// Get returns the transcript record for a video, fetching and caching it on
// first request. Repeated calls for a cached id make no external calls.
// Concurrent first-time calls for the same id collapse into a single fetch.
func (s *TranscriptService) Get(ctx context.Context, videoID, committee string) (*models.TranscriptRecord, error) {
	record, err := s.store.GetByVideoID(ctx, videoID)
	if err == nil {
		log.Printf("Transcript for video %s served from cache", videoID)
		record.Source = models.SourceDatabaseCache
		return record, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		// A cache read failure degrades to a fetch, it does not fail the call.
		log.Printf("Cache lookup failed for %s, fetching: %v", videoID, err)
	}

	v, err, shared := s.group.Do(videoID, func() (interface{}, error) {
		return s.fetch(ctx, videoID, committee)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.Printf("Collapsed concurrent fetches for video %s", videoID)
	}
	return v.(*models.TranscriptRecord), nil
}

func (s *TranscriptService) fetch(ctx context.Context, videoID, committee string) (*models.TranscriptRecord, error) {
	log.Printf("Transcript for video %s not in cache, fetching", videoID)

	content, source, err := s.fetchContent(ctx, videoID)
	if err != nil {
		return nil, err
	}

	record := &models.TranscriptRecord{
		VideoID:   videoID,
		Content:   content,
		Source:    source,
		Committee: committee,
		FetchedAt: time.Now().UTC(),
	}

	// Metadata enrichment is best effort.
	if meta, err := s.metadata.Fetch(ctx, videoID); err != nil {
		log.Printf("Could not fetch metadata for %s: %v", videoID, err)
	} else if meta != nil {
		record.Title = meta.Title
		record.Channel = meta.Channel
		record.PublishedAt = meta.PublishedAt
		record.DurationSeconds = meta.DurationSeconds
		record.DurationFormatted = meta.DurationFormatted
		record.ViewCount = meta.ViewCount
		record.LikeCount = meta.LikeCount
		record.CommentCount = meta.CommentCount
	}

	// A cache write failure is not fatal: the caller still gets the
	// transcript, the next call just repeats the expensive fetch.
	if err := s.store.Create(ctx, record); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			log.Printf("Transcript for %s was cached concurrently, keeping stored copy", videoID)
		} else {
			log.Printf("Failed to cache transcript for %s: %v", videoID, err)
		}
	}

	return record, nil
}

// fetchContent runs the captions fast path and, when captions are unavailable,
// the speech-to-text fallback. Caption errors outside the unavailable taxonomy
// are fatal unless the broad-catch flag is set.
func (s *TranscriptService) fetchContent(ctx context.Context, videoID string) (string, string, error) {
	captions, err := s.captions.Fetch(videoID)
	if err == nil {
		return captions.Text(), models.SourceCaptionsAPI, nil
	}

	if !IsCaptionsUnavailable(err) && !s.fallbackOnAnyError {
		return "", "", fmt.Errorf("caption fetch failed for %s: %w", videoID, err)
	}

	log.Printf("Captions unavailable for %s (%v), falling back to speech-to-text", videoID, err)
	text, err := s.whisper.Transcribe(ctx, videoID)
	if err != nil {
		return "", "", fmt.Errorf("speech-to-text fallback failed for %s: %w", videoID, err)
	}
	return text, models.SourceSpeechToText, nil
}
