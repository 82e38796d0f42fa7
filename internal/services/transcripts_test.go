package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"civicscribe-backend/internal/models"
	"civicscribe-backend/internal/repository"
)

// ─── Fakes ───

type fakeCaptions struct {
	mu       sync.Mutex
	calls    int
	captions *models.RawCaptions
	err      error
	delay    time.Duration
}

func (f *fakeCaptions) Fetch(videoID string) (*models.RawCaptions, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.captions, nil
}

func (f *fakeCaptions) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeWhisper struct {
	mu    sync.Mutex
	calls int
	text  string
	err   error
}

func (f *fakeWhisper) Transcribe(ctx context.Context, videoID string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

func (f *fakeWhisper) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeMetadata struct {
	calls int
	meta  *models.VideoMetadata
	err   error
}

func (f *fakeMetadata) Fetch(ctx context.Context, videoID string) (*models.VideoMetadata, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.meta == nil {
		return &models.VideoMetadata{VideoID: videoID}, nil
	}
	return f.meta, nil
}

// nilMetadata reports success with no metadata at all.
type nilMetadata struct{}

func (nilMetadata) Fetch(ctx context.Context, videoID string) (*models.VideoMetadata, error) {
	return nil, nil
}

type memoryStore struct {
	mu        sync.Mutex
	records   map[string]*models.TranscriptRecord
	createErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: map[string]*models.TranscriptRecord{}}
}

func (s *memoryStore) GetByVideoID(ctx context.Context, videoID string) (*models.TranscriptRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[videoID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *r
	return &copied, nil
}

func (s *memoryStore) Create(ctx context.Context, t *models.TranscriptRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	if _, ok := s.records[t.VideoID]; ok {
		return repository.ErrAlreadyExists
	}
	copied := *t
	s.records[t.VideoID] = &copied
	return nil
}

// raceStore simulates losing a cache-write race: the first lookups miss even
// though a row exists, so Create collides with the stored copy.
type raceStore struct {
	*memoryStore
	missReads int
}

func (s *raceStore) GetByVideoID(ctx context.Context, videoID string) (*models.TranscriptRecord, error) {
	if s.missReads > 0 {
		s.missReads--
		return nil, repository.ErrNotFound
	}
	return s.memoryStore.GetByVideoID(ctx, videoID)
}

func captionsFor(videoID string, texts ...string) *models.RawCaptions {
	c := &models.RawCaptions{VideoID: videoID, LanguageCode: "en"}
	for i, text := range texts {
		c.Snippets = append(c.Snippets, models.CaptionSnippet{
			Text:     text,
			Start:    float64(i) * 2,
			Duration: 2,
		})
	}
	return c
}

// ─── Tests ───

func TestGetTranscript_CaptionsPath(t *testing.T) {
	captions := &fakeCaptions{captions: captionsFor("vid00000001", "hello", "world")}
	whisper := &fakeWhisper{}
	store := newMemoryStore()
	svc := NewTranscriptService(captions, whisper, &fakeMetadata{}, store, false)

	record, err := svc.Get(context.Background(), "vid00000001", "board_of_health")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}

	if record.Content != "hello world" {
		t.Errorf("Expected content 'hello world', got %q", record.Content)
	}
	if record.Source != models.SourceCaptionsAPI {
		t.Errorf("Expected source %q, got %q", models.SourceCaptionsAPI, record.Source)
	}
	if record.Committee != "board_of_health" {
		t.Errorf("Expected committee 'board_of_health', got %q", record.Committee)
	}
	if whisper.callCount() != 0 {
		t.Errorf("Expected no fallback calls, got %d", whisper.callCount())
	}
	if _, err := store.GetByVideoID(context.Background(), "vid00000001"); err != nil {
		t.Errorf("Expected record to be cached, got %v", err)
	}
}

func TestGetTranscript_SecondCallServedFromCache(t *testing.T) {
	captions := &fakeCaptions{captions: captionsFor("vid00000002", "cached", "text")}
	whisper := &fakeWhisper{}
	meta := &fakeMetadata{}
	svc := NewTranscriptService(captions, whisper, meta, newMemoryStore(), false)

	first, err := svc.Get(context.Background(), "vid00000002", "")
	if err != nil {
		t.Fatalf("first Get returned error: %v", err)
	}
	second, err := svc.Get(context.Background(), "vid00000002", "")
	if err != nil {
		t.Fatalf("second Get returned error: %v", err)
	}

	if second.Content != first.Content {
		t.Errorf("Expected identical content, got %q vs %q", second.Content, first.Content)
	}
	if second.Source != models.SourceDatabaseCache {
		t.Errorf("Expected source %q, got %q", models.SourceDatabaseCache, second.Source)
	}
	if captions.callCount() != 1 {
		t.Errorf("Expected 1 caption fetch, got %d", captions.callCount())
	}
	if whisper.callCount() != 0 {
		t.Errorf("Expected 0 fallback calls, got %d", whisper.callCount())
	}
	if meta.calls != 1 {
		t.Errorf("Expected 1 metadata fetch, got %d", meta.calls)
	}
}

func TestGetTranscript_FallbackTriggering(t *testing.T) {
	tests := []struct {
		name         string
		captionErr   error
		wantFallback bool
	}{
		{"captions disabled", ErrCaptionsDisabled, true},
		{"no captions found", ErrNoCaptionsFound, true},
		{"video unavailable", ErrVideoUnavailable, true},
		{"retrieval failed", ErrRetrievalFailed, true},
		{"unrelated error", errors.New("quota exceeded"), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			captions := &fakeCaptions{err: tc.captionErr}
			whisper := &fakeWhisper{text: "spoken words"}
			svc := NewTranscriptService(captions, whisper, &fakeMetadata{}, newMemoryStore(), false)

			record, err := svc.Get(context.Background(), "vid00000003", "")

			if tc.wantFallback {
				if err != nil {
					t.Fatalf("Get returned error: %v", err)
				}
				if whisper.callCount() != 1 {
					t.Errorf("Expected 1 fallback call, got %d", whisper.callCount())
				}
				if record.Source != models.SourceSpeechToText {
					t.Errorf("Expected source %q, got %q", models.SourceSpeechToText, record.Source)
				}
			} else {
				if err == nil {
					t.Fatal("Expected error for unrelated caption failure")
				}
				if whisper.callCount() != 0 {
					t.Errorf("Expected no fallback calls, got %d", whisper.callCount())
				}
			}
		})
	}
}

func TestGetTranscript_BroadCatchFlag(t *testing.T) {
	captions := &fakeCaptions{err: errors.New("quota exceeded")}
	whisper := &fakeWhisper{text: "spoken words"}
	svc := NewTranscriptService(captions, whisper, &fakeMetadata{}, newMemoryStore(), true)

	record, err := svc.Get(context.Background(), "vid00000004", "")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if whisper.callCount() != 1 {
		t.Errorf("Expected 1 fallback call under broad catch, got %d", whisper.callCount())
	}
	if record.Source != models.SourceSpeechToText {
		t.Errorf("Expected source %q, got %q", models.SourceSpeechToText, record.Source)
	}
}

func TestGetTranscript_FallbackFailureIsFatal(t *testing.T) {
	captions := &fakeCaptions{err: ErrCaptionsDisabled}
	whisper := &fakeWhisper{err: errors.New("download failed")}
	store := newMemoryStore()
	svc := NewTranscriptService(captions, whisper, &fakeMetadata{}, store, false)

	if _, err := svc.Get(context.Background(), "vid00000005", ""); err == nil {
		t.Fatal("Expected error when fallback fails")
	}
	if _, err := store.GetByVideoID(context.Background(), "vid00000005"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("Expected nothing cached after failure, got %v", err)
	}
}

func TestGetTranscript_MetadataFailureNonFatal(t *testing.T) {
	captions := &fakeCaptions{captions: captionsFor("vid00000006", "some", "words")}
	meta := &fakeMetadata{err: errors.New("metadata service down")}
	store := newMemoryStore()
	svc := NewTranscriptService(captions, &fakeWhisper{}, meta, store, false)

	record, err := svc.Get(context.Background(), "vid00000006", "")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if record.Title != "" || record.DurationSeconds != 0 {
		t.Errorf("Expected empty metadata fields, got title=%q duration=%d", record.Title, record.DurationSeconds)
	}
	if _, err := store.GetByVideoID(context.Background(), "vid00000006"); err != nil {
		t.Errorf("Expected record cached despite metadata failure, got %v", err)
	}
}

func TestGetTranscript_MetadataEnrichment(t *testing.T) {
	published := time.Date(2024, 3, 12, 18, 0, 0, 0, time.UTC)
	captions := &fakeCaptions{captions: captionsFor("vid00000007", "meeting")}
	meta := &fakeMetadata{meta: &models.VideoMetadata{
		VideoID:           "vid00000007",
		Title:             "Board of Health Meeting",
		Channel:           "City of Somerville",
		PublishedAt:       &published,
		DurationSeconds:   1143,
		DurationFormatted: "19:03",
		ViewCount:         321,
	}}
	svc := NewTranscriptService(captions, &fakeWhisper{}, meta, newMemoryStore(), false)

	record, err := svc.Get(context.Background(), "vid00000007", "")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if record.Title != "Board of Health Meeting" {
		t.Errorf("Expected title to be filled, got %q", record.Title)
	}
	if record.DurationFormatted != "19:03" {
		t.Errorf("Expected duration '19:03', got %q", record.DurationFormatted)
	}
	if record.PublishedAt == nil || !record.PublishedAt.Equal(published) {
		t.Errorf("Expected published_at %v, got %v", published, record.PublishedAt)
	}
}

func TestGetTranscript_NilMetadataIgnored(t *testing.T) {
	captions := &fakeCaptions{captions: captionsFor("vid00000010", "plain", "record")}
	store := newMemoryStore()
	svc := NewTranscriptService(captions, &fakeWhisper{}, nilMetadata{}, store, false)

	record, err := svc.Get(context.Background(), "vid00000010", "")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if record.Content != "plain record" {
		t.Errorf("Expected content 'plain record', got %q", record.Content)
	}
	if record.Title != "" || record.PublishedAt != nil {
		t.Errorf("Expected metadata fields left empty, got title=%q published_at=%v", record.Title, record.PublishedAt)
	}
	if _, err := store.GetByVideoID(context.Background(), "vid00000010"); err != nil {
		t.Errorf("Expected record cached, got %v", err)
	}
}

func TestGetTranscript_ConcurrentCacheWriteKeepsStoredCopy(t *testing.T) {
	store := &raceStore{memoryStore: newMemoryStore(), missReads: 1}
	store.records["vid00000011"] = &models.TranscriptRecord{
		VideoID: "vid00000011",
		Content: "stored first",
		Source:  models.SourceCaptionsAPI,
	}

	captions := &fakeCaptions{captions: captionsFor("vid00000011", "fetched", "second")}
	svc := NewTranscriptService(captions, &fakeWhisper{}, &fakeMetadata{}, store, false)

	record, err := svc.Get(context.Background(), "vid00000011", "")
	if err != nil {
		t.Fatalf("Get returned error despite duplicate cache write: %v", err)
	}
	if record.Content != "fetched second" {
		t.Errorf("Expected the fetched transcript to be returned, got %q", record.Content)
	}

	stored, err := store.memoryStore.GetByVideoID(context.Background(), "vid00000011")
	if err != nil {
		t.Fatalf("Expected stored record, got %v", err)
	}
	if stored.Content != "stored first" {
		t.Errorf("Expected stored copy to be kept, got %q", stored.Content)
	}
}

func TestGetTranscript_CacheWriteFailureNonFatal(t *testing.T) {
	captions := &fakeCaptions{captions: captionsFor("vid00000008", "still", "returned")}
	store := newMemoryStore()
	store.createErr = errors.New("database gone")
	svc := NewTranscriptService(captions, &fakeWhisper{}, &fakeMetadata{}, store, false)

	record, err := svc.Get(context.Background(), "vid00000008", "")
	if err != nil {
		t.Fatalf("Get returned error despite cache write failure: %v", err)
	}
	if record.Content != "still returned" {
		t.Errorf("Expected content 'still returned', got %q", record.Content)
	}

	// Not cached, so the next call fetches again
	store.createErr = nil
	if _, err := svc.Get(context.Background(), "vid00000008", ""); err != nil {
		t.Fatalf("second Get returned error: %v", err)
	}
	if captions.callCount() != 2 {
		t.Errorf("Expected 2 caption fetches after failed cache write, got %d", captions.callCount())
	}
}

func TestGetTranscript_ConcurrentCallsCollapse(t *testing.T) {
	captions := &fakeCaptions{
		captions: captionsFor("vid00000009", "one", "fetch"),
		delay:    50 * time.Millisecond,
	}
	svc := NewTranscriptService(captions, &fakeWhisper{}, &fakeMetadata{}, newMemoryStore(), false)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Get(context.Background(), "vid00000009", ""); err != nil {
				t.Errorf("concurrent Get returned error: %v", err)
			}
		}()
	}
	wg.Wait()

	if captions.callCount() != 1 {
		t.Errorf("Expected concurrent misses to collapse into 1 fetch, got %d", captions.callCount())
	}
}

func TestGetTranscript_EndToEndFallbackScenario(t *testing.T) {
	// Captions disabled, fallback produces three chunk transcripts in order.
	captions := &fakeCaptions{err: ErrCaptionsDisabled}
	whisper := &fakeWhisper{text: "A B C"}
	store := newMemoryStore()
	svc := NewTranscriptService(captions, whisper, &fakeMetadata{}, store, false)

	record, err := svc.Get(context.Background(), "abc12345678", "")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if record.Content != "A B C" {
		t.Errorf("Expected content 'A B C', got %q", record.Content)
	}
	if record.Source != models.SourceSpeechToText {
		t.Errorf("Expected source %q, got %q", models.SourceSpeechToText, record.Source)
	}

	stored, err := store.GetByVideoID(context.Background(), "abc12345678")
	if err != nil {
		t.Fatalf("Expected stored record, got %v", err)
	}
	if stored.Content != "A B C" || stored.Source != models.SourceSpeechToText {
		t.Errorf("Stored record mismatch: content=%q source=%q", stored.Content, stored.Source)
	}
}
