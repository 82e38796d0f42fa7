package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"civicscribe-backend/internal/models"
	"civicscribe-backend/internal/repository"
	"civicscribe-backend/internal/services"
)

const (
	acquisitionQueue = "queue:transcript-acquisition"
	blpopTimeout     = 30 * time.Second
	videoLockTTL     = 10 * time.Minute
	enqueueFlagTTL   = time.Hour
)

// Pool drains the acquisition queue: each job acquires one video's transcript
// and, on success, removes the video from the discovery queue. A failed job
// leaves the queue row in place for a later retry.
type Pool struct {
	redis       *redis.Client
	transcripts *services.TranscriptService
	queueRepo   *repository.QueueRepo
	committee   string
	delay       time.Duration
	workerCount int
	stopChan    chan struct{}
}

func NewPool(
	redisClient *redis.Client,
	transcripts *services.TranscriptService,
	queueRepo *repository.QueueRepo,
	committee string,
	delay time.Duration,
	workerCount int,
) *Pool {
	return &Pool{
		redis:       redisClient,
		transcripts: transcripts,
		queueRepo:   queueRepo,
		committee:   committee,
		delay:       delay,
		workerCount: workerCount,
		stopChan:    make(chan struct{}),
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		go p.worker(i)
	}
	log.Printf("Started %d acquisition workers", p.workerCount)
}

func (p *Pool) Stop() {
	close(p.stopChan)
}

func (p *Pool) worker(id int) {
	for {
		select {
		case <-p.stopChan:
			log.Printf("Worker %d shutting down", id)
			return
		default:
		}

		ctx := context.Background()

		result, err := p.redis.BLPop(ctx, blpopTimeout, acquisitionQueue).Result()
		if err != nil {
			continue // Timeout or error, retry
		}
		if len(result) < 2 {
			continue
		}

		var job models.AcquisitionJob
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			log.Printf("Worker %d: failed to parse job: %v", id, err)
			continue
		}

		// One worker per video id at a time
		lockKey := fmt.Sprintf("video_lock:%s", job.VideoID)
		locked, err := p.redis.SetNX(ctx, lockKey, "1", videoLockTTL).Result()
		if err != nil || !locked {
			continue
		}

		log.Printf("Worker %d: acquiring transcript for %s", id, job.VideoID)
		p.process(ctx, &job)

		p.redis.Del(ctx, lockKey)
		p.redis.Del(ctx, enqueueFlagKey(job.VideoID))

		// Fixed delay between consecutive acquisitions to respect
		// third-party rate limits.
		select {
		case <-p.stopChan:
			log.Printf("Worker %d shutting down", id)
			return
		case <-time.After(p.delay):
		}
	}
}

func (p *Pool) process(ctx context.Context, job *models.AcquisitionJob) {
	committee := job.Committee
	if committee == "" {
		committee = p.committee
	}

	record, err := p.transcripts.Get(ctx, job.VideoID, committee)
	if err != nil {
		// Leave the queue entry in place; the next batch run retries it.
		log.Printf("Acquisition failed for %s, leaving queued for retry: %v", job.VideoID, err)
		return
	}

	if err := p.queueRepo.Delete(ctx, job.VideoID); err != nil {
		log.Printf("Failed to dequeue %s after acquisition: %v", job.VideoID, err)
		return
	}
	log.Printf("Acquired transcript for %s (source: %s)", job.VideoID, record.Source)
}

// EnqueuePending pushes up to limit pending discovery-queue entries onto the
// redis acquisition queue. Entries already in flight are skipped.
func (p *Pool) EnqueuePending(ctx context.Context, limit int) (int, error) {
	entries, err := p.queueRepo.ListPending(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending queue entries: %w", err)
	}

	enqueued := 0
	for _, entry := range entries {
		flagged, err := p.redis.SetNX(ctx, enqueueFlagKey(entry.VideoID), "1", enqueueFlagTTL).Result()
		if err != nil {
			log.Printf("Failed to flag %s for enqueue: %v", entry.VideoID, err)
			continue
		}
		if !flagged {
			continue // Already on the acquisition queue
		}

		payload, _ := json.Marshal(models.AcquisitionJob{VideoID: entry.VideoID, Committee: p.committee})
		if err := p.redis.RPush(ctx, acquisitionQueue, payload).Err(); err != nil {
			log.Printf("Failed to enqueue %s: %v", entry.VideoID, err)
			p.redis.Del(ctx, enqueueFlagKey(entry.VideoID))
			continue
		}
		enqueued++
	}

	log.Printf("Enqueued %d of %d pending videos for acquisition", enqueued, len(entries))
	return enqueued, nil
}

func enqueueFlagKey(videoID string) string {
	return fmt.Sprintf("video_enqueued:%s", videoID)
}
