package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"civicscribe-backend/internal/models"
)

type QueueRepo struct {
	pool *pgxpool.Pool
}

func NewQueueRepo(pool *pgxpool.Pool) *QueueRepo {
	return &QueueRepo{pool: pool}
}

// Insert queues a discovered video. Re-inserting an id already queued is a
// no-op, not an error.
func (r *QueueRepo) Insert(ctx context.Context, e *models.QueueEntry) error {
	if e.DiscoveredAt.IsZero() {
		e.DiscoveredAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO video_queue (video_id, caption_available, discovered_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (video_id) DO NOTHING`,
		e.VideoID, e.CaptionAvailable, e.DiscoveredAt,
	)
	return err
}

// Get returns the queue entry for a video id, ErrNotFound when none is queued.
func (r *QueueRepo) Get(ctx context.Context, videoID string) (*models.QueueEntry, error) {
	e := &models.QueueEntry{}
	err := r.pool.QueryRow(ctx,
		"SELECT video_id, caption_available, discovered_at FROM video_queue WHERE video_id = $1",
		videoID,
	).Scan(&e.VideoID, &e.CaptionAvailable, &e.DiscoveredAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

// Delete removes an entry once its transcript has been cached.
func (r *QueueRepo) Delete(ctx context.Context, videoID string) error {
	_, err := r.pool.Exec(ctx, "DELETE FROM video_queue WHERE video_id = $1", videoID)
	return err
}

// ListPending returns queued entries oldest-first for the batch driver.
func (r *QueueRepo) ListPending(ctx context.Context, limit int) ([]*models.QueueEntry, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT video_id, caption_available, discovered_at FROM video_queue ORDER BY discovered_at ASC LIMIT $1",
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.QueueEntry
	for rows.Next() {
		e := &models.QueueEntry{}
		if err := rows.Scan(&e.VideoID, &e.CaptionAvailable, &e.DiscoveredAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *QueueRepo) QueuedVideoIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := r.pool.Query(ctx, "SELECT video_id FROM video_queue")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

func (r *QueueRepo) Stats(ctx context.Context) (*models.QueueStats, error) {
	s := &models.QueueStats{}
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*),
		COUNT(*) FILTER (WHERE caption_available),
		COUNT(*) FILTER (WHERE NOT caption_available)
		FROM video_queue`,
	).Scan(&s.Total, &s.CaptionAvailable, &s.Pending)
	if err != nil {
		return nil, err
	}
	return s, nil
}
