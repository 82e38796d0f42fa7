package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"civicscribe-backend/internal/models"
)

// uniqueViolation is the Postgres error code for a unique constraint hit.
const uniqueViolation = "23505"

type TranscriptRepo struct {
	pool *pgxpool.Pool
}

func NewTranscriptRepo(pool *pgxpool.Pool) *TranscriptRepo {
	return &TranscriptRepo{pool: pool}
}

func (r *TranscriptRepo) Exists(ctx context.Context, videoID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM transcripts WHERE video_id = $1)", videoID,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (r *TranscriptRepo) GetByVideoID(ctx context.Context, videoID string) (*models.TranscriptRecord, error) {
	t := &models.TranscriptRecord{}
	query := `SELECT id, video_id, content, source, committee, fetched_at,
		title, channel, published_at, duration_seconds, duration_formatted,
		view_count, like_count, comment_count
		FROM transcripts WHERE video_id = $1`

	err := r.pool.QueryRow(ctx, query, videoID).Scan(
		&t.ID, &t.VideoID, &t.Content, &t.Source, &t.Committee, &t.FetchedAt,
		&t.Title, &t.Channel, &t.PublishedAt, &t.DurationSeconds, &t.DurationFormatted,
		&t.ViewCount, &t.LikeCount, &t.CommentCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

// Create inserts a new transcript record. A duplicate video_id is reported as
// ErrAlreadyExists and the stored row is left untouched.
func (r *TranscriptRepo) Create(ctx context.Context, t *models.TranscriptRecord) error {
	t.ID = uuid.New()
	if t.FetchedAt.IsZero() {
		t.FetchedAt = time.Now().UTC()
	}

	query := `INSERT INTO transcripts
		(id, video_id, content, source, committee, fetched_at,
		 title, channel, published_at, duration_seconds, duration_formatted,
		 view_count, like_count, comment_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := r.pool.Exec(ctx, query,
		t.ID, t.VideoID, t.Content, t.Source, t.Committee, t.FetchedAt,
		t.Title, t.Channel, t.PublishedAt, t.DurationSeconds, t.DurationFormatted,
		t.ViewCount, t.LikeCount, t.CommentCount,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

// ExistingVideoIDs returns the set of video ids that already have a cached
// transcript. Discovery checks candidates against this set before queueing.
func (r *TranscriptRepo) ExistingVideoIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := r.pool.Query(ctx, "SELECT video_id FROM transcripts")
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

func (r *TranscriptRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM transcripts").Scan(&n)
	return n, err
}
