package repository

import "errors"

var (
	// ErrNotFound is returned when no row matches the lookup key.
	ErrNotFound = errors.New("repository: not found")

	// ErrAlreadyExists is returned when an insert hits the unique constraint
	// on video_id. Cached content is immutable ground truth; it is never
	// overwritten.
	ErrAlreadyExists = errors.New("repository: already exists")
)
