package repositories

import (
	"context"

	"lectura/domain/entities"
)

// LectureRepository is the external metadata store tracking per-user lecture
// records. All writes are merge-updates so fields read concurrently by the UI
// are never clobbered.
type LectureRepository interface {
	Merge(ctx context.Context, userID, sessionID string, update entities.LectureUpdate) error
	// Get returns nil without error when the lecture does not exist.
	Get(ctx context.Context, userID, sessionID string) (*entities.Lecture, error)
	Delete(ctx context.Context, userID, sessionID string) error
}
