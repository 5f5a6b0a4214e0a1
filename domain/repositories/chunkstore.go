package repositories

import (
	"context"

	"lectura/domain/entities"
)

// ChunkStore is the durable local store shared by the capture and sync
// engines. It is the only shared mutable resource between the two loops, so
// implementations must tolerate a concurrent capture writer and sync reader
// with read-after-write consistency within the process.
type ChunkStore interface {
	// SaveChunk upserts a chunk; idempotent on chunk identity.
	SaveChunk(ctx context.Context, chunk *entities.AudioChunk) error
	// UnuploadedChunks returns the session's chunks with uploaded=false,
	// ordered by sequence index ascending.
	UnuploadedChunks(ctx context.Context, sessionID string) ([]*entities.AudioChunk, error)
	// MarkChunkUploaded flips the uploaded flag; idempotent.
	MarkChunkUploaded(ctx context.Context, chunkID string) error
	// ChunksForSession returns every chunk of the session ordered by index.
	ChunksForSession(ctx context.Context, sessionID string) ([]*entities.AudioChunk, error)

	CreateSession(ctx context.Context, session *entities.RecordingSession) error
	// GetSession returns nil without error when the session does not exist.
	GetSession(ctx context.Context, sessionID string) (*entities.RecordingSession, error)
	// UpdateSession merge-updates the session. A missing session is recreated
	// with the patch merged onto recording-state defaults rather than failing.
	UpdateSession(ctx context.Context, sessionID string, patch entities.SessionPatch) error
	// IncompleteSessions returns sessions still in recording or uploading
	// state, for resumption after an abnormal restart.
	IncompleteSessions(ctx context.Context) ([]*entities.RecordingSession, error)
	// DeleteSession removes the session and all its chunks together.
	DeleteSession(ctx context.Context, sessionID string) error

	Close() error
}
