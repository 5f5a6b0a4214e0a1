// Package sqlite provides the embedded durable chunk store backed by a
// single SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"lectura/domain/entities"
	"lectura/domain/repositories"
)

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	media_type  TEXT NOT NULL,
	payload     BLOB NOT NULL,
	created_at  INTEGER NOT NULL,
	uploaded    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_chunks_session ON chunks(session_id, chunk_index);

CREATE TABLE IF NOT EXISTS sessions (
	id              TEXT PRIMARY KEY,
	started_at      INTEGER NOT NULL,
	ended_at        INTEGER,
	status          TEXT NOT NULL,
	total_chunks    INTEGER NOT NULL DEFAULT 0,
	uploaded_chunks INTEGER NOT NULL DEFAULT 0
);
`

// ChunkStore implements repositories.ChunkStore on SQLite. WAL journaling
// lets the capture writer and the sync reader interleave without blocking
// each other.
type ChunkStore struct {
	db *sql.DB
}

var _ repositories.ChunkStore = (*ChunkStore)(nil)

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*ChunkStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &ChunkStore{db: db}, nil
}

// Close closes the database connection.
func (s *ChunkStore) Close() error {
	return s.db.Close()
}

// SaveChunk upserts a chunk by identity.
func (s *ChunkStore) SaveChunk(ctx context.Context, chunk *entities.AudioChunk) error {
	if err := chunk.Validate(); err != nil {
		return fmt.Errorf("invalid chunk: %w", err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chunks (id, session_id, chunk_index, media_type, payload, created_at, uploaded)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			media_type = excluded.media_type,
			payload    = excluded.payload,
			created_at = excluded.created_at,
			uploaded   = excluded.uploaded
	`, chunk.ID, chunk.SessionID, chunk.ChunkIndex, chunk.MediaType, chunk.Payload,
		chunk.CreatedAt.UnixMilli(), boolToInt(chunk.Uploaded))
	if err != nil {
		return fmt.Errorf("save chunk %s: %w", chunk.ID, err)
	}
	return nil
}

// UnuploadedChunks returns pending chunks for the session in index order.
func (s *ChunkStore) UnuploadedChunks(ctx context.Context, sessionID string) ([]*entities.AudioChunk, error) {
	return s.queryChunks(ctx, `
		SELECT id, session_id, chunk_index, media_type, payload, created_at, uploaded
		FROM chunks
		WHERE session_id = ? AND uploaded = 0
		ORDER BY chunk_index ASC
	`, sessionID)
}

// ChunksForSession returns every chunk of the session in index order.
func (s *ChunkStore) ChunksForSession(ctx context.Context, sessionID string) ([]*entities.AudioChunk, error) {
	return s.queryChunks(ctx, `
		SELECT id, session_id, chunk_index, media_type, payload, created_at, uploaded
		FROM chunks
		WHERE session_id = ?
		ORDER BY chunk_index ASC
	`, sessionID)
}

func (s *ChunkStore) queryChunks(ctx context.Context, query string, args ...interface{}) ([]*entities.AudioChunk, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*entities.AudioChunk
	for rows.Next() {
		var c entities.AudioChunk
		var createdAt int64
		var uploaded int
		if err := rows.Scan(&c.ID, &c.SessionID, &c.ChunkIndex, &c.MediaType,
			&c.Payload, &createdAt, &uploaded); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		c.CreatedAt = time.UnixMilli(createdAt)
		c.Uploaded = uploaded != 0
		chunks = append(chunks, &c)
	}
	return chunks, rows.Err()
}

// MarkChunkUploaded flips the uploaded flag. Marking twice is a no-op.
func (s *ChunkStore) MarkChunkUploaded(ctx context.Context, chunkID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE chunks SET uploaded = 1 WHERE id = ?`, chunkID)
	if err != nil {
		return fmt.Errorf("mark chunk %s uploaded: %w", chunkID, err)
	}
	return nil
}

// CreateSession upserts the session record.
func (s *ChunkStore) CreateSession(ctx context.Context, session *entities.RecordingSession) error {
	if err := session.Validate(); err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, started_at, ended_at, status, total_chunks, uploaded_chunks)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			started_at      = excluded.started_at,
			ended_at        = excluded.ended_at,
			status          = excluded.status,
			total_chunks    = excluded.total_chunks,
			uploaded_chunks = excluded.uploaded_chunks
	`, session.ID, session.StartedAt.UnixMilli(), unixMilliOrNil(session.EndedAt),
		string(session.Status), session.TotalChunks, session.UploadedChunks)
	if err != nil {
		return fmt.Errorf("create session %s: %w", session.ID, err)
	}
	return nil
}

// GetSession returns the session or nil when absent.
func (s *ChunkStore) GetSession(ctx context.Context, sessionID string) (*entities.RecordingSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, ended_at, status, total_chunks, uploaded_chunks
		FROM sessions
		WHERE id = ?
	`, sessionID)

	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}
	return session, nil
}

// UpdateSession merge-updates the session. A missing session is recreated
// with the patch merged onto recording-state defaults. The patch is applied
// in a single statement that only touches the patched columns, so writers
// patching different fields never lose each other's updates.
func (s *ChunkStore) UpdateSession(ctx context.Context, sessionID string, patch entities.SessionPatch) error {
	defaults := entities.NewRecordingSession(sessionID)
	patch.ApplyTo(defaults)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, started_at, ended_at, status, total_chunks, uploaded_chunks)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			ended_at        = COALESCE(?, ended_at),
			status          = COALESCE(?, status),
			total_chunks    = COALESCE(?, total_chunks),
			uploaded_chunks = COALESCE(?, uploaded_chunks)
	`, defaults.ID, defaults.StartedAt.UnixMilli(), unixMilliOrNil(defaults.EndedAt),
		string(defaults.Status), defaults.TotalChunks, defaults.UploadedChunks,
		unixMilliOrNil(patch.EndedAt), statusOrNil(patch.Status),
		intOrNil(patch.TotalChunks), intOrNil(patch.UploadedChunks))
	if err != nil {
		return fmt.Errorf("update session %s: %w", sessionID, err)
	}
	return nil
}

// IncompleteSessions returns sessions still recording or uploading.
func (s *ChunkStore) IncompleteSessions(ctx context.Context) ([]*entities.RecordingSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, ended_at, status, total_chunks, uploaded_chunks
		FROM sessions
		WHERE status IN (?, ?)
		ORDER BY started_at ASC
	`, string(entities.SessionStatusRecording), string(entities.SessionStatusUploading))
	if err != nil {
		return nil, fmt.Errorf("query incomplete sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*entities.RecordingSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// DeleteSession removes the session and all its chunks in one transaction so
// no orphaned chunks remain.
func (s *ChunkStore) DeleteSession(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete chunks for %s: %w", sessionID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*entities.RecordingSession, error) {
	var session entities.RecordingSession
	var startedAt int64
	var endedAt sql.NullInt64
	var status string

	if err := row.Scan(&session.ID, &startedAt, &endedAt, &status,
		&session.TotalChunks, &session.UploadedChunks); err != nil {
		return nil, err
	}

	session.StartedAt = time.UnixMilli(startedAt)
	session.Status = entities.SessionStatus(status)
	if endedAt.Valid {
		t := time.UnixMilli(endedAt.Int64)
		session.EndedAt = &t
	}
	return &session, nil
}

func unixMilliOrNil(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func statusOrNil(s *entities.SessionStatus) interface{} {
	if s == nil {
		return nil
	}
	return string(*s)
}

func intOrNil(n *int) interface{} {
	if n == nil {
		return nil
	}
	return *n
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
