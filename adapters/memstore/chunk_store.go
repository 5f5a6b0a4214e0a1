// Package memstore provides in-memory implementations of the storage
// interfaces. They back the client's simulated mode when no remote backend is
// configured, and the engine tests.
package memstore

import (
	"context"
	"sort"
	"sync"

	"lectura/domain/entities"
	"lectura/domain/repositories"
)

// ChunkStore is an in-memory implementation of repositories.ChunkStore.
type ChunkStore struct {
	mu       sync.RWMutex
	chunks   map[string]*entities.AudioChunk
	sessions map[string]*entities.RecordingSession
}

var _ repositories.ChunkStore = (*ChunkStore)(nil)

// NewChunkStore creates an empty in-memory chunk store.
func NewChunkStore() *ChunkStore {
	return &ChunkStore{
		chunks:   make(map[string]*entities.AudioChunk),
		sessions: make(map[string]*entities.RecordingSession),
	}
}

// SaveChunk upserts a chunk by identity.
func (s *ChunkStore) SaveChunk(ctx context.Context, chunk *entities.AudioChunk) error {
	if err := chunk.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *chunk
	s.chunks[chunk.ID] = &copied
	return nil
}

// UnuploadedChunks returns pending chunks for the session in index order.
func (s *ChunkStore) UnuploadedChunks(ctx context.Context, sessionID string) ([]*entities.AudioChunk, error) {
	return s.collect(sessionID, false), nil
}

// ChunksForSession returns every chunk of the session in index order.
func (s *ChunkStore) ChunksForSession(ctx context.Context, sessionID string) ([]*entities.AudioChunk, error) {
	return s.collect(sessionID, true), nil
}

func (s *ChunkStore) collect(sessionID string, includeUploaded bool) []*entities.AudioChunk {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var chunks []*entities.AudioChunk
	for _, chunk := range s.chunks {
		if chunk.SessionID != sessionID {
			continue
		}
		if !includeUploaded && chunk.Uploaded {
			continue
		}
		copied := *chunk
		chunks = append(chunks, &copied)
	}
	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i].ChunkIndex < chunks[j].ChunkIndex
	})
	return chunks
}

// MarkChunkUploaded flips the uploaded flag; idempotent, no-op on unknown ids.
func (s *ChunkStore) MarkChunkUploaded(ctx context.Context, chunkID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if chunk, ok := s.chunks[chunkID]; ok {
		chunk.Uploaded = true
	}
	return nil
}

// CreateSession upserts the session record.
func (s *ChunkStore) CreateSession(ctx context.Context, session *entities.RecordingSession) error {
	if err := session.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *session
	s.sessions[session.ID] = &copied
	return nil
}

// GetSession returns the session or nil when absent.
func (s *ChunkStore) GetSession(ctx context.Context, sessionID string) (*entities.RecordingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	copied := *session
	return &copied, nil
}

// UpdateSession merge-updates the session, recreating it with defaults when
// missing.
func (s *ChunkStore) UpdateSession(ctx context.Context, sessionID string, patch entities.SessionPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		session = entities.NewRecordingSession(sessionID)
		s.sessions[sessionID] = session
	}
	patch.ApplyTo(session)
	return nil
}

// IncompleteSessions returns sessions still recording or uploading.
func (s *ChunkStore) IncompleteSessions(ctx context.Context) ([]*entities.RecordingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sessions []*entities.RecordingSession
	for _, session := range s.sessions {
		if session.Incomplete() {
			copied := *session
			sessions = append(sessions, &copied)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.Before(sessions[j].StartedAt)
	})
	return sessions, nil
}

// DeleteSession removes the session and all its chunks together.
func (s *ChunkStore) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, chunk := range s.chunks {
		if chunk.SessionID == sessionID {
			delete(s.chunks, id)
		}
	}
	delete(s.sessions, sessionID)
	return nil
}

// Close implements repositories.ChunkStore.
func (s *ChunkStore) Close() error {
	return nil
}
