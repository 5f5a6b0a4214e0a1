package entities

import (
	"errors"
	"fmt"
	"time"
)

// SessionStatus represents the status of a recording session.
type SessionStatus string

const (
	SessionStatusRecording SessionStatus = "recording"
	SessionStatusUploading SessionStatus = "uploading"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
)

// sessionTransitions is the forward-only transition table. Completed and
// failed are terminal.
var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionStatusRecording: {SessionStatusUploading, SessionStatusFailed},
	SessionStatusUploading: {SessionStatusCompleted, SessionStatusFailed},
}

// Valid reports whether s is a known session status.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusRecording, SessionStatusUploading, SessionStatusCompleted, SessionStatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether the status may move to the given one.
func (s SessionStatus) CanTransition(to SessionStatus) bool {
	if s == to {
		return true
	}
	for _, next := range sessionTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// RecordingSession is one continuous recording attempt, spanning one or more
// chunks.
type RecordingSession struct {
	ID             string        `json:"id"`
	StartedAt      time.Time     `json:"started_at"`
	EndedAt        *time.Time    `json:"ended_at,omitempty"`
	Status         SessionStatus `json:"status"`
	TotalChunks    int           `json:"total_chunks"`
	UploadedChunks int           `json:"uploaded_chunks"`
}

// NewRecordingSession creates a session in the recording state.
func NewRecordingSession(id string) *RecordingSession {
	return &RecordingSession{
		ID:        id,
		StartedAt: time.Now(),
		Status:    SessionStatusRecording,
	}
}

// Incomplete reports whether the session should be offered for resumption
// after a restart.
func (s *RecordingSession) Incomplete() bool {
	return s.Status == SessionStatusRecording || s.Status == SessionStatusUploading
}

// Validate validates the session data.
func (s *RecordingSession) Validate() error {
	if s.ID == "" {
		return errors.New("session id is required")
	}
	if !s.Status.Valid() {
		return fmt.Errorf("invalid session status %q", s.Status)
	}
	if s.UploadedChunks > s.TotalChunks {
		return fmt.Errorf("uploaded chunks %d exceeds total %d", s.UploadedChunks, s.TotalChunks)
	}
	return nil
}

// SessionPatch is a merge-update for a session record: nil fields are left
// untouched.
type SessionPatch struct {
	Status         *SessionStatus
	EndedAt        *time.Time
	TotalChunks    *int
	UploadedChunks *int
}

// ApplyTo merges the patch onto the session in place.
func (p SessionPatch) ApplyTo(s *RecordingSession) {
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.EndedAt != nil {
		s.EndedAt = p.EndedAt
	}
	if p.TotalChunks != nil {
		s.TotalChunks = *p.TotalChunks
	}
	if p.UploadedChunks != nil {
		s.UploadedChunks = *p.UploadedChunks
	}
}
