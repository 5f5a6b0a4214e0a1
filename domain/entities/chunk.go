package entities

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultMediaType is assumed when a capture device does not report one.
const DefaultMediaType = "audio/webm;codecs=opus"

// AudioChunk is a bounded-duration slice of captured audio persisted as an
// independent record. Identity is the session identifier plus a monotonically
// increasing sequence index; it is stable and never reused.
type AudioChunk struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	ChunkIndex int       `json:"chunk_index"`
	MediaType  string    `json:"media_type"`
	Payload    []byte    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	Uploaded   bool      `json:"uploaded"`
}

// ChunkID builds the stable chunk identity for a session and sequence index.
func ChunkID(sessionID string, index int) string {
	return fmt.Sprintf("%s_chunk_%06d", sessionID, index)
}

// NewAudioChunk creates a not-yet-uploaded chunk for the given session slot.
func NewAudioChunk(sessionID string, index int, mediaType string, payload []byte) *AudioChunk {
	if mediaType == "" {
		mediaType = DefaultMediaType
	}
	return &AudioChunk{
		ID:         ChunkID(sessionID, index),
		SessionID:  sessionID,
		ChunkIndex: index,
		MediaType:  mediaType,
		Payload:    payload,
		CreatedAt:  time.Now(),
	}
}

// FileExtension derives the upload file extension from the chunk media type.
func (c *AudioChunk) FileExtension() string {
	if strings.Contains(c.MediaType, "webm") {
		return "webm"
	}
	return "ogg"
}

// ObjectKey returns the deterministic remote storage key for this chunk.
// Re-uploading the same index overwrites the same object, which makes chunk
// uploads idempotent.
func (c *AudioChunk) ObjectKey(userID string) string {
	if userID == "" {
		return fmt.Sprintf("recordings/%s/chunk_%06d.%s", c.SessionID, c.ChunkIndex, c.FileExtension())
	}
	return fmt.Sprintf("users/%s/recordings/%s/chunk_%06d.%s", userID, c.SessionID, c.ChunkIndex, c.FileExtension())
}

// SessionPrefix returns the remote key prefix holding every chunk of a session.
func SessionPrefix(userID, sessionID string) string {
	return fmt.Sprintf("users/%s/recordings/%s/", userID, sessionID)
}

// Validate validates the chunk record.
func (c *AudioChunk) Validate() error {
	if c.SessionID == "" {
		return errors.New("session_id is required")
	}
	if c.ChunkIndex < 0 {
		return errors.New("chunk_index must not be negative")
	}
	if c.ID != ChunkID(c.SessionID, c.ChunkIndex) {
		return errors.New("chunk id does not match session and index")
	}
	return nil
}
