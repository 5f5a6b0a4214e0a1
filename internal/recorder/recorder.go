// Package recorder owns the microphone capture lifecycle: it slices
// continuous audio into fixed-duration chunks and persists each one to the
// durable chunk store as it is produced. Uploading is somebody else's job.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lectura/domain/entities"
	"lectura/domain/repositories"
	"lectura/internal/events"
)

// State is the capture engine state.
type State string

const (
	StateInactive  State = "inactive"
	StateRecording State = "recording"
	StatePaused    State = "paused"
)

// stateTransitions: inactive -> recording <-> paused -> inactive. Stop is
// terminal for a session.
var stateTransitions = map[State][]State{
	StateInactive:  {StateRecording},
	StateRecording: {StatePaused, StateInactive},
	StatePaused:    {StateRecording, StateInactive},
}

func (s State) canTransition(to State) bool {
	for _, next := range stateTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// EventType identifies a capture engine event.
type EventType string

const (
	EventStateChanged EventType = "state_changed"
	EventChunkSaved   EventType = "chunk_saved"
	EventError        EventType = "error"
)

// Event is delivered on the engine's event channel in the order the
// underlying state changed.
type Event struct {
	Type  EventType
	State State
	Chunk *entities.AudioChunk
	Err   error
}

// ErrDeviceAccess wraps capture device acquisition failures (permission
// denied, no device).
var ErrDeviceAccess = errors.New("capture device unavailable")

// ErrNotInactive is returned when Start is called on an engine that already
// owns a session.
var ErrNotInactive = errors.New("recorder is not inactive")

// DefaultTimeslice is the fixed chunk duration.
const DefaultTimeslice = 5 * time.Second

// Engine is the capture engine. One instance owns at most one recording
// session at a time; collaborators are injected.
type Engine struct {
	device    repositories.CaptureDevice
	store     repositories.ChunkStore
	logger    *zap.Logger
	timeslice time.Duration
	emitter   *events.Emitter[Event]

	mu         sync.Mutex
	state      State
	sessionID  string
	chunkIndex int
	capture    repositories.CaptureSession
	loopDone   chan struct{}
}

// NewEngine creates a capture engine. A zero timeslice selects the default
// five-second chunking.
func NewEngine(device repositories.CaptureDevice, store repositories.ChunkStore, timeslice time.Duration, logger *zap.Logger) *Engine {
	if timeslice <= 0 {
		timeslice = DefaultTimeslice
	}
	return &Engine{
		device:    device,
		store:     store,
		logger:    logger,
		timeslice: timeslice,
		emitter:   events.NewEmitter[Event](),
		state:     StateInactive,
	}
}

// Events returns the engine's event channel.
func (e *Engine) Events() <-chan Event {
	return e.emitter.Events()
}

// Close releases the event channel. The engine must be stopped first.
func (e *Engine) Close() {
	e.emitter.Close()
}

// Start acquires the capture device, creates a new recording session, and
// begins producing one chunk per timeslice. It returns the generated session
// identifier.
func (e *Engine) Start(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateInactive {
		return "", ErrNotInactive
	}

	capture, err := e.device.Start(ctx, e.timeslice)
	if err != nil {
		wrapped := fmt.Errorf("%w: %v", ErrDeviceAccess, err)
		e.emitter.Emit(Event{Type: EventError, Err: wrapped})
		return "", wrapped
	}

	sessionID := uuid.New().String()
	session := entities.NewRecordingSession(sessionID)
	if err := e.store.CreateSession(ctx, session); err != nil {
		_ = capture.Stop()
		return "", fmt.Errorf("create session: %w", err)
	}

	e.sessionID = sessionID
	e.chunkIndex = 0
	e.capture = capture
	e.loopDone = make(chan struct{})
	e.setStateLocked(StateRecording)

	go e.captureLoop(capture, sessionID)

	e.logger.Info("recording started",
		zap.String("session_id", sessionID),
		zap.String("media_type", capture.MediaType()),
		zap.Duration("timeslice", e.timeslice))
	return sessionID, nil
}

// captureLoop persists every finished timeslice buffer. It runs until the
// device closes its chunk channel (after Stop has flushed the final buffer).
func (e *Engine) captureLoop(capture repositories.CaptureSession, sessionID string) {
	defer close(e.loopDone)

	for data := range capture.Chunks() {
		if len(data) == 0 {
			continue
		}
		e.handleChunk(sessionID, capture.MediaType(), data)
	}

	// Device errors do not stop the recording by themselves; the caller
	// decides whether to stop.
	if err := capture.Err(); err != nil {
		e.logger.Error("capture device error", zap.String("session_id", sessionID), zap.Error(err))
		e.emitter.Emit(Event{Type: EventError, Err: err})
	}
}

func (e *Engine) handleChunk(sessionID, mediaType string, data []byte) {
	e.mu.Lock()
	index := e.chunkIndex
	e.chunkIndex++
	e.mu.Unlock()

	ctx := context.Background()
	chunk := entities.NewAudioChunk(sessionID, index, mediaType, data)

	if err := e.store.SaveChunk(ctx, chunk); err != nil {
		e.logger.Error("failed to persist chunk",
			zap.String("chunk_id", chunk.ID), zap.Error(err))
		e.emitter.Emit(Event{Type: EventError, Err: err})
		return
	}

	total := index + 1
	if err := e.store.UpdateSession(ctx, sessionID, entities.SessionPatch{TotalChunks: &total}); err != nil {
		e.logger.Error("failed to update session chunk count",
			zap.String("session_id", sessionID), zap.Error(err))
		e.emitter.Emit(Event{Type: EventError, Err: err})
		return
	}

	e.emitter.Emit(Event{Type: EventChunkSaved, Chunk: chunk})
}

// Pause pauses an active recording; no-op in any other state.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateRecording {
		return
	}
	if err := e.capture.Pause(); err != nil {
		e.emitter.Emit(Event{Type: EventError, Err: err})
		return
	}
	e.setStateLocked(StatePaused)
}

// Resume resumes a paused recording; no-op in any other state.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StatePaused {
		return
	}
	if err := e.capture.Resume(); err != nil {
		e.emitter.Emit(Event{Type: EventError, Err: err})
		return
	}
	e.setStateLocked(StateRecording)
}

// Stop finalizes the capture device, waits for the final buffer flush to be
// persisted, marks the session as ended and uploading, and returns the
// session identifier. Every chunk persisted before Stop returns is visible
// to UnuploadedChunks.
func (e *Engine) Stop(ctx context.Context) (string, error) {
	e.mu.Lock()
	if e.state == StateInactive {
		e.mu.Unlock()
		return "", errors.New("recorder is not recording")
	}
	capture := e.capture
	sessionID := e.sessionID
	loopDone := e.loopDone
	e.mu.Unlock()

	if err := capture.Stop(); err != nil {
		e.logger.Warn("capture device did not stop cleanly",
			zap.String("session_id", sessionID), zap.Error(err))
	}

	// The device flushes its last partial buffer before closing Chunks, and
	// the loop persists it before exiting.
	<-loopDone

	now := time.Now()
	uploading := entities.SessionStatusUploading
	if err := e.store.UpdateSession(ctx, sessionID, entities.SessionPatch{
		Status:  &uploading,
		EndedAt: &now,
	}); err != nil {
		return "", fmt.Errorf("finalize session %s: %w", sessionID, err)
	}

	e.mu.Lock()
	e.setStateLocked(StateInactive)
	e.capture = nil
	e.sessionID = ""
	e.loopDone = nil
	e.mu.Unlock()

	e.logger.Info("recording stopped", zap.String("session_id", sessionID))
	return sessionID, nil
}

// State returns the current engine state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// SessionID returns the active session identifier, empty when inactive.
func (e *Engine) SessionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionID
}

// ChunkCount returns the number of chunks produced so far.
func (e *Engine) ChunkCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.chunkIndex
}

func (e *Engine) setStateLocked(to State) {
	if !e.state.canTransition(to) {
		return
	}
	e.state = to
	e.emitter.Emit(Event{Type: EventStateChanged, State: to})
}
