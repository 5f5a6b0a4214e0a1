// Package syncer drains not-yet-uploaded chunks from the durable chunk store
// to remote object storage: a single background loop per session, serial
// uploads in sequence order, exponential-backoff retry, and online/offline
// awareness. It never permanently gives up while running.
package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"lectura/domain/entities"
	"lectura/domain/repositories"
	"lectura/internal/events"
)

// Status is the sync engine status.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
	StatusPaused  Status = "paused"
	StatusError   Status = "error"
)

// EventType identifies a sync engine event.
type EventType string

const (
	EventStatusChanged EventType = "status_changed"
	EventChunkUploaded EventType = "chunk_uploaded"
	EventUploadError   EventType = "upload_error"
	EventCompleted     EventType = "completed"
)

// Event is delivered on the engine's event channel in the order the
// underlying state changed.
type Event struct {
	Type      EventType
	Status    Status
	SessionID string
	ChunkID   string
	Uploaded  int
	Total     int
	Err       error
}

// DefaultRetrySchedule is the per-chunk backoff schedule. A chunk gets one
// attempt plus one retry per schedule entry before the error escalates to the
// loop.
var DefaultRetrySchedule = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	16 * time.Second,
}

// Config tunes the sync loop. Zero values select the defaults.
type Config struct {
	// PollInterval is the sleep between checks while waiting for the capture
	// engine to produce more chunks.
	PollInterval time.Duration
	// Cooldown is the loop-level pause after a chunk exhausts its retries.
	Cooldown time.Duration
	// RetrySchedule overrides DefaultRetrySchedule.
	RetrySchedule []time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 5 * time.Second
	}
	if c.RetrySchedule == nil {
		c.RetrySchedule = DefaultRetrySchedule
	}
	return c
}

// Engine drains one session's chunks to remote storage. Collaborators are
// injected; one instance serves one session at a time.
type Engine struct {
	store   repositories.ChunkStore
	objects repositories.ObjectStore
	netmon  repositories.ConnectivityMonitor
	logger  *zap.Logger
	cfg     Config
	emitter *events.Emitter[Event]

	mu         sync.Mutex
	running    bool
	manualHold bool
	sessionID  string
	userID     string
	cancel     context.CancelFunc
	done       chan struct{}
	lastStatus Status
}

// NewEngine creates a sync engine.
func NewEngine(store repositories.ChunkStore, objects repositories.ObjectStore, netmon repositories.ConnectivityMonitor, cfg Config, logger *zap.Logger) *Engine {
	return &Engine{
		store:   store,
		objects: objects,
		netmon:  netmon,
		logger:  logger,
		cfg:     cfg.withDefaults(),
		emitter: events.NewEmitter[Event](),
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

// Start begins draining the session's chunks in the background. Starting an
// already-running engine is a no-op with a warning.
func (e *Engine) Start(ctx context.Context, sessionID, userID string) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		e.logger.Warn("sync engine already running",
			zap.String("session_id", e.sessionID))
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	e.running = true
	e.manualHold = false
	e.sessionID = sessionID
	e.userID = userID
	e.cancel = cancel
	e.done = make(chan struct{})
	done := e.done
	e.mu.Unlock()

	e.emitStatus(StatusSyncing)
	e.logger.Info("sync loop starting", zap.String("session_id", sessionID))

	go e.loop(loopCtx, sessionID, userID, done)
}

// Pause suspends uploading without tearing the loop down.
func (e *Engine) Pause() {
	e.mu.Lock()
	if !e.running || e.manualHold {
		e.mu.Unlock()
		return
	}
	e.manualHold = true
	e.mu.Unlock()
	e.emitStatus(StatusPaused)
}

// Resume lifts a manual pause. Resuming a stopped engine requires Start.
func (e *Engine) Resume() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		e.logger.Warn("resume called on stopped sync engine")
		return
	}
	if !e.manualHold {
		e.mu.Unlock()
		return
	}
	e.manualHold = false
	e.mu.Unlock()
	e.emitStatus(StatusSyncing)
}

// Stop halts the loop and clears session affinity. An upload attempt already
// in flight is allowed to finish or fail naturally.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	cancel := e.cancel
	done := e.done
	e.mu.Unlock()

	cancel()
	<-done

	e.finish()
}

// Running reports whether the background loop is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// SessionID returns the session this engine is bound to, empty when idle.
func (e *Engine) SessionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionID
}

// finish clears affinity and emits idle. Safe to call once per run.
func (e *Engine) finish() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.manualHold = false
	e.sessionID = ""
	e.userID = ""
	e.cancel = nil
	e.mu.Unlock()

	e.emitStatus(StatusIdle)
}

func (e *Engine) loop(ctx context.Context, sessionID, userID string, done chan struct{}) {
	defer close(done)

	paused := false
	for {
		if ctx.Err() != nil {
			return
		}

		if e.held() {
			if !paused {
				paused = true
				e.emitStatus(StatusPaused)
			}
			e.waitWhileHeld(ctx)
			continue
		}
		if paused {
			paused = false
			if !e.stillRunning() {
				return
			}
			e.emitStatus(StatusSyncing)
		}

		completed, err := e.iterate(ctx, sessionID, userID)
		if completed {
			go e.finish()
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			e.logger.Error("sync loop error",
				zap.String("session_id", sessionID), zap.Error(err))
			e.emitStatus(StatusError)
			if !sleepCtx(ctx, e.cfg.Cooldown) {
				return
			}
			e.emitStatus(StatusSyncing)
		}
	}
}

// iterate performs one loop step: take the lowest-sequence pending chunk and
// upload it, or detect completion. It reports completed=true when the session
// has ended and every chunk is uploaded.
func (e *Engine) iterate(ctx context.Context, sessionID, userID string) (bool, error) {
	pending, err := e.store.UnuploadedChunks(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("fetch pending chunks: %w", err)
	}

	if len(pending) == 0 {
		session, err := e.store.GetSession(ctx, sessionID)
		if err != nil {
			return false, fmt.Errorf("fetch session: %w", err)
		}
		if session != nil && session.Status == entities.SessionStatusUploading && session.EndedAt != nil {
			completed := entities.SessionStatusCompleted
			if err := e.store.UpdateSession(ctx, sessionID, entities.SessionPatch{Status: &completed}); err != nil {
				return false, fmt.Errorf("mark session completed: %w", err)
			}
			e.emitter.Emit(Event{Type: EventCompleted, SessionID: sessionID})
			e.logger.Info("sync complete", zap.String("session_id", sessionID))
			return true, nil
		}
		// Still recording; wait for the capture engine to produce more.
		sleepCtx(ctx, e.cfg.PollInterval)
		return false, nil
	}

	chunk := pending[0]
	if err := e.uploadWithRetry(ctx, chunk, userID); err != nil {
		return false, err
	}

	if err := e.store.MarkChunkUploaded(ctx, chunk.ID); err != nil {
		return false, fmt.Errorf("mark chunk uploaded: %w", err)
	}

	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("fetch session: %w", err)
	}
	uploaded, total := 0, 0
	if session != nil {
		uploaded = session.UploadedChunks + 1
		total = session.TotalChunks
		if err := e.store.UpdateSession(ctx, sessionID, entities.SessionPatch{UploadedChunks: &uploaded}); err != nil {
			return false, fmt.Errorf("update uploaded count: %w", err)
		}
	}

	e.emitter.Emit(Event{
		Type:      EventChunkUploaded,
		SessionID: sessionID,
		ChunkID:   chunk.ID,
		Uploaded:  uploaded,
		Total:     total,
	})
	return false, nil
}

// uploadWithRetry attempts the upload across the backoff schedule. Each
// failed attempt emits an upload error event; when the schedule is exhausted
// the last error escalates to the loop.
func (e *Engine) uploadWithRetry(ctx context.Context, chunk *entities.AudioChunk, userID string) error {
	key := chunk.ObjectKey(userID)

	var lastErr error
	for attempt := 0; ; attempt++ {
		err := e.objects.Put(ctx, key, chunk.MediaType, chunk.Payload)
		if err == nil {
			return nil
		}
		lastErr = err
		e.emitter.Emit(Event{Type: EventUploadError, ChunkID: chunk.ID, Err: err})

		if attempt >= len(e.cfg.RetrySchedule) {
			break
		}
		delay := e.cfg.RetrySchedule[attempt]
		e.logger.Warn("chunk upload failed, retrying",
			zap.String("chunk_id", chunk.ID),
			zap.Duration("delay", delay),
			zap.Error(err))
		if !sleepCtx(ctx, delay) {
			return ctx.Err()
		}
	}
	return fmt.Errorf("upload %s exhausted retries: %w", chunk.ID, lastErr)
}

// held reports whether uploads are currently suspended, either manually or
// because connectivity is known to be down.
func (e *Engine) held() bool {
	return e.manualPaused() || !e.netmon.Online()
}

func (e *Engine) manualPaused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.manualHold
}

func (e *Engine) stillRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// waitWhileHeld blocks until a connectivity change notification, a short
// poll tick (manual resume is polled), or cancellation.
func (e *Engine) waitWhileHeld(ctx context.Context) {
	timer := time.NewTimer(250 * time.Millisecond)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-e.netmon.Changes():
	case <-timer.C:
	}
}

// emitStatus publishes a status change. Both the control surface (Pause,
// Resume) and the loop may notice the same transition; whichever gets here
// first emits it and the other is dropped, so each transition fires once.
func (e *Engine) emitStatus(status Status) {
	e.mu.Lock()
	if e.lastStatus == status {
		e.mu.Unlock()
		return
	}
	e.lastStatus = status
	e.mu.Unlock()
	e.emitter.Emit(Event{Type: EventStatusChanged, Status: status})
}

// sleepCtx sleeps for d unless the context is cancelled first; it reports
// whether the full sleep elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
