package events

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"lectura/domain/entities"
)

// StatusUpdate is a lecture status transition published by the processing
// pipeline.
type StatusUpdate struct {
	UserID    string                 `json:"userId"`
	SessionID string                 `json:"sessionId"`
	Status    entities.LectureStatus `json:"status"`
	Error     string                 `json:"error,omitempty"`
	At        time.Time              `json:"at"`
}

// Bus fans lecture status updates out to subscribers, keyed by session
// identifier. Slow subscribers have updates dropped rather than stalling the
// pipeline.
type Bus struct {
	logger *zap.Logger
	mu     sync.RWMutex
	subs   map[string]map[chan StatusUpdate]struct{}
}

// NewBus creates an empty status bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		logger: logger,
		subs:   make(map[string]map[chan StatusUpdate]struct{}),
	}
}

// Publish delivers the update to every subscriber of its session.
func (b *Bus) Publish(update StatusUpdate) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs[update.SessionID] {
		select {
		case ch <- update:
		default:
			b.logger.Warn("status subscriber full, dropping update",
				zap.String("session_id", update.SessionID),
				zap.String("status", string(update.Status)))
		}
	}
}

// Subscribe registers for a session's status updates. The returned cancel
// func unregisters and closes the channel.
func (b *Bus) Subscribe(sessionID string) (<-chan StatusUpdate, func()) {
	ch := make(chan StatusUpdate, 16)

	b.mu.Lock()
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[chan StatusUpdate]struct{})
	}
	b.subs[sessionID][ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if set, ok := b.subs[sessionID]; ok {
			if _, ok := set[ch]; ok {
				delete(set, ch)
				close(ch)
			}
			if len(set) == 0 {
				delete(b.subs, sessionID)
			}
		}
	}
	return ch, cancel
}
