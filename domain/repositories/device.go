package repositories

import (
	"context"
	"time"
)

// CaptureDevice acquires the microphone and produces time-sliced capture
// sessions.
type CaptureDevice interface {
	Start(ctx context.Context, timeslice time.Duration) (CaptureSession, error)
}

// CaptureSession is a live capture producing one opaque compressed chunk per
// timeslice. The first chunk carries the container header; later chunks are
// continuation data, so concatenating them in order reconstructs the stream.
type CaptureSession interface {
	// Chunks delivers finished timeslice buffers. The channel is closed after
	// Stop has flushed the final partial buffer.
	Chunks() <-chan []byte
	MediaType() string
	Pause() error
	Resume() error
	// Stop finalizes the device. Buffered-but-not-yet-emitted audio is
	// flushed to Chunks before the channel closes.
	Stop() error
	// Err reports a device failure after Chunks has closed, nil on clean stop.
	Err() error
}
