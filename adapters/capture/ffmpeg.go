// Package capture acquires microphone audio through ffmpeg and slices the
// encoded stream into fixed-duration chunks.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"lectura/domain/repositories"
)

// Config describes the microphone input. Zero values select defaults suitable
// for a Linux desktop.
type Config struct {
	Command     string // ffmpeg binary, default "ffmpeg"
	InputFormat string // e.g. pulse, alsa, avfoundation
	InputDevice string
	SampleRate  int
	Channels    int
}

func (c Config) withDefaults() Config {
	if c.Command == "" {
		c.Command = "ffmpeg"
	}
	if c.InputFormat == "" {
		c.InputFormat = "pulse"
	}
	if c.InputDevice == "" {
		c.InputDevice = "default"
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 48000
	}
	if c.Channels <= 0 {
		c.Channels = 1
	}
	return c
}

// FFMPEGDevice captures WebM/Opus audio from the microphone using ffmpeg.
type FFMPEGDevice struct {
	cfg Config
}

var _ repositories.CaptureDevice = (*FFMPEGDevice)(nil)

func NewFFMPEGDevice(cfg Config) *FFMPEGDevice {
	return &FFMPEGDevice{cfg: cfg.withDefaults()}
}

// Start spawns ffmpeg and begins slicing its output into one chunk per
// timeslice. A quick exit within the startup grace period is reported as a
// device acquisition failure.
func (d *FFMPEGDevice) Start(ctx context.Context, timeslice time.Duration) (repositories.CaptureSession, error) {
	cfg := d.cfg

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-c:a", "libopus",
		"-f", "webm",
		"-",
	}

	cmd := exec.CommandContext(ctx, cfg.Command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		if err != nil {
			return nil, fmt.Errorf("ffmpeg exited before capture started: %w: %s", err, trimmed(stderr.String()))
		}
		return nil, errors.New("ffmpeg exited before capture started")
	case <-time.After(250 * time.Millisecond):
	}

	session := &ffmpegSession{
		stdout:  stdout,
		stderr:  &stderr,
		process: cmd.Process,
		waitErr: waitErr,
		chunks:  make(chan []byte, 8),
	}
	go session.slice(timeslice)
	return session, nil
}

type ffmpegSession struct {
	stdout  io.ReadCloser
	stderr  *bytes.Buffer
	process *os.Process
	waitErr <-chan error

	chunks chan []byte

	mu      sync.Mutex
	pending []byte
	runErr  error

	stopOnce sync.Once
	stopErr  error
}

func (s *ffmpegSession) Chunks() <-chan []byte { return s.chunks }

func (s *ffmpegSession) MediaType() string { return "audio/webm;codecs=opus" }

// slice accumulates encoded bytes and emits one chunk per elapsed timeslice.
// The final partial buffer is flushed when the stream ends.
func (s *ffmpegSession) slice(timeslice time.Duration) {
	defer close(s.chunks)

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		buf := make([]byte, 32*1024)
		for {
			n, err := s.stdout.Read(buf)
			if n > 0 {
				s.mu.Lock()
				s.pending = append(s.pending, buf[:n]...)
				s.mu.Unlock()
			}
			if err != nil {
				if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
					s.mu.Lock()
					s.runErr = err
					s.mu.Unlock()
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(timeslice)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if data := s.takePending(); len(data) > 0 {
				s.chunks <- data
			}
		case <-readDone:
			if data := s.takePending(); len(data) > 0 {
				s.chunks <- data
			}
			return
		}
	}
}

func (s *ffmpegSession) takePending() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := s.pending
	s.pending = nil
	return data
}

// Pause suspends the ffmpeg process so no audio is captured while paused.
func (s *ffmpegSession) Pause() error {
	if s.process == nil {
		return errors.New("capture process not running")
	}
	return s.process.Signal(syscall.SIGSTOP)
}

// Resume continues a paused ffmpeg process.
func (s *ffmpegSession) Resume() error {
	if s.process == nil {
		return errors.New("capture process not running")
	}
	return s.process.Signal(syscall.SIGCONT)
}

// Stop terminates ffmpeg and waits for the stream to drain. The final
// partial buffer is emitted as a last chunk before the channel closes.
func (s *ffmpegSession) Stop() error {
	s.stopOnce.Do(func() {
		if s.process != nil {
			// Make sure a paused process can handle the interrupt.
			_ = s.process.Signal(syscall.SIGCONT)
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		case <-time.After(1200 * time.Millisecond):
			if s.process != nil {
				_ = s.process.Kill()
			}
			err, ok := <-s.waitErr
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		}

		if closeErr := s.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
			if s.stopErr == nil {
				s.stopErr = closeErr
			}
		}

		if s.stopErr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, trimmed(s.stderr.String()))
		}
	})

	return s.stopErr
}

// Err reports an asynchronous stream failure, if any.
func (s *ffmpegSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runErr
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func trimmed(input string) string {
	if input == "" {
		return input
	}
	return string(bytes.TrimSpace([]byte(input)))
}
