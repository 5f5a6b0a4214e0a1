// Package pipeline turns an uploaded recording session into a transcript and
// structured notes: merge the chunks, transcribe, clean, and summarize, with
// every intermediate written to the lecture metadata store as a merge-update.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"lectura/domain/entities"
	"lectura/domain/repositories"
	"lectura/internal/events"
)

// ErrNoChunksFound is returned when a session has no uploaded chunks. The
// message is part of the trigger API contract.
var ErrNoChunksFound = errors.New("No chunks found for session")

// ErrProcessingInFlight is returned when the session is already being
// processed.
var ErrProcessingInFlight = errors.New("session is already being processed")

// DefaultTranscriptionLimit is the audio size above which the merged file is
// split into segments for transcription. Kept below the Whisper 25MB cap.
const DefaultTranscriptionLimit = 24 * 1024 * 1024

// AudioProcessor prepares session audio for transcription.
type AudioProcessor interface {
	MergeChunks(ctx context.Context, chunkPaths []string, workDir string) (string, error)
	Segment(ctx context.Context, src, dir string, segmentSeconds int) ([]string, error)
	Duration(ctx context.Context, src string) (float64, error)
}

// Config tunes the pipeline. Zero values select the defaults.
type Config struct {
	TranscriptionLimit int64
	SegmentSeconds     int
}

func (c Config) withDefaults() Config {
	if c.TranscriptionLimit <= 0 {
		c.TranscriptionLimit = DefaultTranscriptionLimit
	}
	if c.SegmentSeconds <= 0 {
		c.SegmentSeconds = 600
	}
	return c
}

// Service runs the processing pipeline. One session processes at a time; a
// concurrent trigger for the same session is rejected.
type Service struct {
	objects  repositories.ObjectStore
	lectures repositories.LectureRepository
	stt      repositories.Transcriber
	llm      repositories.TextGenerator
	audio    AudioProcessor
	bus      *events.Bus
	logger   *zap.Logger
	cfg      Config

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewService creates a pipeline service.
func NewService(
	objects repositories.ObjectStore,
	lectures repositories.LectureRepository,
	stt repositories.Transcriber,
	llm repositories.TextGenerator,
	audio AudioProcessor,
	bus *events.Bus,
	cfg Config,
	logger *zap.Logger,
) *Service {
	return &Service{
		objects:  objects,
		lectures: lectures,
		stt:      stt,
		llm:      llm,
		audio:    audio,
		bus:      bus,
		logger:   logger,
		cfg:      cfg.withDefaults(),
		inflight: make(map[string]struct{}),
	}
}

// Process runs the full pipeline for the session. On failure the lecture
// record carries the failed status and error message; the error is also
// returned to the caller.
func (s *Service) Process(ctx context.Context, userID, sessionID string) error {
	if err := s.acquire(sessionID); err != nil {
		return err
	}
	defer s.release(sessionID)

	workDir, err := os.MkdirTemp("", "lecture_"+sessionID+"_")
	if err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	if err := s.run(ctx, userID, sessionID, workDir); err != nil {
		s.fail(ctx, userID, sessionID, err)
		return err
	}
	return nil
}

func (s *Service) acquire(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[sessionID]; busy {
		return ErrProcessingInFlight
	}
	s.inflight[sessionID] = struct{}{}
	return nil
}

func (s *Service) release(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, sessionID)
}

func (s *Service) run(ctx context.Context, userID, sessionID, workDir string) error {
	log := s.logger.With(zap.String("session_id", sessionID), zap.String("user_id", userID))
	log.Info("processing started")

	now := time.Now()
	processing := entities.LectureStatusProcessing
	if err := s.merge(ctx, userID, sessionID, entities.LectureUpdate{
		Status:    &processing,
		StartedAt: &now,
	}); err != nil {
		return err
	}

	chunkPaths, err := s.downloadChunks(ctx, userID, sessionID, workDir, log)
	if err != nil {
		return err
	}

	total := len(chunkPaths)
	if err := s.merge(ctx, userID, sessionID, entities.LectureUpdate{TotalChunks: &total}); err != nil {
		return err
	}

	mergedPath, err := s.audio.MergeChunks(ctx, chunkPaths, workDir)
	if err != nil {
		return fmt.Errorf("merge audio: %w", err)
	}

	transcribing := entities.LectureStatusTranscribing
	if err := s.merge(ctx, userID, sessionID, entities.LectureUpdate{Status: &transcribing}); err != nil {
		return err
	}

	rawTranscript, err := s.transcribe(ctx, userID, sessionID, mergedPath, workDir, log)
	if err != nil {
		return err
	}
	log.Info("transcription complete", zap.Int("transcript_chars", len(rawTranscript)))

	cleaning := entities.LectureStatusCleaning
	if err := s.merge(ctx, userID, sessionID, entities.LectureUpdate{
		Status:        &cleaning,
		TranscriptRaw: &rawTranscript,
	}); err != nil {
		return err
	}

	topicAnalysis, err := s.DetectTopic(ctx, rawTranscript)
	if err != nil {
		return fmt.Errorf("topic detection: %w", err)
	}

	cleanTranscript, err := s.CleanTranscript(ctx, rawTranscript, topicAnalysis)
	if err != nil {
		return fmt.Errorf("transcript cleanup: %w", err)
	}

	title, notes, err := s.GenerateNotes(ctx, cleanTranscript)
	if err != nil {
		return fmt.Errorf("note generation: %w", err)
	}

	duration, err := s.audio.Duration(ctx, mergedPath)
	if err != nil {
		// Chunks are a fixed five seconds each; close enough when the probe
		// is unavailable.
		duration = float64(total * 5)
		log.Warn("duration probe failed, estimating from chunk count", zap.Error(err))
	}

	completedAt := time.Now()
	completed := entities.LectureStatusCompleted
	if err := s.merge(ctx, userID, sessionID, entities.LectureUpdate{
		Status:          &completed,
		TranscriptClean: &cleanTranscript,
		Notes:           &notes,
		TopicAnalysis:   &topicAnalysis,
		Duration:        &duration,
		Title:           &title,
		CompletedAt:     &completedAt,
	}); err != nil {
		return err
	}

	log.Info("processing complete",
		zap.Int("total_chunks", total),
		zap.Float64("duration_seconds", duration))
	return nil
}

// downloadChunks lists the session's uploaded chunks and downloads them into
// workDir in sequence order.
func (s *Service) downloadChunks(ctx context.Context, userID, sessionID, workDir string, log *zap.Logger) ([]string, error) {
	prefix := entities.SessionPrefix(userID, sessionID)
	keys, err := s.objects.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}

	var chunkKeys []string
	for _, key := range keys {
		if strings.Contains(key, "chunk_") {
			chunkKeys = append(chunkKeys, key)
		}
	}
	if len(chunkKeys) == 0 {
		return nil, ErrNoChunksFound
	}
	log.Info("chunks found", zap.Int("count", len(chunkKeys)))

	paths := make([]string, 0, len(chunkKeys))
	for i, key := range chunkKeys {
		data, err := s.objects.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("download chunk %s: %w", key, err)
		}
		ext := filepath.Ext(key)
		if ext == "" {
			ext = ".webm"
		}
		localPath := filepath.Join(workDir, fmt.Sprintf("chunk_%06d%s", i, ext))
		if err := os.WriteFile(localPath, data, 0o644); err != nil {
			return nil, fmt.Errorf("write chunk %s: %w", localPath, err)
		}
		paths = append(paths, localPath)
	}
	return paths, nil
}

// transcribe produces the raw transcript. Audio above the size limit is split
// into segments transcribed independently; a failed segment is skipped rather
// than failing the whole session.
func (s *Service) transcribe(ctx context.Context, userID, sessionID, mergedPath, workDir string, log *zap.Logger) (string, error) {
	info, err := os.Stat(mergedPath)
	if err != nil {
		return "", fmt.Errorf("stat merged audio: %w", err)
	}

	if info.Size() <= s.cfg.TranscriptionLimit {
		return s.transcribeFile(ctx, mergedPath)
	}

	log.Info("merged audio exceeds transcription limit, segmenting",
		zap.Int64("size_bytes", info.Size()))

	segments, err := s.audio.Segment(ctx, mergedPath, workDir, s.cfg.SegmentSeconds)
	if err != nil {
		return "", fmt.Errorf("segment audio: %w", err)
	}

	var parts []string
	for i, segment := range segments {
		text, err := s.transcribeFile(ctx, segment)
		if err != nil {
			log.Error("segment transcription failed, skipping",
				zap.Int("segment", i), zap.Error(err))
			continue
		}
		parts = append(parts, text)

		done := i + 1
		if err := s.merge(ctx, userID, sessionID, entities.LectureUpdate{TranscribedChunks: &done}); err != nil {
			return "", err
		}
	}
	return strings.Join(parts, " "), nil
}

func (s *Service) transcribeFile(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open audio %s: %w", path, err)
	}
	defer file.Close()
	return s.stt.Transcribe(ctx, file, filepath.Base(path))
}

// merge writes the update to the lecture record and publishes any status
// change to watchers.
func (s *Service) merge(ctx context.Context, userID, sessionID string, update entities.LectureUpdate) error {
	if err := s.lectures.Merge(ctx, userID, sessionID, update); err != nil {
		return fmt.Errorf("update lecture: %w", err)
	}
	if update.Status != nil {
		s.bus.Publish(events.StatusUpdate{
			UserID:    userID,
			SessionID: sessionID,
			Status:    *update.Status,
			At:        time.Now(),
		})
	}
	return nil
}

// fail records the failure on the lecture. A failed merge here is only
// logged; the original error is what matters.
func (s *Service) fail(ctx context.Context, userID, sessionID string, cause error) {
	s.logger.Error("processing failed",
		zap.String("session_id", sessionID), zap.Error(cause))

	// The cause may be the caller's context being canceled; the failed
	// status must still reach the lecture record.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	failedAt := time.Now()
	failed := entities.LectureStatusFailed
	message := cause.Error()
	if err := s.lectures.Merge(ctx, userID, sessionID, entities.LectureUpdate{
		Status:   &failed,
		Error:    &message,
		FailedAt: &failedAt,
	}); err != nil {
		s.logger.Error("failed to record processing failure",
			zap.String("session_id", sessionID), zap.Error(err))
	}
	s.bus.Publish(events.StatusUpdate{
		UserID:    userID,
		SessionID: sessionID,
		Status:    failed,
		Error:     message,
		At:        failedAt,
	})
}
