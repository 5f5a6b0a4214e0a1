// The client records microphone audio into the durable local chunk store,
// drains it to object storage in the background, and triggers server-side
// processing when a recording finishes. Interrupted sessions found in the
// store are drained before a new recording starts.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"lectura/adapters/capture"
	"lectura/adapters/memstore"
	"lectura/adapters/netmon"
	"lectura/adapters/s3"
	"lectura/adapters/sqlite"
	"lectura/domain/entities"
	"lectura/domain/repositories"
	"lectura/internal/recorder"
	"lectura/internal/syncer"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	userID := os.Getenv("LECTURA_USER_ID")
	if userID == "" {
		userID = "local"
	}

	dbPath := os.Getenv("LECTURA_DB_PATH")
	if dbPath == "" {
		dbPath = "lectura.db"
	}
	store, err := sqlite.Open(dbPath)
	if err != nil {
		logger.Fatal("failed to open chunk store", zap.Error(err))
	}
	defer store.Close()

	var objects repositories.ObjectStore
	if bucket := os.Getenv("LECTURA_S3_BUCKET"); bucket != "" {
		objects, err = s3.NewObjectStore(bucket)
		if err != nil {
			logger.Fatal("failed to initialize object storage", zap.Error(err))
		}
	} else {
		objects = memstore.NewObjectStore()
		logger.Warn("no LECTURA_S3_BUCKET configured, uploads are held in memory")
	}

	network := netmon.NewProbe(os.Getenv("LECTURA_PROBE_TARGET"), 0, logger)
	defer network.Close()

	sync := syncer.NewEngine(store, objects, network, syncer.Config{}, logger)
	defer sync.Close()
	go logSyncEvents(sync.Events(), logger)

	ctx := context.Background()

	// Drain sessions a previous run left behind before recording anew.
	if err := resumePending(ctx, store, sync, userID, logger); err != nil {
		logger.Fatal("failed to resume pending sessions", zap.Error(err))
	}

	device := capture.NewFFMPEGDevice(capture.Config{
		InputFormat: os.Getenv("LECTURA_CAPTURE_FORMAT"),
		InputDevice: os.Getenv("LECTURA_CAPTURE_DEVICE"),
	})
	rec := recorder.NewEngine(device, store, 0, logger)
	defer rec.Close()
	go logRecorderEvents(rec.Events(), logger)

	sessionID, err := rec.Start(ctx)
	if err != nil {
		logger.Fatal("failed to start recording", zap.Error(err))
	}
	logger.Info("recording, press Ctrl-C to stop", zap.String("session_id", sessionID))

	// Uploads run while the recording is still producing chunks.
	sync.Start(ctx, sessionID, userID)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	if _, err := rec.Stop(ctx); err != nil {
		logger.Fatal("failed to stop recording", zap.Error(err))
	}

	if err := waitForSync(ctx, sync, store, sessionID, logger); err != nil {
		logger.Fatal("failed to drain uploads", zap.Error(err))
	}

	if server := os.Getenv("LECTURA_SERVER_URL"); server != "" {
		if err := triggerProcessing(ctx, server, userID, sessionID); err != nil {
			logger.Error("processing trigger failed", zap.Error(err))
			os.Exit(1)
		}
		logger.Info("processing complete", zap.String("session_id", sessionID))
	}
}

// resumePending finalizes sessions interrupted mid-recording and drains every
// session with chunks still awaiting upload, one at a time.
func resumePending(ctx context.Context, store repositories.ChunkStore, sync *syncer.Engine, userID string, logger *zap.Logger) error {
	sessions, err := store.IncompleteSessions(ctx)
	if err != nil {
		return err
	}

	for _, session := range sessions {
		if session.Status == entities.SessionStatusRecording {
			// The previous run died mid-recording; what was persisted is
			// what we have.
			now := time.Now()
			uploading := entities.SessionStatusUploading
			if err := store.UpdateSession(ctx, session.ID, entities.SessionPatch{
				Status:  &uploading,
				EndedAt: &now,
			}); err != nil {
				return err
			}
		}

		logger.Info("resuming upload of interrupted session",
			zap.String("session_id", session.ID),
			zap.Int("uploaded", session.UploadedChunks),
			zap.Int("total", session.TotalChunks))

		sync.Start(ctx, session.ID, userID)
		if err := waitForSync(ctx, sync, store, session.ID, logger); err != nil {
			return err
		}
	}
	return nil
}

// waitForSync blocks until the engine finishes draining the session.
func waitForSync(ctx context.Context, sync *syncer.Engine, store repositories.ChunkStore, sessionID string, logger *zap.Logger) error {
	for sync.Running() {
		time.Sleep(200 * time.Millisecond)
	}
	session, err := store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session == nil || session.Status != entities.SessionStatusCompleted {
		return fmt.Errorf("session %s did not finish uploading", sessionID)
	}
	logger.Info("all chunks uploaded", zap.String("session_id", sessionID))
	return nil
}

// triggerProcessing asks the server to run the processing pipeline and waits
// for it to finish.
func triggerProcessing(ctx context.Context, serverURL, userID, sessionID string) error {
	payload, err := json.Marshal(map[string]string{
		"sessionId": sessionID,
		"userId":    userID,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		serverURL+"/api/v1/process", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token := os.Getenv("LECTURA_API_TOKEN"); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	// Processing a long recording takes a while.
	client := &http.Client{Timeout: 30 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("processing failed with status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return nil
}

func logRecorderEvents(events <-chan recorder.Event, logger *zap.Logger) {
	for ev := range events {
		switch ev.Type {
		case recorder.EventStateChanged:
			logger.Info("recorder state", zap.String("state", string(ev.State)))
		case recorder.EventChunkSaved:
			logger.Info("chunk saved",
				zap.String("chunk_id", ev.Chunk.ID),
				zap.Int("bytes", len(ev.Chunk.Payload)))
		case recorder.EventError:
			logger.Error("recorder error", zap.Error(ev.Err))
		}
	}
}

func logSyncEvents(events <-chan syncer.Event, logger *zap.Logger) {
	for ev := range events {
		switch ev.Type {
		case syncer.EventStatusChanged:
			logger.Info("sync status", zap.String("status", string(ev.Status)))
		case syncer.EventChunkUploaded:
			logger.Info("chunk uploaded",
				zap.String("chunk_id", ev.ChunkID),
				zap.Int("uploaded", ev.Uploaded),
				zap.Int("total", ev.Total))
		case syncer.EventUploadError:
			logger.Warn("upload attempt failed", zap.Error(ev.Err))
		case syncer.EventCompleted:
			logger.Info("session fully uploaded", zap.String("session_id", ev.SessionID))
		}
	}
}
