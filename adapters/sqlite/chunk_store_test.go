package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"lectura/domain/entities"
)

func openTestStore(t *testing.T) *ChunkStore {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "lectura.sqlite"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveChunkIdempotent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	chunk := entities.NewAudioChunk("s1", 0, "audio/webm", []byte("first"))
	if err := store.SaveChunk(ctx, chunk); err != nil {
		t.Fatalf("save chunk: %v", err)
	}

	// Re-saving the same identity overwrites rather than duplicates.
	chunk.Payload = []byte("second")
	if err := store.SaveChunk(ctx, chunk); err != nil {
		t.Fatalf("re-save chunk: %v", err)
	}

	chunks, err := store.ChunksForSession(ctx, "s1")
	if err != nil {
		t.Fatalf("chunks for session: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if string(chunks[0].Payload) != "second" {
		t.Errorf("expected overwritten payload, got %q", chunks[0].Payload)
	}
}

func TestUnuploadedChunksOrdered(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	// Insert out of order.
	for _, idx := range []int{2, 0, 1, 3} {
		chunk := entities.NewAudioChunk("s1", idx, "audio/webm", []byte{byte(idx)})
		if err := store.SaveChunk(ctx, chunk); err != nil {
			t.Fatalf("save chunk %d: %v", idx, err)
		}
	}
	if err := store.MarkChunkUploaded(ctx, entities.ChunkID("s1", 1)); err != nil {
		t.Fatalf("mark uploaded: %v", err)
	}

	pending, err := store.UnuploadedChunks(ctx, "s1")
	if err != nil {
		t.Fatalf("unuploaded chunks: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending chunks, got %d", len(pending))
	}
	want := []int{0, 2, 3}
	for i, chunk := range pending {
		if chunk.ChunkIndex != want[i] {
			t.Errorf("pending[%d] index = %d, want %d", i, chunk.ChunkIndex, want[i])
		}
	}
}

func TestMarkChunkUploadedIdempotent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	chunk := entities.NewAudioChunk("s1", 0, "audio/webm", []byte("x"))
	if err := store.SaveChunk(ctx, chunk); err != nil {
		t.Fatalf("save chunk: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := store.MarkChunkUploaded(ctx, chunk.ID); err != nil {
			t.Fatalf("mark uploaded (call %d): %v", i+1, err)
		}
	}

	pending, err := store.UnuploadedChunks(ctx, "s1")
	if err != nil {
		t.Fatalf("unuploaded chunks: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected no pending chunks, got %d", len(pending))
	}
}

func TestSessionRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	session := entities.NewRecordingSession("s1")
	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatalf("create session: %v", err)
	}

	got, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got == nil {
		t.Fatal("expected session, got nil")
	}
	if got.Status != entities.SessionStatusRecording {
		t.Errorf("expected recording status, got %s", got.Status)
	}

	missing, err := store.GetSession(ctx, "nope")
	if err != nil {
		t.Fatalf("get missing session: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing session")
	}
}

func TestUpdateSessionMerge(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	session := entities.NewRecordingSession("s1")
	session.TotalChunks = 3
	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatalf("create session: %v", err)
	}

	uploading := entities.SessionStatusUploading
	ended := time.Now()
	if err := store.UpdateSession(ctx, "s1", entities.SessionPatch{Status: &uploading, EndedAt: &ended}); err != nil {
		t.Fatalf("update session: %v", err)
	}

	got, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.Status != entities.SessionStatusUploading {
		t.Errorf("expected uploading, got %s", got.Status)
	}
	if got.TotalChunks != 3 {
		t.Errorf("unpatched total changed: %d", got.TotalChunks)
	}
	if got.EndedAt == nil {
		t.Error("expected ended_at set")
	}
}

func TestUpdateSessionRecreatesMissing(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	total := 2
	if err := store.UpdateSession(ctx, "ghost", entities.SessionPatch{TotalChunks: &total}); err != nil {
		t.Fatalf("update missing session: %v", err)
	}

	got, err := store.GetSession(ctx, "ghost")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got == nil {
		t.Fatal("expected recreated session")
	}
	if got.Status != entities.SessionStatusRecording {
		t.Errorf("expected default recording status, got %s", got.Status)
	}
	if got.TotalChunks != 2 {
		t.Errorf("expected patched total 2, got %d", got.TotalChunks)
	}
	if got.UploadedChunks != 0 {
		t.Errorf("expected default zero uploaded, got %d", got.UploadedChunks)
	}
}

func TestUpdateSessionConcurrentCounters(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.CreateSession(ctx, entities.NewRecordingSession("s1")); err != nil {
		t.Fatalf("create session: %v", err)
	}

	// The capture side patches total_chunks while the sync side patches
	// uploaded_chunks. Neither writer may lose the other's field.
	const patches = 300
	errs := make(chan error, 2*patches)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 1; i <= patches; i++ {
			total := i
			if err := store.UpdateSession(ctx, "s1", entities.SessionPatch{TotalChunks: &total}); err != nil {
				errs <- err
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 1; i <= patches; i++ {
			uploaded := i
			if err := store.UpdateSession(ctx, "s1", entities.SessionPatch{UploadedChunks: &uploaded}); err != nil {
				errs <- err
			}
		}
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent update: %v", err)
	}

	got, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.TotalChunks != patches {
		t.Errorf("total_chunks = %d, want %d", got.TotalChunks, patches)
	}
	if got.UploadedChunks != patches {
		t.Errorf("uploaded_chunks = %d, want %d", got.UploadedChunks, patches)
	}
	if got.Status != entities.SessionStatusRecording {
		t.Errorf("status changed by counter patches: %s", got.Status)
	}
}

func TestUpdateSessionCounterPatchKeepsFinalizedState(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.CreateSession(ctx, entities.NewRecordingSession("s1")); err != nil {
		t.Fatalf("create session: %v", err)
	}

	uploading := entities.SessionStatusUploading
	ended := time.Now()
	if err := store.UpdateSession(ctx, "s1", entities.SessionPatch{Status: &uploading, EndedAt: &ended}); err != nil {
		t.Fatalf("finalize session: %v", err)
	}

	// A late counter patch must not revert the session to recording or
	// drop its end time.
	total := 7
	if err := store.UpdateSession(ctx, "s1", entities.SessionPatch{TotalChunks: &total}); err != nil {
		t.Fatalf("counter patch: %v", err)
	}

	got, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.Status != entities.SessionStatusUploading {
		t.Errorf("status = %s, want uploading", got.Status)
	}
	if got.EndedAt == nil {
		t.Error("ended_at dropped by counter patch")
	}
	if got.TotalChunks != 7 {
		t.Errorf("total_chunks = %d, want 7", got.TotalChunks)
	}
}

func TestIncompleteSessions(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	statuses := map[string]entities.SessionStatus{
		"rec":  entities.SessionStatusRecording,
		"up":   entities.SessionStatusUploading,
		"done": entities.SessionStatusCompleted,
		"bad":  entities.SessionStatusFailed,
	}
	for id, status := range statuses {
		session := entities.NewRecordingSession(id)
		session.Status = status
		if err := store.CreateSession(ctx, session); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	incomplete, err := store.IncompleteSessions(ctx)
	if err != nil {
		t.Fatalf("incomplete sessions: %v", err)
	}
	if len(incomplete) != 2 {
		t.Fatalf("expected 2 incomplete sessions, got %d", len(incomplete))
	}
	for _, session := range incomplete {
		if !session.Incomplete() {
			t.Errorf("session %s with status %s should not be returned", session.ID, session.Status)
		}
	}
}

func TestDeleteSessionRemovesChunks(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.CreateSession(ctx, entities.NewRecordingSession("s1")); err != nil {
		t.Fatalf("create session: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := store.SaveChunk(ctx, entities.NewAudioChunk("s1", i, "audio/webm", []byte{1})); err != nil {
			t.Fatalf("save chunk %d: %v", i, err)
		}
	}

	if err := store.DeleteSession(ctx, "s1"); err != nil {
		t.Fatalf("delete session: %v", err)
	}

	chunks, err := store.ChunksForSession(ctx, "s1")
	if err != nil {
		t.Fatalf("chunks for session: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("expected no orphaned chunks, got %d", len(chunks))
	}
	session, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if session != nil {
		t.Error("expected session to be gone")
	}
}
