package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"lectura/adapters/memstore"
	"lectura/domain/entities"
	"lectura/internal/auth"
	"lectura/internal/events"
	"lectura/internal/pipeline"
)

type fakeProcessor struct {
	err   error
	calls []string
}

func (f *fakeProcessor) Process(ctx context.Context, userID, sessionID string) error {
	f.calls = append(f.calls, userID+"/"+sessionID)
	return f.err
}

type fakeLectures struct {
	lectures map[string]*entities.Lecture
	deleted  []string
}

func (f *fakeLectures) Merge(ctx context.Context, userID, sessionID string, update entities.LectureUpdate) error {
	return nil
}

func (f *fakeLectures) Get(ctx context.Context, userID, sessionID string) (*entities.Lecture, error) {
	return f.lectures[userID+"/"+sessionID], nil
}

func (f *fakeLectures) Delete(ctx context.Context, userID, sessionID string) error {
	f.deleted = append(f.deleted, userID+"/"+sessionID)
	return nil
}

type fixture struct {
	echo      *echo.Echo
	processor *fakeProcessor
	lectures  *fakeLectures
	objects   *memstore.ObjectStore
}

func newFixture(verifier *auth.Verifier) *fixture {
	f := &fixture{
		echo:      echo.New(),
		processor: &fakeProcessor{},
		lectures:  &fakeLectures{lectures: make(map[string]*entities.Lecture)},
		objects:   memstore.NewObjectStore(),
	}
	InitRoutes(f.echo, Deps{
		Processor: f.processor,
		Lectures:  f.lectures,
		Objects:   f.objects,
		Bus:       events.NewBus(zap.NewNop()),
		Verifier:  verifier,
		Logger:    zap.NewNop(),
	})
	return f
}

func (f *fixture) request(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	f := newFixture(nil)
	rec := f.request(http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health returned %d", rec.Code)
	}
}

func TestProcessMissingFields(t *testing.T) {
	f := newFixture(nil)
	for _, body := range []string{
		`{}`,
		`{"sessionId":"s1"}`,
		`{"userId":"u1"}`,
	} {
		rec := f.request(http.MethodPost, "/api/v1/process", body, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s returned %d, want 400", body, rec.Code)
		}
	}
	if len(f.processor.calls) != 0 {
		t.Errorf("processor invoked for invalid requests: %v", f.processor.calls)
	}
}

func TestProcessSuccess(t *testing.T) {
	f := newFixture(nil)
	rec := f.request(http.MethodPost, "/api/v1/process",
		`{"sessionId":"sess-1","userId":"user-1"}`, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("process returned %d: %s", rec.Code, rec.Body)
	}
	var resp ProcessResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || resp.SessionID != "sess-1" || resp.Status != "completed" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if len(f.processor.calls) != 1 || f.processor.calls[0] != "user-1/sess-1" {
		t.Errorf("processor calls = %v", f.processor.calls)
	}
}

func TestProcessConflict(t *testing.T) {
	f := newFixture(nil)
	f.processor.err = pipeline.ErrProcessingInFlight

	rec := f.request(http.MethodPost, "/api/v1/process",
		`{"sessionId":"sess-1","userId":"user-1"}`, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestProcessFailure(t *testing.T) {
	f := newFixture(nil)
	f.processor.err = pipeline.ErrNoChunksFound

	rec := f.request(http.MethodPost, "/api/v1/process",
		`{"sessionId":"sess-1","userId":"user-1"}`, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error != "No chunks found for session" {
		t.Errorf("error message = %q", resp.Error)
	}
}

func TestProcessAuthorization(t *testing.T) {
	verifier := auth.NewVerifier("test-secret")
	f := newFixture(verifier)

	// No token.
	rec := f.request(http.MethodPost, "/api/v1/process",
		`{"sessionId":"sess-1","userId":"user-1"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	// Token for a different user.
	other, err := verifier.GenerateUserToken("user-2")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	rec = f.request(http.MethodPost, "/api/v1/process",
		`{"sessionId":"sess-1","userId":"user-1"}`,
		map[string]string{"Authorization": "Bearer " + other})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for mismatched token, got %d", rec.Code)
	}

	// Matching token.
	token, err := verifier.GenerateUserToken("user-1")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	rec = f.request(http.MethodPost, "/api/v1/process",
		`{"sessionId":"sess-1","userId":"user-1"}`,
		map[string]string{"Authorization": "Bearer " + token})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid token, got %d: %s", rec.Code, rec.Body)
	}
}

func TestGetLecture(t *testing.T) {
	f := newFixture(nil)
	f.lectures.lectures["user-1/sess-1"] = &entities.Lecture{
		SessionID: "sess-1",
		UserID:    "user-1",
		Status:    entities.LectureStatusCompleted,
		Title:     "Thermodynamics Basics",
	}

	rec := f.request(http.MethodGet, "/api/v1/lectures/sess-1?userId=user-1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get lecture returned %d", rec.Code)
	}
	var lecture entities.Lecture
	if err := json.Unmarshal(rec.Body.Bytes(), &lecture); err != nil {
		t.Fatalf("decode lecture: %v", err)
	}
	if lecture.Title != "Thermodynamics Basics" {
		t.Errorf("title = %q", lecture.Title)
	}

	rec = f.request(http.MethodGet, "/api/v1/lectures/missing?userId=user-1", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing lecture returned %d, want 404", rec.Code)
	}

	rec = f.request(http.MethodGet, "/api/v1/lectures/sess-1", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing userId returned %d, want 400", rec.Code)
	}
}

func TestDeleteLectureRemovesChunks(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		chunk := entities.NewAudioChunk("sess-1", i, entities.DefaultMediaType, []byte{byte(i)})
		if err := f.objects.Put(ctx, chunk.ObjectKey("user-1"), chunk.MediaType, chunk.Payload); err != nil {
			t.Fatalf("seed chunk: %v", err)
		}
	}

	rec := f.request(http.MethodDelete, "/api/v1/lectures/sess-1?userId=user-1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete returned %d: %s", rec.Code, rec.Body)
	}
	if len(f.lectures.deleted) != 1 || f.lectures.deleted[0] != "user-1/sess-1" {
		t.Errorf("lecture record not deleted: %v", f.lectures.deleted)
	}
	if f.objects.Len() != 0 {
		t.Errorf("expected all chunks removed, %d remain", f.objects.Len())
	}
}

func TestErrorsAreWrappedNotLost(t *testing.T) {
	f := newFixture(nil)
	f.processor.err = errors.New("ffmpeg exploded")

	rec := f.request(http.MethodPost, "/api/v1/process",
		`{"sessionId":"sess-1","userId":"user-1"}`, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ffmpeg exploded") {
		t.Errorf("error detail lost: %s", rec.Body)
	}
}
