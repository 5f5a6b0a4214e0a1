package entities

import "testing"

func TestChunkID(t *testing.T) {
	if got := ChunkID("abc", 42); got != "abc_chunk_000042" {
		t.Errorf("Expected abc_chunk_000042, got %s", got)
	}
}

func TestNewAudioChunk(t *testing.T) {
	chunk := NewAudioChunk("abc", 3, "", []byte{1, 2, 3})

	if chunk.ID != "abc_chunk_000003" {
		t.Errorf("Unexpected chunk id %s", chunk.ID)
	}
	if chunk.MediaType != DefaultMediaType {
		t.Errorf("Expected default media type, got %s", chunk.MediaType)
	}
	if chunk.Uploaded {
		t.Error("New chunk should not be marked uploaded")
	}
	if err := chunk.Validate(); err != nil {
		t.Errorf("New chunk should validate, got: %v", err)
	}
}

func TestChunkFileExtension(t *testing.T) {
	webm := NewAudioChunk("s", 0, "audio/webm;codecs=opus", nil)
	if webm.FileExtension() != "webm" {
		t.Errorf("Expected webm, got %s", webm.FileExtension())
	}

	ogg := NewAudioChunk("s", 0, "audio/ogg;codecs=opus", nil)
	if ogg.FileExtension() != "ogg" {
		t.Errorf("Expected ogg, got %s", ogg.FileExtension())
	}
}

func TestChunkObjectKey(t *testing.T) {
	chunk := NewAudioChunk("sess-1", 7, "audio/webm", nil)

	key := chunk.ObjectKey("user-9")
	want := "users/user-9/recordings/sess-1/chunk_000007.webm"
	if key != want {
		t.Errorf("Expected %s, got %s", want, key)
	}

	// Same chunk, same key: re-upload overwrites.
	if chunk.ObjectKey("user-9") != key {
		t.Error("Object key must be deterministic")
	}

	anon := chunk.ObjectKey("")
	if anon != "recordings/sess-1/chunk_000007.webm" {
		t.Errorf("Unexpected anonymous key %s", anon)
	}
}

func TestSessionPrefix(t *testing.T) {
	prefix := SessionPrefix("u1", "s1")
	if prefix != "users/u1/recordings/s1/" {
		t.Errorf("Unexpected prefix %s", prefix)
	}
}

func TestChunkValidate(t *testing.T) {
	chunk := NewAudioChunk("s", 0, "audio/webm", nil)
	chunk.ID = "mismatched"
	if err := chunk.Validate(); err == nil {
		t.Error("mismatched id should fail validation")
	}

	chunk = NewAudioChunk("", 0, "audio/webm", nil)
	if err := chunk.Validate(); err == nil {
		t.Error("empty session id should fail validation")
	}
}
