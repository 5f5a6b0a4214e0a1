package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

// recordingRunner records invocations and delegates to a scripted handler.
type recordingRunner struct {
	calls   [][]string
	handler func(name string, args []string) ([]byte, error)
}

func (r *recordingRunner) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	call := append([]string{name}, args...)
	r.calls = append(r.calls, call)
	if r.handler != nil {
		return r.handler(name, args)
	}
	return nil, nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestConcatenatePreservesOrder(t *testing.T) {
	dir := t.TempDir()
	var sources []string
	for i, content := range []string{"alpha-", "beta-", "gamma"} {
		path := filepath.Join(dir, "chunk_"+string(rune('0'+i))+".webm")
		writeFile(t, path, content)
		sources = append(sources, path)
	}

	dest := filepath.Join(dir, "merged.webm")
	p := NewProcessor(nil, zap.NewNop())
	if err := p.Concatenate(sources, dest); err != nil {
		t.Fatalf("concatenate: %v", err)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read merged: %v", err)
	}
	if string(data) != "alpha-beta-gamma" {
		t.Errorf("merged content = %q", data)
	}
}

func TestRemuxArguments(t *testing.T) {
	runner := &recordingRunner{}
	p := NewProcessor(runner.run, zap.NewNop())

	if err := p.Remux(context.Background(), "in.webm", "out.webm"); err != nil {
		t.Fatalf("remux: %v", err)
	}

	if len(runner.calls) != 1 {
		t.Fatalf("expected 1 invocation, got %d", len(runner.calls))
	}
	got := strings.Join(runner.calls[0], " ")
	for _, want := range []string{"+genpts+igndts", "-err_detect ignore_err", "-c copy", "-f matroska"} {
		if !strings.Contains(got, want) {
			t.Errorf("remux args missing %q: %s", want, got)
		}
	}
}

func TestRemuxFallsBackToRawCopy(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.webm")
	dest := filepath.Join(dir, "out.webm")
	writeFile(t, src, "raw-audio-bytes")

	runner := &recordingRunner{handler: func(name string, args []string) ([]byte, error) {
		return []byte("Invalid data found"), errors.New("exit status 1")
	}}
	p := NewProcessor(runner.run, zap.NewNop())

	if err := p.Remux(context.Background(), src, dest); err != nil {
		t.Fatalf("remux fallback: %v", err)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read fallback output: %v", err)
	}
	if string(data) != "raw-audio-bytes" {
		t.Errorf("fallback did not copy source, got %q", data)
	}
}

func TestConvertToMP3Arguments(t *testing.T) {
	runner := &recordingRunner{}
	p := NewProcessor(runner.run, zap.NewNop())

	if err := p.ConvertToMP3(context.Background(), "in.webm", "out.mp3"); err != nil {
		t.Fatalf("convert: %v", err)
	}

	got := strings.Join(runner.calls[0], " ")
	for _, want := range []string{"-ar 16000", "-ac 1", "-c:a libmp3lame", "out.mp3"} {
		if !strings.Contains(got, want) {
			t.Errorf("convert args missing %q: %s", want, got)
		}
	}
}

func TestSegmentReturnsSortedPieces(t *testing.T) {
	dir := t.TempDir()
	runner := &recordingRunner{handler: func(name string, args []string) ([]byte, error) {
		// Simulate ffmpeg writing segment files out of glob order.
		writeFile(t, filepath.Join(dir, "segment_001.mp3"), "b")
		writeFile(t, filepath.Join(dir, "segment_000.mp3"), "a")
		writeFile(t, filepath.Join(dir, "segment_002.mp3"), "c")
		return nil, nil
	}}
	p := NewProcessor(runner.run, zap.NewNop())

	segments, err := p.Segment(context.Background(), filepath.Join(dir, "merged.mp3"), dir, 600)
	if err != nil {
		t.Fatalf("segment: %v", err)
	}
	if len(segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segments))
	}
	for i, seg := range segments {
		if !strings.HasSuffix(seg, "segment_00"+string(rune('0'+i))+".mp3") {
			t.Errorf("segment %d out of order: %s", i, seg)
		}
	}

	got := strings.Join(runner.calls[0], " ")
	if !strings.Contains(got, "-segment_time 600") {
		t.Errorf("segment args missing segment_time: %s", got)
	}
}

func TestDurationParsesProbeOutput(t *testing.T) {
	runner := &recordingRunner{handler: func(name string, args []string) ([]byte, error) {
		if name != "ffprobe" {
			t.Errorf("expected ffprobe, got %s", name)
		}
		return []byte("123.456\n"), nil
	}}
	p := NewProcessor(runner.run, zap.NewNop())

	seconds, err := p.Duration(context.Background(), "merged.mp3")
	if err != nil {
		t.Fatalf("duration: %v", err)
	}
	if seconds != 123.456 {
		t.Errorf("duration = %v, want 123.456", seconds)
	}
}

func TestMergeChunksPipeline(t *testing.T) {
	dir := t.TempDir()
	chunk0 := filepath.Join(dir, "chunk_000000.webm")
	chunk1 := filepath.Join(dir, "chunk_000001.webm")
	writeFile(t, chunk0, "first")
	writeFile(t, chunk1, "second")

	runner := &recordingRunner{}
	p := NewProcessor(runner.run, zap.NewNop())

	mp3Path, err := p.MergeChunks(context.Background(), []string{chunk0, chunk1}, dir)
	if err != nil {
		t.Fatalf("merge chunks: %v", err)
	}
	if filepath.Ext(mp3Path) != ".mp3" {
		t.Errorf("expected mp3 output, got %s", mp3Path)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "merged_raw.webm"))
	if err != nil {
		t.Fatalf("read concatenated file: %v", err)
	}
	if string(raw) != "firstsecond" {
		t.Errorf("concatenation wrong: %q", raw)
	}

	// Remux then conversion.
	if len(runner.calls) != 2 {
		t.Fatalf("expected 2 ffmpeg invocations, got %d", len(runner.calls))
	}

	if _, err := p.MergeChunks(context.Background(), nil, dir); err == nil {
		t.Error("expected error for empty chunk list")
	}
}
