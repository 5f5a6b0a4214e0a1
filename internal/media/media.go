// Package media prepares merged session audio for transcription: binary
// concatenation of chunks, a container re-mux to repair timestamps, MP3
// conversion, and duration-based segmentation for transcription size limits.
package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Runner executes an external command and returns its combined output. It is
// injectable so tests can intercept the ffmpeg invocations.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// DefaultSegmentSeconds is the transcription segment length.
const DefaultSegmentSeconds = 600

// Processor runs the audio preparation steps.
type Processor struct {
	runner  Runner
	logger  *zap.Logger
	ffmpeg  string
	ffprobe string
}

// NewProcessor creates a processor using the ffmpeg and ffprobe binaries on
// PATH. A nil runner selects real command execution.
func NewProcessor(runner Runner, logger *zap.Logger) *Processor {
	if runner == nil {
		runner = execRunner
	}
	return &Processor{
		runner:  runner,
		logger:  logger,
		ffmpeg:  "ffmpeg",
		ffprobe: "ffprobe",
	}
}

// Concatenate appends the source files into dest in order. Chunks from one
// capture stream form a valid continuous container when joined this way.
func (p *Processor) Concatenate(sources []string, dest string) error {
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	defer out.Close()

	for _, src := range sources {
		in, err := os.Open(src)
		if err != nil {
			return fmt.Errorf("open %s: %w", src, err)
		}
		_, err = io.Copy(out, in)
		in.Close()
		if err != nil {
			return fmt.Errorf("append %s: %w", src, err)
		}
	}
	return nil
}

// Remux rewrites the container with regenerated timestamps, repairing the
// discontinuities that chunk boundaries introduce. When ffmpeg cannot repair
// the stream the source is used as-is; transcription tolerates imperfect
// timestamps better than a missing file.
func (p *Processor) Remux(ctx context.Context, src, dest string) error {
	out, err := p.runner(ctx, p.ffmpeg,
		"-y",
		"-fflags", "+genpts+igndts",
		"-err_detect", "ignore_err",
		"-i", src,
		"-c", "copy",
		"-f", "matroska",
		dest,
	)
	if err == nil {
		return nil
	}

	p.logger.Warn("remux failed, using concatenated audio as-is",
		zap.Error(err), zap.String("output", strings.TrimSpace(string(out))))
	return copyFile(src, dest)
}

// ConvertToMP3 transcodes to 16 kHz mono MP3, the cheapest format the
// transcription API accepts.
func (p *Processor) ConvertToMP3(ctx context.Context, src, dest string) error {
	out, err := p.runner(ctx, p.ffmpeg,
		"-y",
		"-i", src,
		"-ar", "16000",
		"-ac", "1",
		"-c:a", "libmp3lame",
		dest,
	)
	if err != nil {
		return fmt.Errorf("mp3 conversion failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Segment splits the audio into pieces of at most segmentSeconds and returns
// their paths in playback order.
func (p *Processor) Segment(ctx context.Context, src, dir string, segmentSeconds int) ([]string, error) {
	if segmentSeconds <= 0 {
		segmentSeconds = DefaultSegmentSeconds
	}
	pattern := filepath.Join(dir, "segment_%03d"+filepath.Ext(src))

	out, err := p.runner(ctx, p.ffmpeg,
		"-y",
		"-i", src,
		"-f", "segment",
		"-segment_time", strconv.Itoa(segmentSeconds),
		"-c", "copy",
		pattern,
	)
	if err != nil {
		return nil, fmt.Errorf("segmentation failed: %w: %s", err, strings.TrimSpace(string(out)))
	}

	segments, err := filepath.Glob(filepath.Join(dir, "segment_*"+filepath.Ext(src)))
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	sort.Strings(segments)
	if len(segments) == 0 {
		return nil, fmt.Errorf("segmentation produced no output")
	}
	return segments, nil
}

// Duration reads the audio duration in seconds with ffprobe.
func (p *Processor) Duration(ctx context.Context, src string) (float64, error) {
	out, err := p.runner(ctx, p.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		src,
	)
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w: %s", err, strings.TrimSpace(string(out)))
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", strings.TrimSpace(string(out)), err)
	}
	return seconds, nil
}

// MergeChunks runs the full preparation: concatenate the chunk files, repair
// the container, and convert to MP3. It returns the MP3 path inside workDir.
func (p *Processor) MergeChunks(ctx context.Context, chunkPaths []string, workDir string) (string, error) {
	if len(chunkPaths) == 0 {
		return "", fmt.Errorf("no chunk files to merge")
	}

	ext := filepath.Ext(chunkPaths[0])
	rawPath := filepath.Join(workDir, "merged_raw"+ext)
	fixedPath := filepath.Join(workDir, "merged_fixed"+ext)
	mp3Path := filepath.Join(workDir, "merged.mp3")

	if err := p.Concatenate(chunkPaths, rawPath); err != nil {
		return "", err
	}
	if err := p.Remux(ctx, rawPath, fixedPath); err != nil {
		return "", err
	}
	if err := p.ConvertToMP3(ctx, fixedPath, mp3Path); err != nil {
		return "", err
	}

	p.logger.Debug("chunks merged",
		zap.Int("chunks", len(chunkPaths)),
		zap.String("output", mp3Path))
	return mp3Path, nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return nil
}
