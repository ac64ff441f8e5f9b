// Package media wraps the ffmpeg command line for audio extraction and
// remuxing, and reads and writes the WAV files passed between stages.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrToolMissing is returned by Available when the transcoder binary cannot
// be found on PATH.
var ErrToolMissing = errors.New("transcoder not found")

// ToolError is a non-zero exit from the transcoder. Stderr holds its
// diagnostic output.
type ToolError struct {
	Op     string
	Stderr string
	Err    error
}

func (e *ToolError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("ffmpeg %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("ffmpeg %s: %v: %s", e.Op, e.Err, e.Stderr)
}

func (e *ToolError) Unwrap() error { return e.Err }

type Transcoder struct {
	binary string
	logger *zap.Logger
}

func NewTranscoder(binary string, logger *zap.Logger) *Transcoder {
	if binary == "" {
		binary = "ffmpeg"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transcoder{binary: binary, logger: logger}
}

// Available reports whether the transcoder binary is on PATH.
func (t *Transcoder) Available() error {
	if _, err := exec.LookPath(t.binary); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrToolMissing, t.binary, err)
	}
	return nil
}

// ExtractAudio writes the first audio track of videoPath to audioPath as
// mono 16-bit PCM WAV at sampleRate.
func (t *Transcoder) ExtractAudio(ctx context.Context, videoPath, audioPath string, sampleRate int) error {
	return t.run(ctx, "extract audio",
		"-nostdin", "-y",
		"-i", videoPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", "1",
		audioPath,
	)
}

// Remux copies the first video stream of videoPath and the first audio
// stream of audioPath into outPath, encoding the audio as AAC.
func (t *Transcoder) Remux(ctx context.Context, videoPath, audioPath, outPath string) error {
	return t.run(ctx, "remux",
		"-nostdin", "-y",
		"-i", videoPath,
		"-i", audioPath,
		"-c:v", "copy",
		"-c:a", "aac",
		"-map", "0:v:0",
		"-map", "1:a:0",
		outPath,
	)
}

func (t *Transcoder) run(ctx context.Context, op string, args ...string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.binary, args...)
	cmd.Stderr = &stderr

	start := time.Now()
	t.logger.Debug("running transcoder", zap.String("op", op), zap.Strings("args", args))
	if err := cmd.Run(); err != nil {
		return &ToolError{Op: op, Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}
	t.logger.Debug("transcoder finished", zap.String("op", op), zap.Duration("elapsed", time.Since(start)))
	return nil
}
