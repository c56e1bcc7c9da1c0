// Package media shells out to ffmpeg/ffprobe for audio extraction. The
// binaries are expected on PATH.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/prepstack/interviewflow/internal/faults"
)

var supportedVideoExtensions = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".mov":  true,
	".avi":  true,
	".webm": true,
}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// ValidateVideoFile checks that path exists and carries a supported container
// extension. Failures are media faults: the source is unprocessable.
func ValidateVideoFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		return faults.Media(fmt.Errorf("video file not found: %s", path))
	}
	ext := strings.ToLower(filepath.Ext(path))
	if !supportedVideoExtensions[ext] {
		return faults.Media(fmt.Errorf("unsupported video format: %s", ext))
	}
	return nil
}

// ProbeDuration reads the container duration via ffprobe.
func ProbeDuration(ctx context.Context, path string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		path,
	)

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, classifyToolError(ctx, fmt.Errorf("ffprobe failed: %v: %s", err, stderr.String()))
	}

	var probed ffprobeOutput
	if err := json.Unmarshal(out.Bytes(), &probed); err != nil {
		return 0, faults.Media(fmt.Errorf("parse ffprobe output: %w", err))
	}
	if probed.Format.Duration == "" {
		return 0, faults.Media(errors.New("ffprobe reported no duration"))
	}

	seconds, err := strconv.ParseFloat(probed.Format.Duration, 64)
	if err != nil {
		return 0, faults.Media(fmt.Errorf("parse duration %q: %w", probed.Format.Duration, err))
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// ExtractAudio converts the video at videoPath into a 16 kHz mono WAV at
// audioPath, the format the transcription backend ingests.
func ExtractAudio(ctx context.Context, videoPath, audioPath string) error {
	if err := ValidateVideoFile(videoPath); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(audioPath), 0o755); err != nil {
		return fmt.Errorf("create audio output dir: %w", err)
	}

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y",
		"-i", videoPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		audioPath,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return classifyToolError(ctx, fmt.Errorf("ffmpeg audio extraction failed: %v: %s", err, truncate(stderr.String(), 512)))
	}
	return nil
}

// classifyToolError separates a cancelled/timed-out run (transient, the
// deadline owns it) from a genuine decode failure (the media is bad).
func classifyToolError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return faults.Service(fmt.Errorf("%w: %v", ctx.Err(), err))
	}
	return faults.Media(err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
