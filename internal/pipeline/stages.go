package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/prepstack/interviewflow/internal/faults"
	"github.com/prepstack/interviewflow/internal/media"
	"github.com/prepstack/interviewflow/internal/storage"
)

// ObjectStoreFetcher downloads the source video from the blob bucket.
type ObjectStoreFetcher struct {
	Storage *storage.Client
}

func (f ObjectStoreFetcher) Fetch(ctx context.Context, sourceRef, destDir string) (string, error) {
	if f.Storage == nil {
		return "", errors.New("storage client is required")
	}
	if strings.TrimSpace(sourceRef) == "" {
		return "", faults.Validation("source ref is required")
	}

	exists, err := f.Storage.ObjectExists(ctx, sourceRef)
	if err != nil {
		return "", faults.Service(err)
	}
	if !exists {
		// The job points at a blob that is gone. Retrying cannot help.
		return "", faults.Media(fmt.Errorf("source object is missing: %s", sourceRef))
	}

	ext := strings.ToLower(path.Ext(sourceRef))
	if ext == "" {
		ext = ".mp4"
	}
	localPath := filepath.Join(destDir, "source"+ext)
	if err := f.Storage.DownloadToFile(ctx, sourceRef, localPath); err != nil {
		return "", faults.Service(err)
	}
	return localPath, nil
}

// LocalFileFetcher serves the legacy direct mode: the video is already on
// disk.
type LocalFileFetcher struct{}

func (LocalFileFetcher) Fetch(ctx context.Context, sourceRef, _ string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	if err := media.ValidateVideoFile(sourceRef); err != nil {
		return "", err
	}
	return sourceRef, nil
}

// FFmpegConverter extracts the audio track with ffmpeg.
type FFmpegConverter struct{}

func (FFmpegConverter) ExtractAudio(ctx context.Context, videoPath, audioPath string) error {
	return media.ExtractAudio(ctx, videoPath, audioPath)
}

// ObjectStorePublisher uploads extracted audio and presigns a read URL for
// the transcription backend.
type ObjectStorePublisher struct {
	Storage     *storage.Client
	AudioPrefix string
	URLTTL      time.Duration
}

func (p ObjectStorePublisher) Publish(ctx context.Context, sourceRef, audioPath string) (string, error) {
	if p.Storage == nil {
		return "", errors.New("storage client is required")
	}

	audioKey := path.Join(audioPrefix(p.AudioPrefix), sanitizePathToken(sourceRef)+".wav")
	if err := p.Storage.UploadFile(ctx, audioKey, audioPath, "audio/wav"); err != nil {
		return "", faults.Service(err)
	}

	ttl := p.URLTTL
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	mediaURL, err := p.Storage.PresignedGetURL(ctx, audioKey, ttl)
	if err != nil {
		return "", faults.Service(err)
	}
	return mediaURL, nil
}

func audioPrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "audio"
	}
	return prefix
}

func sanitizePathToken(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
