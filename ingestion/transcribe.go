package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/poiesic/voicevault/ai"
	"github.com/poiesic/voicevault/blob"
	"github.com/poiesic/voicevault/core"
	"github.com/poiesic/voicevault/retry"
	"github.com/poiesic/voicevault/storage"
)

// transcribeStage turns the post's original audio into segments.
// Transient failures are retried under policy; the audio is re-read from
// the blob store on every attempt and checked against its ledger digest.
type transcribeStage struct {
	files       storage.FileRepository
	blobs       blob.Store
	transcriber ai.Transcriber
	policy      retry.Policy
}

var _ stage = (*transcribeStage)(nil)

func (s *transcribeStage) name() string { return "transcribe" }

func (s *transcribeStage) process(ctx context.Context, r *run) error {
	file, err := s.files.GetFile(ctx, r.post.Id, core.RoleOriginalAudio)
	if err != nil {
		return fmt.Errorf("load original audio record: %w", err)
	}

	format := ai.FormatFromContentType(file.ContentType)
	if format == "" {
		format = ai.FormatFromFileName(r.post.SourceName)
	}

	attempt := 0
	return retry.Do(ctx, s.policy, func(ctx context.Context) error {
		attempt++
		segments, err := s.transcribe(ctx, r, file, format)
		if err != nil {
			r.logger.Warn("transcription attempt failed",
				"attempt", attempt, "retryable", core.IsRetryable(err), "error", err)
			return err
		}
		r.segments = segments
		return nil
	})
}

func (s *transcribeStage) transcribe(ctx context.Context, r *run, file *core.ArchiveFile, format string) ([]core.Segment, error) {
	rc, err := s.blobs.Open(ctx, file.Path)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s is missing", core.ErrIntegrityMismatch, file.Path)
		}
		return nil, core.Retryable(fmt.Errorf("open %s: %w", file.Path, err))
	}
	defer rc.Close()

	hr := blob.NewHashingReader(rc)
	segments, err := s.transcriber.Transcribe(ctx, ai.TranscriptionRequest{
		Audio:    hr,
		FileName: r.post.SourceName,
		Format:   format,
		Language: r.post.Language,
	})
	if err != nil {
		return nil, err
	}

	if _, err := io.Copy(io.Discard, hr); err != nil {
		return nil, core.Retryable(fmt.Errorf("read %s: %w", file.Path, err))
	}
	if hr.Digest() != file.Digest {
		return nil, fmt.Errorf("%w: %s digest %s, ledger %s", core.ErrIntegrityMismatch, file.Path, hr.Digest(), file.Digest)
	}
	return segments, nil
}
