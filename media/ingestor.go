// Package media accepts raw recordings into the archive.
//
// An upload is sniffed against an audio/video allow-list, streamed through
// SHA-256 into the blob store and recorded together with its post in a
// single storage transaction.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"

	"github.com/poiesic/voicevault/ai"
	"github.com/poiesic/voicevault/blob"
	"github.com/poiesic/voicevault/core"
	"github.com/poiesic/voicevault/storage"
)

// DefaultMaxBytes is the default upload size limit (1 GiB).
const DefaultMaxBytes int64 = 1 << 30

// Store is the part of the archive store the ingestor writes to.
type Store interface {
	storage.PostRepository
	storage.FileRepository
	storage.AuditRepository
}

// Upload is a recording submitted by a user.
type Upload struct {
	UserID      core.UserID
	Title       string
	Description string
	Visibility  core.Visibility // defaults to private
	Language    string
	FileName    string
	ContentType string
	Body        io.Reader
}

// Result is the post and original_audio ledger row created by Ingest.
type Result struct {
	Post *core.Post
	File *core.ArchiveFile
}

// Ingestor stores uploads and verifies stored artifacts.
type Ingestor struct {
	store      Store
	blobs      blob.Store
	maxBytes   int64
	wholeLimit int64
	logger     *slog.Logger
}

// Option configures an Ingestor.
type Option func(*Ingestor) error

// WithLogger sets the ingestor logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Ingestor) error {
		i.logger = logger
		return nil
	}
}

// WithMaxBytes sets the largest accepted upload.
func WithMaxBytes(n int64) Option {
	return func(i *Ingestor) error {
		if n <= 0 {
			return fmt.Errorf("%w: max bytes must be positive, got %d", ErrInvalidConfig, n)
		}
		i.maxBytes = n
		return nil
	}
}

// WithWholeFileLimit caps uploads in formats the transcriber cannot split
// into windows. Such recordings must fit in one transcription request.
// Zero, the default, applies only the WithMaxBytes limit.
func WithWholeFileLimit(n int64) Option {
	return func(i *Ingestor) error {
		if n < 0 {
			return fmt.Errorf("%w: whole file limit must not be negative, got %d", ErrInvalidConfig, n)
		}
		i.wholeLimit = n
		return nil
	}
}

// NewIngestor creates an Ingestor writing rows to store and bytes to blobs.
func NewIngestor(store Store, blobs blob.Store, opts ...Option) (*Ingestor, error) {
	i := &Ingestor{
		store:    store,
		blobs:    blobs,
		maxBytes: DefaultMaxBytes,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(i); err != nil {
			return nil, err
		}
	}
	i.logger = i.logger.With("component", "media-ingestor")
	return i, nil
}

// Ingest validates and stores an upload. The post is created with status
// uploaded. Unsupported media is rejected before anything is written, and
// a failed transaction removes the blob it already stored.
func (i *Ingestor) Ingest(ctx context.Context, up Upload) (*Result, error) {
	if up.Body == nil {
		return nil, fmt.Errorf("%w: empty upload", core.ErrUnsupportedMediaType)
	}
	if err := CheckDeclared(up.FileName, up.ContentType); err != nil {
		return nil, err
	}

	draft := &core.Post{
		UserID:      up.UserID,
		Title:       up.Title,
		Description: up.Description,
		Visibility:  up.Visibility,
		Status:      core.StatusUploaded,
		Language:    up.Language,
		SourceName:  path.Base(up.FileName),
	}
	if draft.Visibility == "" {
		draft.Visibility = core.VisibilityPrivate
	}
	if draft.SourceName == "." || draft.SourceName == "/" {
		draft.SourceName = ""
	}
	if err := core.ValidatePost(draft); err != nil {
		return nil, err
	}

	kind, body, err := Sniff(up.Body)
	if err != nil {
		return nil, err
	}
	contentType := kind.MIME.Value
	limit := &limitReader{r: body, max: i.maxBytes}
	if i.wholeLimit > 0 && i.wholeLimit < i.maxBytes && !ai.IsSplittable(kind.Extension) {
		limit = &limitReader{r: body, max: i.wholeLimit, format: kind.Extension}
	}

	var (
		result Result
		key    string
	)
	err = i.store.WithTransaction(ctx, func(ctx context.Context) error {
		post, err := i.store.AddPost(ctx, draft)
		if err != nil {
			return err
		}

		key = blob.Key(post.StoragePrefix, core.RoleOriginalAudio)
		obj, err := i.blobs.Put(ctx, key, limit, contentType)
		if err != nil {
			return fmt.Errorf("%w: store %s: %w", core.ErrStorageWrite, key, err)
		}

		file := &core.ArchiveFile{
			PostID:      post.Id,
			Role:        core.RoleOriginalAudio,
			Path:        key,
			ContentType: contentType,
			Size:        obj.Size,
			Digest:      obj.Digest,
			CreatedAt:   post.CreatedAt,
		}
		if err := i.store.PutFile(ctx, file); err != nil {
			return err
		}

		_, err = i.store.AppendAudit(ctx, &core.AuditEntry{
			Action: core.AuditUpload,
			UserID: post.UserID,
			PostID: post.Id,
			Detail: post.SourceName,
		})
		if err != nil {
			return err
		}

		result = Result{Post: post, File: file}
		return nil
	})
	if err != nil {
		if key != "" {
			if derr := i.blobs.Delete(context.WithoutCancel(ctx), key); derr != nil {
				i.logger.Error("failed to remove blob of aborted upload", "key", key, "error", derr)
			}
		}
		if errors.Is(err, core.ErrStorageWrite) || errors.Is(err, core.ErrInvalidPost) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", core.ErrStorageWrite, err)
	}

	i.logger.Info("upload stored",
		"post_id", result.Post.Id,
		"user_id", result.Post.UserID,
		"content_type", contentType,
		"size", result.File.Size)
	return &result, nil
}

// Verify recomputes the SHA-256 of a stored artifact and compares it with
// the ledger. Returns core.ErrIntegrityMismatch when they differ or the
// blob is gone, and storage.ErrNotFound when no ledger row exists.
func (i *Ingestor) Verify(ctx context.Context, postID core.ID, role core.FileRole) (*core.ArchiveFile, error) {
	if err := core.ValidateFileRole(role); err != nil {
		return nil, err
	}
	file, err := i.store.GetFile(ctx, postID, role)
	if err != nil {
		return nil, err
	}

	digest, err := blob.Digest(ctx, i.blobs, file.Path)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return file, fmt.Errorf("%w: %s is missing", core.ErrIntegrityMismatch, file.Path)
		}
		return nil, err
	}
	if digest != file.Digest {
		i.logger.Warn("integrity mismatch", "post_id", postID, "role", role, "expected", file.Digest, "actual", digest)
		return file, fmt.Errorf("%w: %s digest %s, ledger %s", core.ErrIntegrityMismatch, file.Path, digest, file.Digest)
	}
	return file, nil
}
