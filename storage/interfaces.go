package storage

import (
	"context"
	"time"

	"github.com/poiesic/voicevault/core"
)

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// WithTransaction executes fn within a single atomic transaction.
	// Repository calls made with the ctx passed to fn join that transaction.
	// If fn returns an error, nothing fn wrote is persisted.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Close closes the storage backend and releases resources.
	Close() error
}

// PostRepository manages Post rows.
type PostRepository interface {
	Repository

	// AddPost validates and inserts a new post with status uploaded.
	// Assigns Id, StoragePrefix and timestamps.
	AddPost(ctx context.Context, post *core.Post) (*core.Post, error)

	// GetPost retrieves a post by ID.
	// Returns ErrNotFound if the post doesn't exist.
	GetPost(ctx context.Context, id core.ID) (*core.Post, error)

	// ListPostsByUser returns a user's posts, newest first, plus the total count.
	ListPostsByUser(ctx context.Context, userID core.UserID, offset, limit int) ([]*core.Post, int, error)

	// UpdatePost saves editable fields (title, description, visibility, language).
	// Status and run bookkeeping are left untouched.
	// Returns ErrNotFound if the post doesn't exist.
	UpdatePost(ctx context.Context, post *core.Post) (*core.Post, error)

	// TransitionStatus moves a post from one status to another.
	// mutate, when non-nil, may adjust run bookkeeping fields before the write.
	// Returns ErrNotFound if the post doesn't exist and ErrStatusConflict if
	// its current status is not from.
	TransitionStatus(ctx context.Context, id core.ID, from, to core.Status, mutate func(*core.Post)) (*core.Post, error)

	// DeletePost removes a post together with its chunks, metadata and file
	// ledger, and nulls the post reference of its audit entries.
	// Returns ErrNotFound if the post doesn't exist.
	DeletePost(ctx context.Context, id core.ID) error
}

// FileRepository manages the ArchiveFile ledger.
type FileRepository interface {
	Repository

	// PutFile inserts or replaces the ledger row for (PostID, Role).
	PutFile(ctx context.Context, file *core.ArchiveFile) error

	// GetFile returns the ledger row for (postID, role).
	// Returns ErrNotFound if none is recorded.
	GetFile(ctx context.Context, postID core.ID, role core.FileRole) (*core.ArchiveFile, error)

	// ListFiles returns every ledger row of a post in role order.
	ListFiles(ctx context.Context, postID core.ID) ([]*core.ArchiveFile, error)
}

// ChunkRepository reads transcript chunks and attaches missing embeddings.
// Chunks are written only through RunRepository.CommitRun.
type ChunkRepository interface {
	Repository

	// GetChunks returns a post's chunks ordered by start time.
	// limit <= 0 returns all of them.
	GetChunks(ctx context.Context, postID core.ID, limit int) ([]*core.TranscriptChunk, error)

	// ChunksForUser returns every chunk of the user's ready posts together
	// with the owning post's title and creation time.
	ChunksForUser(ctx context.Context, userID core.UserID) ([]*core.ScopedChunk, error)

	// ChunksMissingEmbedding returns up to limit chunks without an embedding
	// whose ID is greater than afterID, in ID order.
	ChunksMissingEmbedding(ctx context.Context, afterID core.ID, limit int) ([]*core.TranscriptChunk, error)

	// SetChunkEmbeddings attaches embeddings to chunks that still lack one.
	// Chunks that already have an embedding or no longer exist are skipped.
	// Returns the number of chunks updated.
	SetChunkEmbeddings(ctx context.Context, chunks ...*core.TranscriptChunk) (int, error)
}

// MetadataRepository reads the per-post ArchiveMetadata record.
type MetadataRepository interface {
	Repository

	// GetMetadata returns the metadata of a post.
	// Returns ErrNotFound if the post has never completed a run.
	GetMetadata(ctx context.Context, postID core.ID) (*core.ArchiveMetadata, error)
}

// RunResult is everything a successful pipeline run persists.
type RunResult struct {
	PostID   core.ID
	RunID    string
	Chunks   []*core.TranscriptChunk
	Metadata *core.ArchiveMetadata
	Files    []*core.ArchiveFile
}

// RunRepository commits pipeline runs.
type RunRepository interface {
	Repository

	// CommitRun atomically replaces the post's chunks and metadata, upserts
	// the run's file ledger rows and moves the post to ready.
	// Returns ErrNotFound if the post was deleted and ErrStatusConflict if it
	// is no longer processing under RunID.
	CommitRun(ctx context.Context, result *RunResult) (*core.Post, error)
}

// AuditFilter narrows ListAudit. Zero fields match everything.
type AuditFilter struct {
	UserID core.UserID
	PostID core.ID
	Action core.AuditAction
}

// AuditRepository manages the append-only audit log.
type AuditRepository interface {
	Repository

	// AppendAudit stores a new entry, assigning Id and CreatedAt.
	AppendAudit(ctx context.Context, entry *core.AuditEntry) (*core.AuditEntry, error)

	// ListAudit returns matching entries newest first, plus the total count.
	ListAudit(ctx context.Context, filter AuditFilter, offset, limit int) ([]*core.AuditEntry, int, error)
}

// Checkpoint records how far a resumable background job has progressed.
type Checkpoint struct {
	ProcessorType   string
	LastProcessedID core.ID
	UpdatedAt       time.Time
}

// CheckpointRepository persists job checkpoints.
type CheckpointRepository interface {
	// SaveCheckpoint stores the checkpoint for its processor type.
	SaveCheckpoint(ctx context.Context, checkpoint *Checkpoint) error

	// LoadCheckpoint returns the checkpoint, or nil if none was saved.
	LoadCheckpoint(ctx context.Context, processorType string) (*Checkpoint, error)
}

// Store is the complete archive store used by the application.
type Store interface {
	PostRepository
	FileRepository
	ChunkRepository
	MetadataRepository
	RunRepository
	AuditRepository
	CheckpointRepository
}
