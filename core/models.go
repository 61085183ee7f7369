package core

import (
	"encoding/binary"
	"math"
	"strconv"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated using content-based hashing or database sequences.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// UserID is the stable numeric identifier supplied by the auth service.
// Zero means "no user".
type UserID int64

// Visibility controls who may read a post's transcript.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// Status is the processing state of a Post.
type Status string

const (
	StatusUploaded   Status = "uploaded"
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
)

// CanTransition reports whether a post may move from s to next.
// The only backward edge is failed -> processing (explicit reprocess).
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusUploaded:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusReady || next == StatusFailed
	case StatusFailed:
		return next == StatusProcessing
	}
	return false
}

// FileRole identifies a physical artifact attached to a post.
// The set is closed; there is exactly one file per (post, role).
type FileRole string

const (
	RoleOriginalAudio   FileRole = "original_audio"
	RoleNormalizedAudio FileRole = "normalized_audio"
	RoleTranscriptJSON  FileRole = "transcript_json"
	RoleTranscriptText  FileRole = "transcript_txt"
	RoleMetadata        FileRole = "metadata"
	RoleRights          FileRole = "rights"
	RoleManifest        FileRole = "manifest"
	RoleBundle          FileRole = "bundle"
)

// FileRoles returns every valid role in ledger order.
func FileRoles() []FileRole {
	return []FileRole{
		RoleOriginalAudio,
		RoleNormalizedAudio,
		RoleTranscriptJSON,
		RoleTranscriptText,
		RoleMetadata,
		RoleRights,
		RoleManifest,
		RoleBundle,
	}
}

// IntegritySensitive reports whether reads of this role must be checked
// against the recorded digest.
func (r FileRole) IntegritySensitive() bool {
	return r == RoleOriginalAudio || r == RoleBundle
}

// Post is a unit of archived media owned by a single user.
type Post struct {
	Id            ID
	UserID        UserID
	Title         string
	Description   string
	Visibility    Visibility
	Status        Status
	Language      string // ISO 639-1 hint passed to the transcriber, may be empty
	SourceName    string // file name as uploaded, informational
	StoragePrefix string // blob key prefix, "{post_id}/"
	ManifestHash  string
	BundleHash    string
	FailureReason string // generic, safe to show to the owner
	LastRunID     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ReadableBy reports whether user may read the post's transcript.
func (p *Post) ReadableBy(user UserID) bool {
	return p.UserID == user || p.Visibility == VisibilityPublic
}

// ArchiveFile is one physical artifact tied to a Post.
type ArchiveFile struct {
	PostID      ID
	Role        FileRole
	Path        string
	ContentType string
	Size        int64
	Digest      string // hex-encoded SHA-256
	CreatedAt   time.Time
}

// Segment is one timestamped span returned by the transcriber.
type Segment struct {
	StartSec   float64
	EndSec     float64
	Text       string
	Confidence *float64 // nil when the engine reports nothing usable
}

// TranscriptChunk is a time-aligned, retrieval-sized fragment of a transcript.
// Text and timestamps never change after creation; only a missing
// embedding may be attached later.
type TranscriptChunk struct {
	Id         ID
	PostID     ID
	Index      int
	StartSec   float64
	EndSec     float64
	Text       string
	Confidence *float64
	Embedding  Embedding
	CreatedAt  time.Time
}

// ChunkID derives a stable chunk ID from its position within a post run.
func ChunkID(postID ID, runID string, index int) ID {
	return IDFromContent(runID + ":" + strconv.FormatUint(uint64(postID), 10) + ":" + strconv.Itoa(index))
}

// Embedding is an explicit optional vector. The zero value is "absent".
type Embedding struct {
	present bool
	vector  []float32
	model   string
}

// NewEmbedding returns a present embedding. An empty vector yields an
// absent embedding.
func NewEmbedding(vector []float32, model string) Embedding {
	if len(vector) == 0 {
		return Embedding{}
	}
	return Embedding{present: true, vector: vector, model: model}
}

// Present reports whether a vector is attached.
func (e Embedding) Present() bool { return e.present }

// Vector returns the attached vector, or nil.
func (e Embedding) Vector() []float32 { return e.vector }

// Model returns the model that produced the vector.
func (e Embedding) Model() string { return e.model }

// Dimensions returns the vector length, 0 when absent.
func (e Embedding) Dimensions() int { return len(e.vector) }

// AuditAction names a significant user-visible action.
type AuditAction string

const (
	AuditUpload    AuditAction = "upload"
	AuditEdit      AuditAction = "edit"
	AuditDelete    AuditAction = "delete"
	AuditSearch    AuditAction = "search"
	AuditReprocess AuditAction = "reprocess"
	AuditVerify    AuditAction = "verify"
)

// AuditEntry is an append-only record of an action.
// Zero UserID or PostID means the reference is null.
type AuditEntry struct {
	Id        ID
	Action    AuditAction
	UserID    UserID
	PostID    ID
	Detail    string
	CreatedAt time.Time
}

// ScopedChunk is a chunk together with the owning post fields needed for
// ranking and display.
type ScopedChunk struct {
	Chunk         *TranscriptChunk
	PostTitle     string
	PostCreatedAt time.Time
}

// SearchResult is one ranked retrieval hit.
type SearchResult struct {
	Chunk     *TranscriptChunk
	PostID    ID
	PostTitle string
	Score     float32
}

// Pagination describes a page of a larger ranked or ordered list.
type Pagination struct {
	CurrentPage  int  `json:"current_page"`
	TotalPages   int  `json:"total_pages"`
	TotalItems   int  `json:"total_items"`
	ItemsPerPage int  `json:"items_per_page"`
	HasMore      bool `json:"has_more"`
}

// NewPagination computes page bookkeeping for total items split into
// pages of limit.
func NewPagination(total, page, limit int) Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{
		CurrentPage:  page,
		TotalPages:   pages,
		TotalItems:   total,
		ItemsPerPage: limit,
		HasMore:      page < pages,
	}
}

// PageBounds returns the [start, end) slice bounds of page within total
// items. Out-of-range pages yield an empty range.
func PageBounds(total, page, limit int) (int, int) {
	if page < 1 || limit < 1 {
		return 0, 0
	}
	if page-1 >= (total+limit-1)/limit {
		return total, total
	}
	start := (page - 1) * limit
	end := start + limit
	if end > total {
		end = total
	}
	return start, end
}

// PageOffset returns the number of items preceding page. Pages too far out
// to address saturate so that offset+limit still fits in an int.
func PageOffset(page, limit int) int {
	if page < 1 || limit < 1 {
		return 0
	}
	if page-1 > (math.MaxInt-limit)/limit {
		return math.MaxInt - limit
	}
	return (page - 1) * limit
}
