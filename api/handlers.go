package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/poiesic/voicevault"
	"github.com/poiesic/voicevault/core"
	"github.com/poiesic/voicevault/media"
	"github.com/poiesic/voicevault/search"
)

// maxFieldBytes bounds each non-file multipart field.
const maxFieldBytes = 64 << 10

// Archive is the application surface the handlers call.
type Archive interface {
	SubmitUpload(ctx context.Context, up media.Upload) (*core.Post, error)
	GetPost(ctx context.Context, requester core.UserID, postID core.ID) (*core.Post, error)
	ListPosts(ctx context.Context, userID core.UserID, page, limit int) ([]*core.Post, core.Pagination, error)
	UpdatePost(ctx context.Context, requester core.UserID, postID core.ID, update voicevault.PostUpdate) (*core.Post, error)
	DeletePost(ctx context.Context, requester core.UserID, postID core.ID) error
	GetChunks(ctx context.Context, requester core.UserID, postID core.ID, limit int) ([]*core.TranscriptChunk, error)
	GetMetadata(ctx context.Context, requester core.UserID, postID core.ID) (*core.ArchiveMetadata, error)
	Reprocess(ctx context.Context, requester core.UserID, postID core.ID) (*core.Post, error)
	VerifyFile(ctx context.Context, requester core.UserID, postID core.ID, role core.FileRole) (*core.ArchiveFile, error)
	Search(ctx context.Context, query search.Query) (*search.Results, error)
	SearchHistory(ctx context.Context, userID core.UserID, page, limit int) ([]*core.AuditEntry, core.Pagination, error)
}

var _ Archive = (*voicevault.Archive)(nil)

// Handler implements the /v1 endpoints.
type Handler struct {
	archive        Archive
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewHandler creates a Handler. Request bodies of uploads are capped at
// maxUploadBytes plus room for the form fields.
func NewHandler(archive Archive, maxUploadBytes int64, logger *slog.Logger) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = media.DefaultMaxBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		archive:        archive,
		maxUploadBytes: maxUploadBytes,
		logger:         logger.With("component", "api"),
	}
}

// PostResponse is the JSON form of a post.
type PostResponse struct {
	ID            string    `json:"id"`
	UserID        int64     `json:"user_id"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	Visibility    string    `json:"visibility"`
	Status        string    `json:"status"`
	Language      string    `json:"language,omitempty"`
	SourceName    string    `json:"source_name,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ChunkResponse is the JSON form of a transcript chunk.
type ChunkResponse struct {
	ID           string   `json:"id"`
	PostID       string   `json:"post_id"`
	Index        int      `json:"index"`
	StartSec     float64  `json:"start_sec"`
	EndSec       float64  `json:"end_sec"`
	Text         string   `json:"text"`
	Confidence   *float64 `json:"confidence"`
	HasEmbedding bool     `json:"has_embedding"`
}

// SearchHitResponse is one ranked search hit.
type SearchHitResponse struct {
	ChunkResponse
	PostTitle string  `json:"post_title"`
	Score     float32 `json:"score"`
}

// FileResponse is the JSON form of a file ledger row.
type FileResponse struct {
	PostID      string    `json:"post_id"`
	Role        string    `json:"role"`
	Path        string    `json:"path"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Digest      string    `json:"digest"`
	CreatedAt   time.Time `json:"created_at"`
}

// HistoryEntryResponse is one recorded search.
type HistoryEntryResponse struct {
	ID        string    `json:"id"`
	Query     string    `json:"query"`
	CreatedAt time.Time `json:"created_at"`
}

type listPostsResponse struct {
	Posts      []PostResponse  `json:"posts"`
	Pagination core.Pagination `json:"pagination"`
}

type chunksResponse struct {
	Chunks []ChunkResponse `json:"chunks"`
}

type searchResponse struct {
	Query      string              `json:"query"`
	Mode       string              `json:"mode"`
	Results    []SearchHitResponse `json:"results"`
	Pagination core.Pagination     `json:"pagination"`
}

type historyResponse struct {
	Searches   []HistoryEntryResponse `json:"searches"`
	Pagination core.Pagination        `json:"pagination"`
}

type verifyResponse struct {
	Verified bool         `json:"verified"`
	File     FileResponse `json:"file"`
}

// updatePostRequest is the PATCH body. Absent fields are left unchanged.
type updatePostRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Visibility  *string `json:"visibility"`
	Language    *string `json:"language"`
}

func formatID(id core.ID) string {
	return strconv.FormatUint(uint64(id), 10)
}

func toPostResponse(p *core.Post) PostResponse {
	return PostResponse{
		ID:            formatID(p.Id),
		UserID:        int64(p.UserID),
		Title:         p.Title,
		Description:   p.Description,
		Visibility:    string(p.Visibility),
		Status:        string(p.Status),
		Language:      p.Language,
		SourceName:    p.SourceName,
		FailureReason: p.FailureReason,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func toChunkResponse(c *core.TranscriptChunk) ChunkResponse {
	return ChunkResponse{
		ID:           formatID(c.Id),
		PostID:       formatID(c.PostID),
		Index:        c.Index,
		StartSec:     c.StartSec,
		EndSec:       c.EndSec,
		Text:         c.Text,
		Confidence:   c.Confidence,
		HasEmbedding: c.Embedding.Present(),
	}
}

func toFileResponse(f *core.ArchiveFile) FileResponse {
	return FileResponse{
		PostID:      formatID(f.PostID),
		Role:        string(f.Role),
		Path:        f.Path,
		ContentType: f.ContentType,
		Size:        f.Size,
		Digest:      f.Digest,
		CreatedAt:   f.CreatedAt,
	}
}

// CreatePost handles POST /v1/posts. The body is multipart/form-data with
// the text fields first and the recording in a part named "file"; the
// recording is streamed to the archive without buffering.
func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+maxFieldBytes*8)
	reader, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "expected multipart/form-data body")
		return
	}

	up := media.Upload{UserID: userID}
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid_request", "missing file part")
			return
		}
		if err != nil {
			h.writeArchiveError(w, r, fmt.Errorf("%w: read multipart: %w", core.ErrInvalidPost, err))
			return
		}

		if part.FormName() == "file" {
			up.FileName = part.FileName()
			up.ContentType = part.Header.Get("Content-Type")
			up.Body = part
			break
		}

		value, err := readField(part)
		part.Close()
		if err != nil {
			h.writeArchiveError(w, r, err)
			return
		}
		switch part.FormName() {
		case "title":
			up.Title = value
		case "description":
			up.Description = value
		case "visibility":
			up.Visibility = core.Visibility(value)
		case "language":
			up.Language = value
		}
	}

	post, err := h.archive.SubmitUpload(r.Context(), up)
	if err != nil {
		h.writeArchiveError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toPostResponse(post))
}

func readField(part *multipart.Part) (string, error) {
	data, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
	if err != nil {
		return "", fmt.Errorf("%w: read field %s: %w", core.ErrInvalidPost, part.FormName(), err)
	}
	if len(data) > maxFieldBytes {
		return "", fmt.Errorf("%w: field %s is too long", core.ErrInvalidPost, part.FormName())
	}
	return strings.TrimSpace(string(data)), nil
}

// ListPosts handles GET /v1/posts.
func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserFromContext(r.Context())
	page, limit := pageParams(r)

	posts, pagination, err := h.archive.ListPosts(r.Context(), userID, page, limit)
	if err != nil {
		h.writeArchiveError(w, r, err)
		return
	}
	resp := listPostsResponse{Posts: make([]PostResponse, 0, len(posts)), Pagination: pagination}
	for _, p := range posts {
		resp.Posts = append(resp.Posts, toPostResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetPost handles GET /v1/posts/{id}.
func (h *Handler) GetPost(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserFromContext(r.Context())
	postID, ok := h.postID(w, r)
	if !ok {
		return
	}
	post, err := h.archive.GetPost(r.Context(), userID, postID)
	if err != nil {
		h.writeArchiveError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPostResponse(post))
}

// UpdatePost handles PATCH /v1/posts/{id}.
func (h *Handler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserFromContext(r.Context())
	postID, ok := h.postID(w, r)
	if !ok {
		return
	}

	var req updatePostRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxFieldBytes*4)
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	update := voicevault.PostUpdate{
		Title:       req.Title,
		Description: req.Description,
		Language:    req.Language,
	}
	if req.Visibility != nil {
		v := core.Visibility(*req.Visibility)
		update.Visibility = &v
	}

	post, err := h.archive.UpdatePost(r.Context(), userID, postID, update)
	if err != nil {
		h.writeArchiveError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPostResponse(post))
}

// DeletePost handles DELETE /v1/posts/{id}.
func (h *Handler) DeletePost(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserFromContext(r.Context())
	postID, ok := h.postID(w, r)
	if !ok {
		return
	}
	if err := h.archive.DeletePost(r.Context(), userID, postID); err != nil {
		h.writeArchiveError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetChunks handles GET /v1/posts/{id}/chunks.
func (h *Handler) GetChunks(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserFromContext(r.Context())
	postID, ok := h.postID(w, r)
	if !ok {
		return
	}
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	chunks, err := h.archive.GetChunks(r.Context(), userID, postID, limit)
	if err != nil {
		h.writeArchiveError(w, r, err)
		return
	}
	resp := chunksResponse{Chunks: make([]ChunkResponse, 0, len(chunks))}
	for _, c := range chunks {
		resp.Chunks = append(resp.Chunks, toChunkResponse(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetMetadata handles GET /v1/posts/{id}/metadata.
func (h *Handler) GetMetadata(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserFromContext(r.Context())
	postID, ok := h.postID(w, r)
	if !ok {
		return
	}
	meta, err := h.archive.GetMetadata(r.Context(), userID, postID)
	if err != nil {
		h.writeArchiveError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// Reprocess handles POST /v1/posts/{id}/reprocess.
func (h *Handler) Reprocess(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserFromContext(r.Context())
	postID, ok := h.postID(w, r)
	if !ok {
		return
	}
	post, err := h.archive.Reprocess(r.Context(), userID, postID)
	if err != nil {
		h.writeArchiveError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toPostResponse(post))
}

// VerifyFile handles GET /v1/posts/{id}/files/{role}/verify. A digest
// mismatch is a successful check with verified set to false.
func (h *Handler) VerifyFile(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserFromContext(r.Context())
	postID, ok := h.postID(w, r)
	if !ok {
		return
	}
	role := core.FileRole(chi.URLParam(r, "role"))

	file, err := h.archive.VerifyFile(r.Context(), userID, postID, role)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, verifyResponse{Verified: true, File: toFileResponse(file)})
	case errors.Is(err, core.ErrIntegrityMismatch) && file != nil:
		h.logger.Warn("integrity mismatch", "post_id", postID, "role", role, "err", err)
		writeJSON(w, http.StatusOK, verifyResponse{Verified: false, File: toFileResponse(file)})
	default:
		h.writeArchiveError(w, r, err)
	}
}

// Search handles GET /v1/search?q=...&page=...&limit=....
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserFromContext(r.Context())
	page, limit := pageParams(r)
	text := r.URL.Query().Get("q")

	results, err := h.archive.Search(r.Context(), search.Query{
		UserID: userID,
		Text:   text,
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		h.writeArchiveError(w, r, err)
		return
	}

	resp := searchResponse{
		Query:      text,
		Mode:       string(results.Mode),
		Results:    make([]SearchHitResponse, 0, len(results.Items)),
		Pagination: results.Pagination,
	}
	for _, item := range results.Items {
		resp.Results = append(resp.Results, SearchHitResponse{
			ChunkResponse: toChunkResponse(item.Chunk),
			PostTitle:     item.PostTitle,
			Score:         item.Score,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// SearchHistory handles GET /v1/history/searches.
func (h *Handler) SearchHistory(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserFromContext(r.Context())
	page, limit := pageParams(r)

	entries, pagination, err := h.archive.SearchHistory(r.Context(), userID, page, limit)
	if err != nil {
		h.writeArchiveError(w, r, err)
		return
	}
	resp := historyResponse{Searches: make([]HistoryEntryResponse, 0, len(entries)), Pagination: pagination}
	for _, e := range entries {
		resp.Searches = append(resp.Searches, HistoryEntryResponse{
			ID:        formatID(e.Id),
			Query:     e.Detail,
			CreatedAt: e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) postID(w http.ResponseWriter, r *http.Request) (core.ID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("invalid post id %q", raw))
		return 0, false
	}
	return core.ID(id), true
}

// pageParams reads page and limit. Malformed values fall back to the
// defaults; the archive clamps the rest.
func pageParams(r *http.Request) (int, int) {
	page, err := intParam(r, "page", 1)
	if err != nil {
		page = 1
	}
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		limit = 0
	}
	return page, limit
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return n, nil
}
