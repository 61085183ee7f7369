// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package voicevault archives recorded audio and video, turns it into
// timestamped transcript chunks and serves them back through search.
//
// Archive is the entry point used by the HTTP API and the command line. It
// binds the upload ingestor, the pipeline dispatcher and the search engine
// to one archive store and one blob store, and enforces who may see what.
package voicevault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/voicevault/ai"
	"github.com/poiesic/voicevault/blob"
	"github.com/poiesic/voicevault/core"
	"github.com/poiesic/voicevault/ingestion"
	"github.com/poiesic/voicevault/media"
	"github.com/poiesic/voicevault/search"
	"github.com/poiesic/voicevault/storage"
)

// Dispatcher starts a pipeline run for an uploaded or failed post.
// *queue.Dispatcher and the dispatcher returned by LocalDispatcher
// implement it.
type Dispatcher interface {
	Dispatch(ctx context.Context, postID core.ID) error
}

// LocalDispatcher runs posts on the in-process pipeline worker pool.
func LocalDispatcher(p *ingestion.Pipeline) Dispatcher {
	return &localDispatcher{pipeline: p}
}

type localDispatcher struct {
	pipeline *ingestion.Pipeline
}

func (d *localDispatcher) Dispatch(ctx context.Context, postID core.ID) error {
	err := d.pipeline.Submit(ctx, postID)
	if errors.Is(err, storage.ErrStatusConflict) {
		return d.pipeline.Reprocess(ctx, postID)
	}
	return err
}

// dispatchFailureReason is shown on posts whose run could not be scheduled.
const dispatchFailureReason = "processing could not be scheduled"

// Archive is the application facade over storage, ingestion and search.
type Archive struct {
	store      storage.Store
	blobs      blob.Store
	ingestor   *media.Ingestor
	searcher   *search.Engine
	dispatcher Dispatcher
	logger     *slog.Logger
}

// Option configures an Archive.
type Option func(*archiveOptions)

type archiveOptions struct {
	logger        *slog.Logger
	embedder      ai.Embedder
	maxBytes      int64
	wholeLimit    int64
	searchOptions []search.Option
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *archiveOptions) {
		o.logger = logger
	}
}

// WithEmbedder enables vector search with embedder.
func WithEmbedder(embedder ai.Embedder) Option {
	return func(o *archiveOptions) {
		o.embedder = embedder
	}
}

// WithMaxUploadBytes caps the size of an uploaded file.
// Default is media.DefaultMaxBytes.
func WithMaxUploadBytes(n int64) Option {
	return func(o *archiveOptions) {
		o.maxBytes = n
	}
}

// WithWholeFileLimit caps uploads in formats that must reach the
// transcriber in a single request. Pass the transcription window size.
func WithWholeFileLimit(n int64) Option {
	return func(o *archiveOptions) {
		o.wholeLimit = n
	}
}

// WithSearchOptions passes extra options to the search engine.
func WithSearchOptions(opts ...search.Option) Option {
	return func(o *archiveOptions) {
		o.searchOptions = append(o.searchOptions, opts...)
	}
}

// New creates an Archive over store and blobs. Uploads and reprocess
// requests are handed to dispatcher.
func New(store storage.Store, blobs blob.Store, dispatcher Dispatcher, opts ...Option) (*Archive, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if blobs == nil {
		return nil, ErrBlobStoreRequired
	}
	if dispatcher == nil {
		return nil, ErrDispatcherRequired
	}

	options := &archiveOptions{
		logger:   slog.Default(),
		maxBytes: media.DefaultMaxBytes,
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	ingestor, err := media.NewIngestor(store, blobs,
		media.WithLogger(options.logger),
		media.WithMaxBytes(options.maxBytes),
		media.WithWholeFileLimit(options.wholeLimit))
	if err != nil {
		return nil, err
	}

	searchOpts := []search.Option{search.WithLogger(options.logger)}
	if options.embedder != nil {
		searchOpts = append(searchOpts, search.WithEmbedder(options.embedder))
	}
	searcher, err := search.NewEngine(store, append(searchOpts, options.searchOptions...)...)
	if err != nil {
		return nil, err
	}

	return &Archive{
		store:      store,
		blobs:      blobs,
		ingestor:   ingestor,
		searcher:   searcher,
		dispatcher: dispatcher,
		logger:     options.logger.With("component", "archive"),
	}, nil
}

// SubmitUpload stores an upload as a new post and schedules its pipeline
// run. A post whose run cannot be scheduled is returned as failed so its
// owner can reprocess it.
func (a *Archive) SubmitUpload(ctx context.Context, up media.Upload) (*core.Post, error) {
	result, err := a.ingestor.Ingest(ctx, up)
	if err != nil {
		return nil, err
	}
	post := result.Post

	if err := a.dispatcher.Dispatch(ctx, post.Id); err != nil {
		a.logger.Error("failed to schedule pipeline run", "post_id", post.Id, "err", err)
		failed, terr := a.store.TransitionStatus(context.WithoutCancel(ctx), post.Id, core.StatusUploaded, core.StatusFailed,
			func(p *core.Post) { p.FailureReason = dispatchFailureReason })
		if terr != nil {
			// a worker may have claimed the post after all
			a.logger.Warn("could not mark unscheduled post failed", "post_id", post.Id, "err", terr)
			return a.store.GetPost(ctx, post.Id)
		}
		return failed, nil
	}

	// A local run may already have moved the post on.
	if current, err := a.store.GetPost(ctx, post.Id); err == nil {
		return current, nil
	}
	return post, nil
}

// readablePost returns the post if requester owns it, or if it is public
// and ownerOnly is false. Posts the requester may not see are reported as
// storage.ErrNotFound.
func (a *Archive) readablePost(ctx context.Context, requester core.UserID, postID core.ID, ownerOnly bool) (*core.Post, error) {
	post, err := a.store.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.UserID == requester || (!ownerOnly && post.ReadableBy(requester)) {
		return post, nil
	}
	return nil, fmt.Errorf("%w: post %d", storage.ErrNotFound, postID)
}

// GetPost returns a post its owner or, when public, anyone may read.
func (a *Archive) GetPost(ctx context.Context, requester core.UserID, postID core.ID) (*core.Post, error) {
	return a.readablePost(ctx, requester, postID, false)
}

// ListPosts returns the user's own posts, newest first.
func (a *Archive) ListPosts(ctx context.Context, userID core.UserID, page, limit int) ([]*core.Post, core.Pagination, error) {
	page, limit = clampPage(page, limit)
	posts, total, err := a.store.ListPostsByUser(ctx, userID, core.PageOffset(page, limit), limit)
	if err != nil {
		return nil, core.Pagination{}, err
	}
	if posts == nil {
		posts = []*core.Post{}
	}
	return posts, core.NewPagination(total, page, limit), nil
}

// GetChunks returns up to limit chunks of a post in time order; limit <= 0
// returns all of them. Posts that are not ready have no visible chunks.
func (a *Archive) GetChunks(ctx context.Context, requester core.UserID, postID core.ID, limit int) ([]*core.TranscriptChunk, error) {
	post, err := a.readablePost(ctx, requester, postID, false)
	if err != nil {
		return nil, err
	}
	if post.Status != core.StatusReady {
		return []*core.TranscriptChunk{}, nil
	}
	chunks, err := a.store.GetChunks(ctx, postID, limit)
	if err != nil {
		return nil, err
	}
	if chunks == nil {
		chunks = []*core.TranscriptChunk{}
	}
	return chunks, nil
}

// GetMetadata returns the metadata of the post's latest completed run.
func (a *Archive) GetMetadata(ctx context.Context, requester core.UserID, postID core.ID) (*core.ArchiveMetadata, error) {
	post, err := a.readablePost(ctx, requester, postID, false)
	if err != nil {
		return nil, err
	}
	if post.Status != core.StatusReady {
		return nil, fmt.Errorf("%w: post %d has no completed run", storage.ErrNotFound, postID)
	}
	return a.store.GetMetadata(ctx, postID)
}

// Search ranks the user's own chunks against the query.
func (a *Archive) Search(ctx context.Context, query search.Query) (*search.Results, error) {
	return a.searcher.Search(ctx, query)
}

// SearchHistory returns the user's past searches, newest first.
func (a *Archive) SearchHistory(ctx context.Context, userID core.UserID, page, limit int) ([]*core.AuditEntry, core.Pagination, error) {
	return a.searcher.History(ctx, userID, page, limit)
}

// Reprocess schedules a new run of a failed post. Returns
// storage.ErrStatusConflict if the post is not failed.
func (a *Archive) Reprocess(ctx context.Context, requester core.UserID, postID core.ID) (*core.Post, error) {
	post, err := a.readablePost(ctx, requester, postID, true)
	if err != nil {
		return nil, err
	}
	if post.Status != core.StatusFailed {
		return nil, fmt.Errorf("%w: post %d is %s", storage.ErrStatusConflict, postID, post.Status)
	}
	if err := a.dispatcher.Dispatch(ctx, postID); err != nil {
		return nil, err
	}
	a.audit(ctx, &core.AuditEntry{Action: core.AuditReprocess, UserID: requester, PostID: postID})
	return a.store.GetPost(ctx, postID)
}

// PostUpdate carries the editable fields of a post. Nil fields are left
// unchanged.
type PostUpdate struct {
	Title       *string
	Description *string
	Visibility  *core.Visibility
	Language    *string
}

// UpdatePost edits the owner's post.
func (a *Archive) UpdatePost(ctx context.Context, requester core.UserID, postID core.ID, update PostUpdate) (*core.Post, error) {
	post, err := a.readablePost(ctx, requester, postID, true)
	if err != nil {
		return nil, err
	}

	var changed []string
	if update.Title != nil {
		post.Title = strings.TrimSpace(*update.Title)
		changed = append(changed, "title")
	}
	if update.Description != nil {
		post.Description = *update.Description
		changed = append(changed, "description")
	}
	if update.Visibility != nil {
		post.Visibility = *update.Visibility
		changed = append(changed, "visibility")
	}
	if update.Language != nil {
		post.Language = *update.Language
		changed = append(changed, "language")
	}
	if len(changed) == 0 {
		return post, nil
	}

	var updated *core.Post
	err = a.store.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		updated, err = a.store.UpdatePost(ctx, post)
		if err != nil {
			return err
		}
		_, err = a.store.AppendAudit(ctx, &core.AuditEntry{
			Action: core.AuditEdit,
			UserID: requester,
			PostID: postID,
			Detail: strings.Join(changed, ","),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeletePost removes the owner's post with its chunks, metadata, file
// ledger and blobs. Blob removal happens after the rows are gone; blobs
// that cannot be removed are logged.
func (a *Archive) DeletePost(ctx context.Context, requester core.UserID, postID core.ID) error {
	if _, err := a.readablePost(ctx, requester, postID, true); err != nil {
		return err
	}

	var files []*core.ArchiveFile
	err := a.store.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		files, err = a.store.ListFiles(ctx, postID)
		if err != nil {
			return err
		}
		if err := a.store.DeletePost(ctx, postID); err != nil {
			return err
		}
		_, err = a.store.AppendAudit(ctx, &core.AuditEntry{
			Action: core.AuditDelete,
			UserID: requester,
			Detail: fmt.Sprintf("post %d", postID),
		})
		return err
	})
	if err != nil {
		return err
	}

	ctx = context.WithoutCancel(ctx)
	for _, f := range files {
		if err := a.blobs.Delete(ctx, f.Path); err != nil {
			a.logger.Error("failed to remove blob of deleted post", "post_id", postID, "key", f.Path, "err", err)
		}
	}
	a.logger.Info("post deleted", "post_id", postID, "files", len(files))
	return nil
}

// VerifyFile recomputes the digest of one of the owner's stored files and
// compares it with the ledger. A mismatch or missing blob is reported as
// core.ErrIntegrityMismatch and never repaired.
func (a *Archive) VerifyFile(ctx context.Context, requester core.UserID, postID core.ID, role core.FileRole) (*core.ArchiveFile, error) {
	if _, err := a.readablePost(ctx, requester, postID, true); err != nil {
		return nil, err
	}

	file, err := a.ingestor.Verify(ctx, postID, role)
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, core.ErrIntegrityMismatch):
		outcome = "mismatch"
	default:
		return nil, err
	}
	a.audit(ctx, &core.AuditEntry{
		Action: core.AuditVerify,
		UserID: requester,
		PostID: postID,
		Detail: fmt.Sprintf("%s: %s", role, outcome),
	})
	return file, err
}

// audit appends entry, logging failures.
func (a *Archive) audit(ctx context.Context, entry *core.AuditEntry) {
	if _, err := a.store.AppendAudit(context.WithoutCancel(ctx), entry); err != nil {
		a.logger.Warn("failed to record audit entry", "action", entry.Action, "err", err)
	}
}

// clampPage applies the listing defaults shared with search.
func clampPage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = search.DefaultLimit
	}
	if limit > search.MaxLimit {
		limit = search.MaxLimit
	}
	return page, limit
}
