package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/poiesic/voicevault/blob"
	"github.com/poiesic/voicevault/core"
	"github.com/poiesic/voicevault/storage"
)

type transcriptSegment struct {
	Start      float64  `json:"start"`
	End        float64  `json:"end"`
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence"`
}

type transcriptChunk struct {
	Index int     `json:"index"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// transcriptDocument is the transcript_json artifact.
type transcriptDocument struct {
	PostID      core.ID             `json:"post_id"`
	RunID       string              `json:"run_id"`
	Language    string              `json:"language"`
	DurationSec float64             `json:"duration_sec"`
	Segments    []transcriptSegment `json:"segments"`
	Chunks      []transcriptChunk   `json:"chunks"`
}

func buildTranscriptJSON(r *run) ([]byte, error) {
	doc := transcriptDocument{
		PostID:      r.post.Id,
		RunID:       r.id,
		Language:    r.post.Language,
		DurationSec: r.duration(),
		Segments:    make([]transcriptSegment, len(r.segments)),
		Chunks:      make([]transcriptChunk, len(r.chunks)),
	}
	for i, s := range r.segments {
		doc.Segments[i] = transcriptSegment{Start: s.StartSec, End: s.EndSec, Text: s.Text, Confidence: s.Confidence}
	}
	for i, c := range r.chunks {
		doc.Chunks[i] = transcriptChunk{Index: c.Index, Start: c.StartSec, End: c.EndSec, Text: c.Text}
	}
	return json.MarshalIndent(doc, "", "  ")
}

// buildTranscriptText renders one "[mm:ss - mm:ss] text" line per segment.
func buildTranscriptText(r *run) []byte {
	var b strings.Builder
	for _, s := range r.segments {
		fmt.Fprintf(&b, "[%s - %s] %s\n", formatTimestamp(s.StartSec), formatTimestamp(s.EndSec), s.Text)
	}
	return []byte(b.String())
}

func formatTimestamp(sec float64) string {
	total := int(sec)
	if h := total / 3600; h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, total%3600/60, total%60)
	}
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

func (p *Pipeline) buildMetadata(r *run) *core.ArchiveMetadata {
	return &core.ArchiveMetadata{
		SchemaVersion:    core.MetadataSchemaVersion,
		PostID:           r.post.Id,
		RunID:            r.id,
		SourceFileName:   r.post.SourceName,
		Language:         r.post.Language,
		TranscriptLength: utf8.RuneCountInString(r.transcript()),
		SegmentCount:     len(r.segments),
		ChunkCount:       len(r.chunks),
		DurationSec:      r.duration(),
		EmbeddingModel:   r.model,
		EmbeddedChunks:   r.embedded,
		Topics:           r.topics,
		PromptTemplate:   p.promptTemplate,
		GeneratedAt:      time.Now().UTC(),
	}
}

// writeArtifact stores data under the post's key for role.
func (p *Pipeline) writeArtifact(ctx context.Context, r *run, role core.FileRole, data []byte, contentType string) (*core.ArchiveFile, error) {
	key := blob.Key(r.post.StoragePrefix, role)
	r.written = append(r.written, key)
	obj, err := p.blobs.Put(ctx, key, bytes.NewReader(data), contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: store %s: %w", core.ErrStorageWrite, key, err)
	}
	return &core.ArchiveFile{
		PostID:      r.post.Id,
		Role:        role,
		Path:        key,
		ContentType: contentType,
		Size:        obj.Size,
		Digest:      obj.Digest,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// commit writes the run's derived artifacts and atomically replaces the
// post's chunks and metadata. The post is re-read first so a run whose
// post was deleted or claimed by another run writes nothing.
func (p *Pipeline) commit(ctx context.Context, r *run) (*core.Post, error) {
	current, err := p.store.GetPost(ctx, r.post.Id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: post %d was deleted", ErrRunDiscarded, r.post.Id)
	}
	if err != nil {
		return nil, err
	}
	if current.Status != core.StatusProcessing || current.LastRunID != r.id {
		return nil, fmt.Errorf("%w: post %d now %s under run %q", ErrRunDiscarded, r.post.Id, current.Status, current.LastRunID)
	}

	metadata := p.buildMetadata(r)
	metadataJSON, err := core.MarshalMetadata(metadata)
	if err != nil {
		return nil, err
	}
	transcriptJSON, err := buildTranscriptJSON(r)
	if err != nil {
		return nil, fmt.Errorf("encode transcript: %w", err)
	}

	artifacts := []struct {
		role        core.FileRole
		data        []byte
		contentType string
	}{
		{core.RoleTranscriptJSON, transcriptJSON, "application/json"},
		{core.RoleTranscriptText, buildTranscriptText(r), "text/plain; charset=utf-8"},
		{core.RoleMetadata, metadataJSON, "application/json"},
	}
	files := make([]*core.ArchiveFile, 0, len(artifacts))
	for _, a := range artifacts {
		file, err := p.writeArtifact(ctx, r, a.role, a.data, a.contentType)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}

	post, err := p.store.CommitRun(ctx, &storage.RunResult{
		PostID:   r.post.Id,
		RunID:    r.id,
		Chunks:   r.chunks,
		Metadata: metadata,
		Files:    files,
	})
	switch {
	case err == nil:
		return post, nil
	case errors.Is(err, storage.ErrNotFound):
		p.removeBlobs(context.WithoutCancel(ctx), r)
		return nil, fmt.Errorf("%w: post %d was deleted", ErrRunDiscarded, r.post.Id)
	case errors.Is(err, storage.ErrStatusConflict):
		// the keys now belong to the run that superseded this one
		r.written = nil
		return nil, fmt.Errorf("%w: %w", ErrRunDiscarded, err)
	default:
		return nil, fmt.Errorf("%w: commit run: %w", core.ErrStorageWrite, err)
	}
}
