package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// MetadataSchemaVersion is bumped whenever ArchiveMetadata gains or loses fields.
const MetadataSchemaVersion = 1

// ArchiveMetadata is the per-post record carrying the retrieval
// augmentation context. It is replaced wholesale on every successful run.
type ArchiveMetadata struct {
	SchemaVersion    int       `json:"schema_version"`
	PostID           ID        `json:"post_id"`
	RunID            string    `json:"run_id"`
	SourceFileName   string    `json:"source_file_name"`
	Language         string    `json:"language"`
	TranscriptLength int       `json:"transcript_length"`
	SegmentCount     int       `json:"segment_count"`
	ChunkCount       int       `json:"chunk_count"`
	DurationSec      float64   `json:"duration_sec"`
	EmbeddingModel   string    `json:"embedding_model"`
	EmbeddedChunks   int       `json:"embedded_chunks"`
	Topics           []string  `json:"topics"`
	PromptTemplate   string    `json:"prompt_template"`
	GeneratedAt      time.Time `json:"generated_at"`
}

// Validate checks internal consistency of the record.
func (m *ArchiveMetadata) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: metadata is nil", ErrInvalidMetadata)
	}
	if m.SchemaVersion != MetadataSchemaVersion {
		return fmt.Errorf("%w: unsupported schema version %d", ErrInvalidMetadata, m.SchemaVersion)
	}
	if m.PostID == 0 {
		return fmt.Errorf("%w: post id is required", ErrInvalidMetadata)
	}
	if m.RunID == "" {
		return fmt.Errorf("%w: run id is required", ErrInvalidMetadata)
	}
	if m.TranscriptLength < 0 || m.SegmentCount < 0 || m.ChunkCount < 0 || m.DurationSec < 0 {
		return fmt.Errorf("%w: negative counter", ErrInvalidMetadata)
	}
	if m.EmbeddedChunks < 0 || m.EmbeddedChunks > m.ChunkCount {
		return fmt.Errorf("%w: embedded chunks %d outside [0, %d]", ErrInvalidMetadata, m.EmbeddedChunks, m.ChunkCount)
	}
	if m.PromptTemplate == "" {
		return fmt.Errorf("%w: prompt template is required", ErrInvalidMetadata)
	}
	return nil
}

// MarshalMetadata validates and encodes metadata as JSON.
func MarshalMetadata(m *ArchiveMetadata) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if m.Topics == nil {
		m.Topics = []string{}
	}
	return json.Marshal(m)
}

// UnmarshalMetadata decodes JSON metadata, rejecting unknown fields and
// trailing data, and validates the result.
func UnmarshalMetadata(data []byte) (*ArchiveMetadata, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var m ArchiveMetadata
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMetadata, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data", ErrInvalidMetadata)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// DefaultPromptTemplate frames retrieved chunks for downstream
// question answering. {{title}} and {{chunks}} are substituted by callers.
const DefaultPromptTemplate = `You are answering questions about the recording "{{title}}".
Use only the transcript excerpts below. Cite timestamps as [mm:ss].

{{chunks}}`
