package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validMetadata() *ArchiveMetadata {
	return &ArchiveMetadata{
		SchemaVersion:    MetadataSchemaVersion,
		PostID:           42,
		RunID:            "run-1",
		SourceFileName:   "talk.mp3",
		Language:         "en",
		TranscriptLength: 120,
		SegmentCount:     6,
		ChunkCount:       2,
		DurationSec:      61.5,
		EmbeddingModel:   "nomic-embed-text",
		EmbeddedChunks:   2,
		PromptTemplate:   DefaultPromptTemplate,
		GeneratedAt:      time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	m := validMetadata()
	data, err := MarshalMetadata(m)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"topics":[]`)

	decoded, err := UnmarshalMetadata(data)
	require.NoError(t, err)
	assert.Equal(t, m, decoded)
}

func TestUnmarshalMetadata_Strict(t *testing.T) {
	t.Run("unknown field", func(t *testing.T) {
		data := `{"schema_version":1,"post_id":1,"run_id":"r","prompt_template":"p","extra":true}`
		_, err := UnmarshalMetadata([]byte(data))
		assert.ErrorIs(t, err, ErrInvalidMetadata)
	})

	t.Run("trailing data", func(t *testing.T) {
		data := `{"schema_version":1,"post_id":1,"run_id":"r","prompt_template":"p"} {}`
		_, err := UnmarshalMetadata([]byte(data))
		assert.ErrorIs(t, err, ErrInvalidMetadata)
	})

	t.Run("wrong schema version", func(t *testing.T) {
		data := `{"schema_version":9,"post_id":1,"run_id":"r","prompt_template":"p"}`
		_, err := UnmarshalMetadata([]byte(data))
		assert.ErrorIs(t, err, ErrInvalidMetadata)
	})

	t.Run("not json", func(t *testing.T) {
		_, err := UnmarshalMetadata([]byte("prompt: hi"))
		assert.ErrorIs(t, err, ErrInvalidMetadata)
	})
}

func TestMetadataValidate(t *testing.T) {
	m := validMetadata()
	m.EmbeddedChunks = 3
	assert.ErrorIs(t, m.Validate(), ErrInvalidMetadata)

	m = validMetadata()
	m.PromptTemplate = ""
	assert.ErrorIs(t, m.Validate(), ErrInvalidMetadata)

	m = validMetadata()
	m.RunID = ""
	_, err := MarshalMetadata(m)
	assert.ErrorIs(t, err, ErrInvalidMetadata)
}
