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

package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/poiesic/voicevault/core"
)

// Records are stored as JSON documents. Embedding vectors are kept out of
// the documents and stored separately with core.EncodeVector.

// MarshalID serializes an ID to 8 big-endian bytes.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(id))
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	if len(data) < 8 {
		return 0, fmt.Errorf("%w: id needs 8 bytes, got %d", ErrTruncatedData, len(data))
	}
	return core.ID(binary.BigEndian.Uint64(data)), nil
}

type postRecord struct {
	Id            core.ID         `json:"id"`
	UserID        core.UserID     `json:"user_id"`
	Title         string          `json:"title"`
	Description   string          `json:"description,omitempty"`
	Visibility    core.Visibility `json:"visibility"`
	Status        core.Status     `json:"status"`
	Language      string          `json:"language,omitempty"`
	SourceName    string          `json:"source_name,omitempty"`
	StoragePrefix string          `json:"storage_prefix"`
	ManifestHash  string          `json:"manifest_hash,omitempty"`
	BundleHash    string          `json:"bundle_hash,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`
	LastRunID     string          `json:"last_run_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// MarshalPost serializes a Post to bytes.
func MarshalPost(p *core.Post) ([]byte, error) {
	return marshal(postRecord(*p))
}

// UnmarshalPost deserializes a Post from bytes.
func UnmarshalPost(data []byte) (*core.Post, error) {
	var r postRecord
	if err := unmarshal(data, &r); err != nil {
		return nil, err
	}
	p := core.Post(r)
	return &p, nil
}

type fileRecord struct {
	PostID      core.ID       `json:"post_id"`
	Role        core.FileRole `json:"role"`
	Path        string        `json:"path"`
	ContentType string        `json:"content_type"`
	Size        int64         `json:"size"`
	Digest      string        `json:"digest"`
	CreatedAt   time.Time     `json:"created_at"`
}

// MarshalArchiveFile serializes an ArchiveFile to bytes.
func MarshalArchiveFile(f *core.ArchiveFile) ([]byte, error) {
	return marshal(fileRecord(*f))
}

// UnmarshalArchiveFile deserializes an ArchiveFile from bytes.
func UnmarshalArchiveFile(data []byte) (*core.ArchiveFile, error) {
	var r fileRecord
	if err := unmarshal(data, &r); err != nil {
		return nil, err
	}
	f := core.ArchiveFile(r)
	return &f, nil
}

type chunkRecord struct {
	Id             core.ID   `json:"id"`
	PostID         core.ID   `json:"post_id"`
	Index          int       `json:"index"`
	StartSec       float64   `json:"start_sec"`
	EndSec         float64   `json:"end_sec"`
	Text           string    `json:"text"`
	Confidence     *float64  `json:"confidence"`
	Embedded       bool      `json:"embedded"`
	EmbeddingModel string    `json:"embedding_model,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// MarshalChunk serializes a TranscriptChunk without its vector.
func MarshalChunk(c *core.TranscriptChunk) ([]byte, error) {
	return marshal(chunkRecord{
		Id:             c.Id,
		PostID:         c.PostID,
		Index:          c.Index,
		StartSec:       c.StartSec,
		EndSec:         c.EndSec,
		Text:           c.Text,
		Confidence:     c.Confidence,
		Embedded:       c.Embedding.Present(),
		EmbeddingModel: c.Embedding.Model(),
		CreatedAt:      c.CreatedAt,
	})
}

// UnmarshalChunk deserializes a TranscriptChunk. loadVector is called with
// the decoded chunk only when the record says an embedding is stored.
func UnmarshalChunk(data []byte, loadVector func(c *core.TranscriptChunk) ([]float32, error)) (*core.TranscriptChunk, error) {
	var r chunkRecord
	if err := unmarshal(data, &r); err != nil {
		return nil, err
	}
	c := &core.TranscriptChunk{
		Id:         r.Id,
		PostID:     r.PostID,
		Index:      r.Index,
		StartSec:   r.StartSec,
		EndSec:     r.EndSec,
		Text:       r.Text,
		Confidence: r.Confidence,
		CreatedAt:  r.CreatedAt,
	}
	if r.Embedded && loadVector != nil {
		vector, err := loadVector(c)
		if err != nil {
			return nil, err
		}
		c.Embedding = core.NewEmbedding(vector, r.EmbeddingModel)
	}
	return c, nil
}

type auditRecord struct {
	Id        core.ID          `json:"id"`
	Action    core.AuditAction `json:"action"`
	UserID    core.UserID      `json:"user_id,omitempty"`
	PostID    core.ID          `json:"post_id,omitempty"`
	Detail    string           `json:"detail,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// MarshalAuditEntry serializes an AuditEntry to bytes.
func MarshalAuditEntry(e *core.AuditEntry) ([]byte, error) {
	return marshal(auditRecord(*e))
}

// UnmarshalAuditEntry deserializes an AuditEntry from bytes.
func UnmarshalAuditEntry(data []byte) (*core.AuditEntry, error) {
	var r auditRecord
	if err := unmarshal(data, &r); err != nil {
		return nil, err
	}
	e := core.AuditEntry(r)
	return &e, nil
}

type checkpointRecord struct {
	ProcessorType   string    `json:"processor_type"`
	LastProcessedID core.ID   `json:"last_processed_id"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// MarshalCheckpoint serializes a Checkpoint to bytes.
func MarshalCheckpoint(c *Checkpoint) ([]byte, error) {
	return marshal(checkpointRecord(*c))
}

// UnmarshalCheckpoint deserializes a Checkpoint from bytes.
func UnmarshalCheckpoint(data []byte) (*Checkpoint, error) {
	var r checkpointRecord
	if err := unmarshal(data, &r); err != nil {
		return nil, err
	}
	c := Checkpoint(r)
	return &c, nil
}

func marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return data, nil
}

func unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty record", ErrTruncatedData)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return nil
}
