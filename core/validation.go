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

package core

import (
	"fmt"
	"strings"
	"time"
)

// ValidatePost validates a Post according to domain rules.
//
// Validation rules:
//   - UserID must be set
//   - Title must not be blank
//   - Visibility and Status must be known values
//
// NOT validated (assigned by storage):
//   - ID (0 is valid before insert)
//   - StoragePrefix
func ValidatePost(post *Post) error {
	if post == nil {
		return fmt.Errorf("%w: post is nil", ErrInvalidPost)
	}

	if post.UserID == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidPost, ErrInvalidUser)
	}

	if strings.TrimSpace(post.Title) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidPost, ErrEmptyTitle)
	}

	if err := ValidateVisibility(post.Visibility); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPost, err)
	}

	if err := ValidateStatus(post.Status); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPost, err)
	}

	return nil
}

// ValidateVisibility validates that a Visibility has a valid value.
func ValidateVisibility(v Visibility) error {
	if v != VisibilityPrivate && v != VisibilityPublic {
		return fmt.Errorf("%w: value %q", ErrInvalidVisibility, v)
	}
	return nil
}

// ValidateStatus validates that a Status has a valid value.
func ValidateStatus(s Status) error {
	switch s {
	case StatusUploaded, StatusProcessing, StatusReady, StatusFailed:
		return nil
	}
	return fmt.Errorf("%w: value %q", ErrInvalidStatus, s)
}

// ValidateTransition checks a status change against the post lifecycle.
func ValidateTransition(from, to Status) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// ValidateFileRole validates that a FileRole belongs to the closed set.
func ValidateFileRole(role FileRole) error {
	for _, r := range FileRoles() {
		if r == role {
			return nil
		}
	}
	return fmt.Errorf("%w: value %q", ErrInvalidFileRole, role)
}

// ValidateArchiveFile validates a ledger row before it is written.
func ValidateArchiveFile(file *ArchiveFile) error {
	if file == nil {
		return fmt.Errorf("%w: file is nil", ErrInvalidArchiveFile)
	}
	if file.PostID == 0 {
		return fmt.Errorf("%w: post id is required", ErrInvalidArchiveFile)
	}
	if err := ValidateFileRole(file.Role); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArchiveFile, err)
	}
	if file.Path == "" {
		return fmt.Errorf("%w: path is required", ErrInvalidArchiveFile)
	}
	if file.Size < 0 {
		return fmt.Errorf("%w: negative size", ErrInvalidArchiveFile)
	}
	if len(file.Digest) != 64 {
		return fmt.Errorf("%w: digest must be hex sha-256", ErrInvalidArchiveFile)
	}
	return nil
}

// ValidateChunk validates a single TranscriptChunk.
//
// Validation rules:
//   - 0 <= StartSec < EndSec
//   - Text must not be blank
//   - Confidence, when present, within [0, 1]
func ValidateChunk(chunk *TranscriptChunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}

	if chunk.StartSec < 0 || chunk.StartSec >= chunk.EndSec {
		return fmt.Errorf("%w: %w: [%.3f, %.3f)", ErrInvalidChunk, ErrInvalidTimeRange, chunk.StartSec, chunk.EndSec)
	}

	if strings.TrimSpace(chunk.Text) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyContent)
	}

	if c := chunk.Confidence; c != nil && (*c < 0 || *c > 1) {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrInvalidConfidence)
	}

	return nil
}

// ValidateChunkSequence validates every chunk and checks the sequence is
// ordered and non-overlapping.
func ValidateChunkSequence(chunks []*TranscriptChunk) error {
	for i, chunk := range chunks {
		if err := ValidateChunk(chunk); err != nil {
			return fmt.Errorf("chunk %d: %w", i, err)
		}
		if i > 0 && chunks[i-1].EndSec > chunk.StartSec {
			return fmt.Errorf("chunk %d: %w: overlaps previous chunk", i, ErrInvalidTimeRange)
		}
	}
	return nil
}

// IsValidTimestamp checks if a timestamp is valid (not in the future).
func IsValidTimestamp(ts time.Time) bool {
	return !ts.After(time.Now())
}
