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

import "errors"

// Pipeline error taxonomy
var (
	// ErrUnsupportedMediaType indicates an upload outside the audio/video allow-list.
	// Terminal and user-facing.
	ErrUnsupportedMediaType = errors.New("unsupported media type")

	// ErrTranscription indicates speech-to-text failed for the current run.
	ErrTranscription = errors.New("transcription failed")

	// ErrEmbeddingUnavailable indicates the embedding service could not
	// produce a vector. Non-fatal: the chunk is stored without one.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrStorageWrite indicates a persistence failure. Terminal for the run.
	ErrStorageWrite = errors.New("storage write failure")

	// ErrIntegrityMismatch indicates stored bytes no longer match the ledger digest.
	ErrIntegrityMismatch = errors.New("integrity mismatch")

	// ErrRetryable marks an error caused by a transient condition
	// (network, timeout, rate limit) that a later attempt may not hit.
	ErrRetryable = errors.New("retryable")
)

// Domain validation errors
var (
	// ErrInvalidPost indicates a Post failed validation.
	ErrInvalidPost = errors.New("invalid post")

	// ErrInvalidArchiveFile indicates an ArchiveFile failed validation.
	ErrInvalidArchiveFile = errors.New("invalid archive file")

	// ErrInvalidChunk indicates a TranscriptChunk failed validation.
	ErrInvalidChunk = errors.New("invalid transcript chunk")

	// ErrInvalidMetadata indicates an ArchiveMetadata record failed validation.
	ErrInvalidMetadata = errors.New("invalid archive metadata")

	// ErrInvalidTransition indicates a forbidden status change.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrEmptyTitle indicates the Title field is empty.
	ErrEmptyTitle = errors.New("title cannot be empty")

	// ErrEmptyContent indicates a chunk's Text is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrInvalidVisibility indicates an unknown Visibility value.
	ErrInvalidVisibility = errors.New("invalid visibility")

	// ErrInvalidStatus indicates an unknown Status value.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrInvalidFileRole indicates a role outside the closed enum.
	ErrInvalidFileRole = errors.New("invalid file role")

	// ErrInvalidTimeRange indicates start/end seconds are out of order or negative.
	ErrInvalidTimeRange = errors.New("invalid time range")

	// ErrInvalidConfidence indicates a confidence outside [0, 1].
	ErrInvalidConfidence = errors.New("confidence must be between 0 and 1")

	// ErrInvalidUser indicates a missing owner.
	ErrInvalidUser = errors.New("invalid user id")
)

type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }

func (e *retryableError) Unwrap() []error { return []error{e.err, ErrRetryable} }

// Retryable marks err as transient. Nil stays nil.
func Retryable(err error) error {
	if err == nil || IsRetryable(err) {
		return err
	}
	return &retryableError{err: err}
}

// IsRetryable reports whether err, or anything it wraps, is marked transient.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRetryable)
}
