package ingestion

import "errors"

var (
	// ErrStoreRequired is returned when an archive store is not provided.
	ErrStoreRequired = errors.New("archive store required")

	// ErrBlobStoreRequired is returned when a blob store is not provided.
	ErrBlobStoreRequired = errors.New("blob store required")

	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")

	// ErrTranscriberRequired is returned when the provider has no transcriber.
	ErrTranscriberRequired = errors.New("transcriber required")

	// ErrRunDiscarded is returned when a run finished but its post was
	// deleted or claimed by another run, so nothing was written.
	ErrRunDiscarded = errors.New("run discarded")

	// ErrRunFailed is returned when a run failed and its post was marked
	// failed. The post waits for an explicit reprocess.
	ErrRunFailed = errors.New("run failed")
)
