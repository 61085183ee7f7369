package voicevault

import "errors"

var (
	// ErrStoreRequired is returned when an archive store is not provided.
	ErrStoreRequired = errors.New("archive store required")

	// ErrBlobStoreRequired is returned when a blob store is not provided.
	ErrBlobStoreRequired = errors.New("blob store required")

	// ErrDispatcherRequired is returned when no way to run the pipeline is configured.
	ErrDispatcherRequired = errors.New("pipeline dispatcher required")
)
