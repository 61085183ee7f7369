package media

import "errors"

var (
	// ErrTooLarge indicates an upload above the configured size limit.
	ErrTooLarge = errors.New("upload exceeds size limit")

	// ErrInvalidConfig indicates an Ingestor option with an unusable value.
	ErrInvalidConfig = errors.New("invalid ingestor configuration")
)
