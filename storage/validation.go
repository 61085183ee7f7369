package storage

import (
	"fmt"

	"github.com/poiesic/voicevault/core"
)

// ValidateRunResult checks a run payload before a backend writes any of
// it. Every backend calls it so the same bad input fails the same way.
func ValidateRunResult(result *RunResult) error {
	if result == nil || result.PostID == 0 || result.RunID == "" {
		return fmt.Errorf("%w: run result needs a post and run id", ErrInvalidQuery)
	}
	if result.Metadata != nil && result.Metadata.PostID != result.PostID {
		return fmt.Errorf("%w: metadata belongs to post %d", core.ErrInvalidMetadata, result.Metadata.PostID)
	}
	if err := core.ValidateChunkSequence(result.Chunks); err != nil {
		return err
	}
	for _, f := range result.Files {
		if err := core.ValidateArchiveFile(f); err != nil {
			return err
		}
		if f.PostID != result.PostID {
			return fmt.Errorf("%w: file %s belongs to post %d", core.ErrInvalidArchiveFile, f.Role, f.PostID)
		}
	}
	return nil
}
