// Package ingestion turns uploaded recordings into searchable transcripts.
//
// The Pipeline runs each post through a fixed sequence of stages:
//   - transcribe the original audio into timestamped segments
//   - partition the segments into time-aligned chunks
//   - embed every chunk concurrently (optional, non-fatal)
//   - extract topics from the transcript (optional, non-fatal)
//   - commit chunks, metadata and derived artifacts atomically
//
// Runs execute on a bounded worker pool. Each run carries its own state in
// a run value, so concurrent runs never share mutable data. A run that
// fails marks its post failed with a generic reason; a run whose post was
// deleted or superseded is discarded without writing.
package ingestion
