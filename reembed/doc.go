// Package reembed backfills embeddings for transcript chunks that were
// committed without one, typically because the embedding service was down
// while their post was processed.
//
// The backfill walks missing chunks in ID order in batches, retries the
// embedding call with backoff, and records a checkpoint after every batch
// so an interrupted pass resumes where it stopped.
package reembed
