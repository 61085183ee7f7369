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

// Package storage provides the storage abstraction layer for VoiceVault.
//
// This package defines repository interfaces that decouple the archive
// ledger from business logic. Two backends implement them:
//
//   - storage/badger: embedded BadgerDB, the default
//   - storage/postgres: PostgreSQL through pgx, with embedded migrations
//
// # Constructor Return Type Pattern
//
// Public constructors return interfaces to keep callers decoupled from the
// backend:
//
//	store, err := badger.NewStore(path)  // returns storage.Store
//
// # Architecture
//
//   - PostRepository: posts and their status lifecycle
//   - FileRepository: the (post, role) file ledger
//   - ChunkRepository: transcript chunk reads and embedding backfill
//   - MetadataRepository: per-post retrieval metadata
//   - RunRepository: atomic commit of a pipeline run
//   - AuditRepository: append-only audit log
//   - CheckpointRepository: progress of resumable background jobs
//   - Store: all of the above
//
// # Transactions
//
// WithTransaction places the open transaction in the context it hands to
// its callback. Repository methods called with that context join the
// transaction instead of opening their own:
//
//	err := store.WithTransaction(ctx, func(ctx context.Context) error {
//	    post, err := store.AddPost(ctx, post)
//	    if err != nil {
//	        return err
//	    }
//	    return store.PutFile(ctx, file)
//	})
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
