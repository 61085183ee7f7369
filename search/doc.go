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

// Package search answers free-text queries over a user's transcript chunks.
//
// The Engine ranks in two tiers:
//   - Vector: cosine similarity between the query embedding and every
//     embedded chunk of the user's ready posts
//   - Lexical: keyword match counts over stop-word filtered tokens plus a
//     phrase bonus, used when the query cannot be embedded or the vector
//     tier finds nothing
//
// Search never crosses user boundaries and never fails for a valid query:
// storage or embedding trouble degrades to the lexical tier or an empty
// page. Every search is recorded in the audit log as search history.
package search
