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

package search

import "github.com/poiesic/voicevault/core"

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(query Query)
	AfterChunkLoad(chunks int, embedded int)
	AfterVectorSearch(candidates int, err error)
	AfterLexicalSearch(candidates int)
	Finish(results *Results)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ Query)                    {}
func (n *noopMonitor) AfterChunkLoad(_ int, _ int)      {}
func (n *noopMonitor) AfterVectorSearch(_ int, _ error) {}
func (n *noopMonitor) AfterLexicalSearch(_ int)         {}
func (n *noopMonitor) Finish(_ *Results)                {}

// resultPostIDs lists the post of every result, in rank order.
func resultPostIDs(results []*core.SearchResult) []core.ID {
	ids := make([]core.ID, len(results))
	for i, r := range results {
		ids[i] = r.PostID
	}
	return ids
}
