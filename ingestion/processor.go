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

package ingestion

import (
	"context"
	"time"
)

// stage is one step of a pipeline run. Stages execute in order and may
// read anything earlier stages left on the run.
type stage interface {
	// name identifies the stage in logs and metrics.
	name() string

	// process advances r. An error fails the whole run; optional stages
	// log their own failures and return nil.
	process(ctx context.Context, r *run) error
}

// runStages executes stages in order and stops at the first failure,
// returning the failing stage's name.
func runStages(ctx context.Context, r *run, stages []stage) (string, error) {
	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			return s.name(), err
		}
		start := time.Now()
		err := s.process(ctx, r)
		stageDuration.WithLabelValues(s.name()).Observe(time.Since(start).Seconds())
		if err != nil {
			return s.name(), err
		}
		r.logger.Debug("stage complete", "stage", s.name(), "elapsed", time.Since(start))
	}
	return "", nil
}
