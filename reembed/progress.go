package reembed

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// ProgressTracker tracks and reports progress of a backfill pass.
type ProgressTracker struct {
	writer         io.Writer
	total          int
	seen           int
	attached       int
	reportInterval int
	lastReported   int
	startTime      time.Time
	started        bool
	mu             sync.Mutex
}

// NewProgressTracker creates a new progress tracker.
// writer: where to write progress output (typically os.Stderr)
// total: number of chunks expected in the pass
// reportInterval: report progress every N chunks
func NewProgressTracker(writer io.Writer, total, reportInterval int) *ProgressTracker {
	if reportInterval <= 0 {
		reportInterval = 1
	}
	return &ProgressTracker{
		writer:         writer,
		total:          total,
		reportInterval: reportInterval,
	}
}

// Start begins tracking progress.
func (p *ProgressTracker) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.startTime = time.Now()
	p.started = true
	p.seen = 0
	p.attached = 0
	p.lastReported = 0
}

// Add records a finished batch: seen chunks were examined and attached of
// them received an embedding.
func (p *ProgressTracker) Add(seen, attached int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}

	p.seen += seen
	p.attached += attached
	if p.seen > p.total {
		// chunks committed after the pass started
		p.total = p.seen
	}

	if p.seen-p.lastReported >= p.reportInterval {
		p.report()
		p.lastReported = p.seen
	}
}

// Finish prints the final progress line.
func (p *ProgressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}

	p.report()
	fmt.Fprintln(p.writer)
}

// Attached returns how many chunks received an embedding so far.
func (p *ProgressTracker) Attached() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attached
}

// Elapsed returns the time elapsed since Start was called.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return 0
	}

	return time.Since(p.startTime)
}

// report prints the current progress. Must be called with lock held.
func (p *ProgressTracker) report() {
	elapsed := time.Since(p.startTime)
	rate := float64(p.seen) / elapsed.Seconds()

	percentage := 100.0
	if p.total > 0 {
		percentage = float64(p.seen) / float64(p.total) * 100.0
	}

	fmt.Fprintf(p.writer, "\rBackfill: %d/%d chunks (%.1f%%), %d attached - %.1f chunks/s",
		p.seen, p.total, percentage, p.attached, rate)
}
