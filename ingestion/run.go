package ingestion

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/voicevault/core"
)

// run is the state of one pipeline execution over one post. It is created
// when the post enters processing and threaded through every stage.
type run struct {
	id      string
	post    *core.Post // snapshot taken when the run started
	started time.Time

	segments []core.Segment
	chunks   []*core.TranscriptChunk
	topics   []string
	model    string // embedding model, empty when nothing was embedded
	embedded int

	// blobs written by this run, removed again if it does not commit
	written []string
	logger  *slog.Logger
}

// newRunID returns a fresh run identifier.
func newRunID() string {
	return uuid.NewString()
}

func newRun(id string, post *core.Post, logger *slog.Logger) *run {
	return &run{
		id:      id,
		post:    post,
		started: time.Now(),
		logger:  logger.With("post_id", post.Id, "run_id", id),
	}
}

// transcript joins the chunk texts into one document.
func (r *run) transcript() string {
	n := 0
	for _, c := range r.chunks {
		n += len(c.Text) + 1
	}
	buf := make([]byte, 0, n)
	for i, c := range r.chunks {
		if i > 0 {
			buf = append(buf, ' ')
		}
		buf = append(buf, c.Text...)
	}
	return string(buf)
}

// duration returns the end time of the last segment.
func (r *run) duration() float64 {
	if len(r.segments) == 0 {
		return 0
	}
	return r.segments[len(r.segments)-1].EndSec
}
