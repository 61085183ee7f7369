// Package chunker groups transcript segments into retrieval-sized chunks.
//
// Chunks are a partition of the input: segments are never split,
// duplicated or reordered, and only whitespace-only segments are dropped.
// A chunk closes when the next segment would push it past MaxDuration or
// MaxChars, or when it ends a sentence after reaching MinDuration. Both
// caps are soft: a single segment larger than either becomes its own chunk.
package chunker

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/poiesic/voicevault/core"
)

var (
	// ErrInvalidConfig indicates non-positive caps or a floor at or above the cap.
	ErrInvalidConfig = errors.New("invalid chunker config")

	// ErrInvalidSegment indicates a segment with a bad time range or one that
	// overlaps or precedes its predecessor.
	ErrInvalidSegment = errors.New("invalid segment")
)

// Config holds the chunk size caps.
type Config struct {
	// MaxDuration caps the span from a chunk's first start to its last end.
	MaxDuration time.Duration

	// MaxChars caps the chunk text length in characters.
	MaxChars int

	// MinDuration is the floor a chunk must reach before a sentence
	// boundary may close it.
	MinDuration time.Duration
}

// DefaultConfig returns the documented defaults: 30s, 500 characters, 10s floor.
func DefaultConfig() Config {
	return Config{
		MaxDuration: 30 * time.Second,
		MaxChars:    500,
		MinDuration: 10 * time.Second,
	}
}

// Validate checks the caps.
func (c Config) Validate() error {
	if c.MaxDuration <= 0 {
		return fmt.Errorf("%w: max duration must be positive", ErrInvalidConfig)
	}
	if c.MaxChars <= 0 {
		return fmt.Errorf("%w: max chars must be positive", ErrInvalidConfig)
	}
	if c.MinDuration < 0 || c.MinDuration >= c.MaxDuration {
		return fmt.Errorf("%w: min duration must be in [0, %s)", ErrInvalidConfig, c.MaxDuration)
	}
	return nil
}

// Chunker partitions segment sequences.
type Chunker struct {
	maxDuration float64
	minDuration float64
	maxChars    int
}

// New creates a Chunker from a validated config.
func New(cfg Config) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{
		maxDuration: cfg.MaxDuration.Seconds(),
		minDuration: cfg.MinDuration.Seconds(),
		maxChars:    cfg.MaxChars,
	}, nil
}

// builder accumulates the open chunk.
type builder struct {
	start, end float64
	parts      []string
	chars      int
	weighted   float64 // sum of confidence * duration over scored segments
	scored     float64 // total duration of scored segments
}

func (b *builder) empty() bool { return len(b.parts) == 0 }

func (b *builder) add(seg core.Segment, text string) {
	if b.empty() {
		b.start = seg.StartSec
	} else {
		b.chars++ // joining space
	}
	b.end = seg.EndSec
	b.parts = append(b.parts, text)
	b.chars += utf8.RuneCountInString(text)
	if seg.Confidence != nil {
		d := seg.EndSec - seg.StartSec
		b.weighted += *seg.Confidence * d
		b.scored += d
	}
}

func (b *builder) build(index int) *core.TranscriptChunk {
	chunk := &core.TranscriptChunk{
		Index:    index,
		StartSec: b.start,
		EndSec:   b.end,
		Text:     strings.Join(b.parts, " "),
	}
	if b.scored > 0 {
		conf := min(max(b.weighted/b.scored, 0), 1)
		chunk.Confidence = &conf
	}
	*b = builder{}
	return chunk
}

// Chunk partitions segments into chunks. Segments must be ordered with
// 0 <= start < end and must not overlap.
func (c *Chunker) Chunk(segments []core.Segment) ([]*core.TranscriptChunk, error) {
	if err := validateSegments(segments); err != nil {
		return nil, err
	}

	var (
		chunks []*core.TranscriptChunk
		cur    builder
	)
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}

		if !cur.empty() {
			duration := seg.EndSec - cur.start
			chars := cur.chars + 1 + utf8.RuneCountInString(text)
			if duration > c.maxDuration || chars > c.maxChars {
				chunks = append(chunks, cur.build(len(chunks)))
			}
		}

		cur.add(seg, text)

		if endsSentence(text) && cur.end-cur.start >= c.minDuration {
			chunks = append(chunks, cur.build(len(chunks)))
		}
	}
	if !cur.empty() {
		chunks = append(chunks, cur.build(len(chunks)))
	}
	return chunks, nil
}

func validateSegments(segments []core.Segment) error {
	prevEnd := 0.0
	for i, seg := range segments {
		if seg.StartSec < 0 || seg.StartSec >= seg.EndSec {
			return fmt.Errorf("%w: segment %d has range [%.3f, %.3f)", ErrInvalidSegment, i, seg.StartSec, seg.EndSec)
		}
		if seg.StartSec < prevEnd {
			return fmt.Errorf("%w: segment %d starts at %.3f before previous end %.3f", ErrInvalidSegment, i, seg.StartSec, prevEnd)
		}
		prevEnd = seg.EndSec
	}
	return nil
}

// endsSentence reports whether text ends with terminal punctuation,
// ignoring trailing quotes and brackets.
func endsSentence(text string) bool {
	text = strings.TrimRight(text, `"')]}»”’`)
	if text == "" {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(text)
	switch r {
	case '.', '!', '?', '…', '。', '！', '？':
		return true
	}
	return false
}
