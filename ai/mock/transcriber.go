package mock

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/poiesic/voicevault/ai"
	"github.com/poiesic/voicevault/core"
)

// MockTranscriber is a test double for ai.Transcriber.
type MockTranscriber struct {
	// TranscribeFunc is called by Transcribe if set. The audio has not been
	// read when it is called.
	TranscribeFunc func(ctx context.Context, req ai.TranscriptionRequest) ([]core.Segment, error)

	// Segments is returned by the default behavior when non-nil.
	Segments []core.Segment

	callCount atomic.Int64
}

// NewMockTranscriber creates a mock transcriber.
//
// By default the audio bytes are read as UTF-8 text and each line becomes
// a five second segment, so tests can "record" speech as plain text.
func NewMockTranscriber() *MockTranscriber {
	return &MockTranscriber{}
}

// Transcribe returns canned or text-derived segments.
func (m *MockTranscriber) Transcribe(ctx context.Context, req ai.TranscriptionRequest) ([]core.Segment, error) {
	m.callCount.Add(1)

	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, req)
	}
	if req.Audio == nil {
		return nil, fmt.Errorf("%w: no audio supplied", core.ErrTranscription)
	}
	data, err := io.ReadAll(req.Audio)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrTranscription, err)
	}
	if m.Segments != nil {
		out := make([]core.Segment, len(m.Segments))
		copy(out, m.Segments)
		return out, nil
	}
	return SegmentsFromText(string(data), 5), nil
}

// CallCount returns the number of times Transcribe was called.
func (m *MockTranscriber) CallCount() int {
	return int(m.callCount.Load())
}

// Reset clears the call count and custom behavior.
func (m *MockTranscriber) Reset() {
	m.callCount.Store(0)
	m.TranscribeFunc = nil
	m.Segments = nil
}

// SegmentsFromText turns each non-blank line into a segment of width seconds.
func SegmentsFromText(text string, width float64) []core.Segment {
	var segs []core.Segment
	start := 0.0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		conf := 0.9
		segs = append(segs, core.Segment{
			StartSec:   start,
			EndSec:     start + width,
			Text:       line,
			Confidence: &conf,
		})
		start += width
	}
	return segs
}
