package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/poiesic/voicevault/ai"
	"github.com/poiesic/voicevault/core"
	goopenai "github.com/sashabaranov/go-openai"
)

// transcriptionClient is the slice of the go-openai client used here.
type transcriptionClient interface {
	CreateTranscription(ctx context.Context, request goopenai.AudioRequest) (goopenai.AudioResponse, error)
}

// Transcriber implements ai.Transcriber against an OpenAI-compatible
// Whisper endpoint using verbose_json segment timestamps.
type Transcriber struct {
	client   transcriptionClient
	model    string
	timeout  time.Duration
	maxBytes int64
	logger   *slog.Logger
}

// newTranscriber is an internal constructor that returns the concrete type.
func newTranscriber(config *ai.Config) (*Transcriber, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	clientConfig := goopenai.DefaultConfig(config.APIKey)
	clientConfig.BaseURL = config.TranscriptionHost

	return &Transcriber{
		client:   goopenai.NewClientWithConfig(clientConfig),
		model:    config.TranscriptionModel,
		timeout:  config.TranscriptionTimeout,
		maxBytes: config.MaxRequestBytes,
		logger:   slog.Default().With("component", "openai-transcriber"),
	}, nil
}

// NewTranscriber creates a new transcriber using the provided configuration.
//
// Returns ai.Transcriber interface to enforce abstraction.
func NewTranscriber(config *ai.Config) (ai.Transcriber, error) {
	return newTranscriber(config)
}

// Transcribe streams req.Audio to the speech-to-text endpoint.
//
// At most maxBytes of audio are held in memory at once. MP3 and AAC are cut
// at frame headers and WAV at sample frames behind a rebuilt header; each
// window is sent on its own and segment times are shifted by the
// accumulated duration of earlier windows. Other formats larger than one
// window are rejected.
func (t *Transcriber) Transcribe(ctx context.Context, req ai.TranscriptionRequest) ([]core.Segment, error) {
	if req.Audio == nil {
		return nil, fmt.Errorf("%w: no audio supplied", core.ErrTranscription)
	}

	format := req.Format
	if format == "" {
		format = ai.FormatFromFileName(req.FileName)
	}
	fileName := req.FileName
	if fileName == "" {
		fileName = "audio." + format
	}

	windows := newSplitter(format, req.Audio, t.maxBytes)
	var segments []core.Segment
	var offset float64

	for window := 0; ; window++ {
		audio, err := windows.next()
		if errors.Is(err, io.EOF) {
			if window == 0 {
				return nil, fmt.Errorf("%w: empty audio", core.ErrTranscription)
			}
			return normalizeSegments(segments), nil
		}
		if err != nil {
			return nil, err
		}

		resp, err := t.transcribeWindow(ctx, audio, fileName, req.Language)
		if err != nil {
			t.logger.Warn("transcription request failed",
				"file", fileName,
				"window", window,
				"retryable", core.IsRetryable(err),
				"err", err)
			return nil, err
		}

		segments = append(segments, convertSegments(resp, offset)...)
		offset += windowDuration(resp)

		t.logger.Debug("transcribed window",
			"file", fileName,
			"window", window,
			"bytes", len(audio),
			"segments", len(resp.Segments),
			"offset", offset)
	}
}

func (t *Transcriber) transcribeWindow(ctx context.Context, audio []byte, fileName, language string) (goopenai.AudioResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	resp, err := t.client.CreateTranscription(ctx, goopenai.AudioRequest{
		Model:                  t.model,
		FilePath:               fileName,
		Reader:                 bytes.NewReader(audio),
		Language:               language,
		Format:                 goopenai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []goopenai.TranscriptionTimestampGranularity{goopenai.TranscriptionTimestampGranularitySegment},
	})
	if err != nil {
		return resp, classifyTranscriptionError(err)
	}
	return resp, nil
}

// convertSegments maps a verbose_json response to domain segments shifted by offset.
func convertSegments(resp goopenai.AudioResponse, offset float64) []core.Segment {
	if len(resp.Segments) == 0 {
		text := strings.TrimSpace(resp.Text)
		if text == "" || resp.Duration <= 0 {
			return nil
		}
		return []core.Segment{{StartSec: offset, EndSec: offset + resp.Duration, Text: text}}
	}

	out := make([]core.Segment, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		out = append(out, core.Segment{
			StartSec:   offset + s.Start,
			EndSec:     offset + s.End,
			Text:       s.Text,
			Confidence: confidenceFromLogprob(s.AvgLogprob),
		})
	}
	return out
}

// windowDuration is the reported audio duration, falling back to the last segment end.
func windowDuration(resp goopenai.AudioResponse) float64 {
	if resp.Duration > 0 {
		return resp.Duration
	}
	if n := len(resp.Segments); n > 0 {
		return resp.Segments[n-1].End
	}
	return 0
}

// confidenceFromLogprob converts a mean token log-probability to [0, 1].
// Exactly zero is what servers send when they omit the field, so it maps to nil.
func confidenceFromLogprob(avg float64) *float64 {
	if avg == 0 || math.IsNaN(avg) {
		return nil
	}
	c := math.Exp(avg)
	c = math.Max(0, math.Min(1, c))
	return &c
}

// normalizeSegments trims text, drops empty and zero-length segments, and
// clamps overlapping starts to the previous end.
func normalizeSegments(in []core.Segment) []core.Segment {
	out := make([]core.Segment, 0, len(in))
	prevEnd := 0.0
	for _, s := range in {
		s.Text = strings.TrimSpace(s.Text)
		if s.Text == "" {
			continue
		}
		if s.StartSec < prevEnd {
			s.StartSec = prevEnd
		}
		if s.EndSec <= s.StartSec {
			continue
		}
		out = append(out, s)
		prevEnd = s.EndSec
	}
	return out
}

// classifyTranscriptionError wraps err in core.ErrTranscription and marks
// timeouts, rate limits, server errors and network failures as retryable.
func classifyTranscriptionError(err error) error {
	wrapped := fmt.Errorf("%w: %w", core.ErrTranscription, err)

	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return byStatus(apiErr.HTTPStatusCode, wrapped)
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return byStatus(reqErr.HTTPStatusCode, wrapped)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return core.Retryable(wrapped)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return core.Retryable(wrapped)
	}
	return wrapped
}

func byStatus(code int, err error) error {
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500 {
		return core.Retryable(err)
	}
	return err
}
