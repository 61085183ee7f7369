package openai

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/voicevault/ai"
	"github.com/poiesic/voicevault/core"
	goopenai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWhisper records each request window and replays canned responses.
type fakeWhisper struct {
	mu        sync.Mutex
	windows   [][]byte
	requests  []goopenai.AudioRequest
	responses []string
	err       error
}

func (f *fakeWhisper) CreateTranscription(ctx context.Context, req goopenai.AudioRequest) (goopenai.AudioResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, _ := io.ReadAll(req.Reader)
	f.windows = append(f.windows, data)
	f.requests = append(f.requests, req)

	var resp goopenai.AudioResponse
	if f.err != nil {
		return resp, f.err
	}
	i := len(f.windows) - 1
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	if err := json.Unmarshal([]byte(f.responses[i]), &resp); err != nil {
		return resp, err
	}
	return resp, nil
}

func newTestTranscriber(client transcriptionClient, maxBytes int64) *Transcriber {
	return &Transcriber{
		client:   client,
		model:    "whisper-1",
		timeout:  time.Second,
		maxBytes: maxBytes,
		logger:   slog.Default(),
	}
}

func TestTranscribe_SingleWindow(t *testing.T) {
	fake := &fakeWhisper{responses: []string{`{
		"duration": 9.0,
		"segments": [
			{"start": 0.0, "end": 4.0, "text": "  Hello there. ", "avg_logprob": -0.1},
			{"start": 3.5, "end": 9.0, "text": "General Kenobi!", "avg_logprob": -0.5},
			{"start": 9.0, "end": 9.0, "text": "zero", "avg_logprob": -0.2}
		]
	}`}}
	tr := newTestTranscriber(fake, 1024)

	segs, err := tr.Transcribe(context.Background(), ai.TranscriptionRequest{
		Audio:    strings.NewReader("RIFF....WAVE"),
		FileName: "greeting.wav",
		Language: "en",
	})
	require.NoError(t, err)
	require.Len(t, segs, 2)

	assert.Equal(t, "Hello there.", segs[0].Text)
	assert.Equal(t, 0.0, segs[0].StartSec)
	require.NotNil(t, segs[0].Confidence)
	assert.InDelta(t, math.Exp(-0.1), *segs[0].Confidence, 1e-9)

	// overlapping start is clamped to the previous end
	assert.Equal(t, 4.0, segs[1].StartSec)
	assert.Equal(t, 9.0, segs[1].EndSec)

	require.Len(t, fake.requests, 1)
	req := fake.requests[0]
	assert.Equal(t, "whisper-1", req.Model)
	assert.Equal(t, "greeting.wav", req.FilePath)
	assert.Equal(t, "en", req.Language)
	assert.Equal(t, goopenai.AudioResponseFormatVerboseJSON, req.Format)
}

func TestTranscribe_SplitsFrameFormats(t *testing.T) {
	fake := &fakeWhisper{responses: []string{
		`{"duration": 10.0, "segments": [{"start": 0, "end": 10, "text": "first", "avg_logprob": -0.2}]}`,
		`{"duration": 10.0, "segments": [{"start": 0, "end": 10, "text": "second", "avg_logprob": -0.2}]}`,
		`{"duration": 2.5, "segments": [{"start": 0.5, "end": 2.5, "text": "third", "avg_logprob": -0.2}]}`,
	}}
	tr := newTestTranscriber(fake, 8)

	audio := bytes.Repeat([]byte{0xff}, 20)
	segs, err := tr.Transcribe(context.Background(), ai.TranscriptionRequest{
		Audio:    bytes.NewReader(audio),
		FileName: "long.mp3",
	})
	require.NoError(t, err)

	require.Len(t, fake.windows, 3)
	assert.Len(t, fake.windows[0], 8)
	assert.Len(t, fake.windows[1], 8)
	assert.Len(t, fake.windows[2], 4)

	require.Len(t, segs, 3)
	assert.Equal(t, 10.0, segs[1].StartSec)
	assert.Equal(t, 20.5, segs[2].StartSec)
	assert.Equal(t, 22.5, segs[2].EndSec)
}

func TestTranscribe_ExactWindowMultiple(t *testing.T) {
	fake := &fakeWhisper{responses: []string{
		`{"duration": 3.0, "segments": [{"start": 0, "end": 3, "text": "a", "avg_logprob": -0.2}]}`,
	}}
	tr := newTestTranscriber(fake, 4)

	segs, err := tr.Transcribe(context.Background(), ai.TranscriptionRequest{
		Audio:  bytes.NewReader(make([]byte, 8)),
		Format: "mp3",
	})
	require.NoError(t, err)
	assert.Len(t, fake.windows, 2)
	assert.Len(t, segs, 2)
	assert.Equal(t, "audio.mp3", fake.requests[0].FilePath)
}

func TestTranscribe_OversizedUnsplittable(t *testing.T) {
	for _, name := range []string{"big.flac", "big.m4a", "garbage.wav"} {
		t.Run(name, func(t *testing.T) {
			fake := &fakeWhisper{responses: []string{`{"duration": 1}`}}
			tr := newTestTranscriber(fake, 4)

			_, err := tr.Transcribe(context.Background(), ai.TranscriptionRequest{
				Audio:    bytes.NewReader(make([]byte, 5)),
				FileName: name,
			})
			require.ErrorIs(t, err, core.ErrTranscription)
			assert.False(t, core.IsRetryable(err))
			assert.Empty(t, fake.windows, "nothing may be sent when the file cannot be split")
		})
	}
}

// frames builds n fake frames of size bytes, each starting with header.
func frames(header []byte, n, size int) []byte {
	out := make([]byte, 0, n*size)
	for range n {
		frame := make([]byte, size)
		copy(frame, header)
		out = append(out, frame...)
	}
	return out
}

func TestTranscribe_CutsAtFrameHeaders(t *testing.T) {
	tests := []struct {
		name   string
		header []byte
	}{
		{"clip.mp3", []byte{0xFF, 0xFB, 0x90, 0x64}},
		{"clip.aac", []byte{0xFF, 0xF1, 0x50, 0x80}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeWhisper{responses: []string{
				`{"duration": 2.0, "segments": [{"start": 0, "end": 2, "text": "part", "avg_logprob": -0.2}]}`,
			}}
			tr := newTestTranscriber(fake, 24)
			audio := frames(tt.header, 5, 10)

			segs, err := tr.Transcribe(context.Background(), ai.TranscriptionRequest{
				Audio:    bytes.NewReader(audio),
				FileName: tt.name,
			})
			require.NoError(t, err)

			require.Len(t, fake.windows, 3)
			assert.Len(t, fake.windows[0], 20)
			assert.Len(t, fake.windows[1], 20)
			assert.Len(t, fake.windows[2], 10)
			for i, w := range fake.windows {
				assert.Equal(t, tt.header, w[:4], "window %d starts on a frame", i)
			}
			assert.Equal(t, audio, bytes.Join(fake.windows, nil))

			require.Len(t, segs, 3)
			assert.Equal(t, 4.0, segs[2].StartSec)
		})
	}
}

// pcmWAV builds a 16-bit stereo WAV with an odd-sized LIST chunk before
// the samples and trailing bytes after them.
func pcmWAV(samples []byte) []byte {
	le32 := func(v int) []byte { return binary.LittleEndian.AppendUint32(nil, uint32(v)) }
	fmtBody := []byte{
		1, 0, // PCM
		2, 0, // channels
		0x80, 0x3E, 0, 0, // 16000 Hz
		0x00, 0xFA, 0, 0, // byte rate
		4, 0, // block align
		16, 0, // bits per sample
	}

	var b bytes.Buffer
	b.WriteString("RIFF")
	b.Write(le32(0))
	b.WriteString("WAVE")
	b.WriteString("fmt ")
	b.Write(le32(len(fmtBody)))
	b.Write(fmtBody)
	b.WriteString("LIST")
	b.Write(le32(3))
	b.Write([]byte{'a', 'b', 'c', 0})
	b.WriteString("data")
	b.Write(le32(len(samples)))
	b.Write(samples)
	b.WriteString("junk!!")
	return b.Bytes()
}

func TestTranscribe_SplitsWAV(t *testing.T) {
	fake := &fakeWhisper{responses: []string{
		`{"duration": 1.0, "segments": [{"start": 0, "end": 1, "text": "part", "avg_logprob": -0.2}]}`,
	}}
	// rebuilt header is 44 bytes, leaving 40 bytes of samples per window
	tr := newTestTranscriber(fake, 84)

	samples := make([]byte, 100)
	for i := range samples {
		samples[i] = byte(i + 1)
	}

	segs, err := tr.Transcribe(context.Background(), ai.TranscriptionRequest{
		Audio:    bytes.NewReader(pcmWAV(samples)),
		FileName: "long.wav",
	})
	require.NoError(t, err)
	require.Len(t, segs, 3)
	assert.Equal(t, 2.0, segs[2].StartSec)

	require.Len(t, fake.windows, 3)
	var got []byte
	for i, w := range fake.windows {
		require.GreaterOrEqual(t, len(w), 44, "window %d", i)
		assert.LessOrEqual(t, len(w), 84, "window %d", i)
		assert.Equal(t, "RIFF", string(w[0:4]))
		assert.Equal(t, uint32(len(w)-8), binary.LittleEndian.Uint32(w[4:8]))
		assert.Equal(t, "WAVE", string(w[8:12]))
		assert.Equal(t, "fmt ", string(w[12:16]))
		assert.Equal(t, "data", string(w[36:40]))
		n := binary.LittleEndian.Uint32(w[40:44])
		assert.Equal(t, uint32(len(w)-44), n)
		assert.Zero(t, n%4, "window %d holds whole sample frames", i)
		got = append(got, w[44:]...)
	}
	assert.Equal(t, samples, got, "samples arrive in order without the trailing chunk")
}

func TestFill_GrowsWithData(t *testing.T) {
	buf, eof, err := fill(strings.NewReader("short clip"), nil, 24<<20)
	require.NoError(t, err)
	assert.True(t, eof)
	assert.Equal(t, "short clip", string(buf))
	assert.Less(t, cap(buf), 64<<10, "a short clip must not allocate a full window")

	buf, eof, err = fill(strings.NewReader("abcdef"), []byte("xy"), 3)
	require.NoError(t, err)
	assert.False(t, eof)
	assert.Equal(t, "xyabc", string(buf))
}

func TestTranscribe_UnsplittableExactlyOneWindow(t *testing.T) {
	fake := &fakeWhisper{responses: []string{`{"duration": 1, "segments": [{"start": 0, "end": 1, "text": "ok"}]}`}}
	tr := newTestTranscriber(fake, 4)

	segs, err := tr.Transcribe(context.Background(), ai.TranscriptionRequest{
		Audio:    bytes.NewReader(make([]byte, 4)),
		FileName: "clip.flac",
	})
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Nil(t, segs[0].Confidence)
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	tr := newTestTranscriber(&fakeWhisper{}, 4)

	_, err := tr.Transcribe(context.Background(), ai.TranscriptionRequest{
		Audio:    bytes.NewReader(nil),
		FileName: "empty.mp3",
	})
	assert.ErrorIs(t, err, core.ErrTranscription)
}

func TestTranscribe_TextOnlyResponse(t *testing.T) {
	fake := &fakeWhisper{responses: []string{`{"duration": 6.0, "text": " whole thing "}`}}
	tr := newTestTranscriber(fake, 16)

	segs, err := tr.Transcribe(context.Background(), ai.TranscriptionRequest{
		Audio:    strings.NewReader("abc"),
		FileName: "x.ogg",
	})
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, "whole thing", segs[0].Text)
	assert.Equal(t, 6.0, segs[0].EndSec)
}

func TestClassifyTranscriptionError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"bad request", &goopenai.APIError{HTTPStatusCode: http.StatusBadRequest, Message: "invalid file"}, false},
		{"unauthorized", &goopenai.APIError{HTTPStatusCode: http.StatusUnauthorized}, false},
		{"request timeout", &goopenai.APIError{HTTPStatusCode: http.StatusRequestTimeout}, true},
		{"rate limited", &goopenai.APIError{HTTPStatusCode: http.StatusTooManyRequests}, true},
		{"server error", &goopenai.RequestError{HTTPStatusCode: http.StatusBadGateway, Err: errors.New("bad gateway")}, true},
		{"client request error", &goopenai.RequestError{HTTPStatusCode: http.StatusRequestEntityTooLarge, Err: errors.New("too big")}, false},
		{"deadline", fmt.Errorf("post: %w", context.DeadlineExceeded), true},
		{"unknown", errors.New("malformed media"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyTranscriptionError(tt.err)
			assert.ErrorIs(t, err, core.ErrTranscription)
			assert.Equal(t, tt.retryable, core.IsRetryable(err))
		})
	}
}

func TestTranscribe_PropagatesClassifiedError(t *testing.T) {
	fake := &fakeWhisper{err: &goopenai.APIError{HTTPStatusCode: http.StatusServiceUnavailable}}
	tr := newTestTranscriber(fake, 16)

	_, err := tr.Transcribe(context.Background(), ai.TranscriptionRequest{
		Audio:    strings.NewReader("abc"),
		FileName: "x.mp3",
	})
	require.ErrorIs(t, err, core.ErrTranscription)
	assert.True(t, core.IsRetryable(err))
}

func TestConfidenceFromLogprob(t *testing.T) {
	assert.Nil(t, confidenceFromLogprob(0))
	assert.Nil(t, confidenceFromLogprob(math.NaN()))

	c := confidenceFromLogprob(-0.693147)
	require.NotNil(t, c)
	assert.InDelta(t, 0.5, *c, 1e-4)

	c = confidenceFromLogprob(0.5)
	require.NotNil(t, c)
	assert.Equal(t, 1.0, *c)
}
