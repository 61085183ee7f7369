package openai

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/poiesic/voicevault/core"
)

// splitter cuts an audio stream into request-sized windows that each
// decode on their own. next returns io.EOF once the stream is exhausted.
// A returned window is only valid until the following call to next.
type splitter interface {
	next() ([]byte, error)
}

// newSplitter picks the windowing strategy for format.
func newSplitter(format string, r io.Reader, max int64) splitter {
	switch strings.ToLower(format) {
	case "mp3", "mpga":
		return &frameSplitter{r: r, max: max, isSync: mpegSync}
	case "aac":
		return &frameSplitter{r: r, max: max, isSync: adtsSync}
	case "wav":
		return &wavSplitter{r: r, max: max, format: format}
	default:
		return &wholeSplitter{r: r, max: max, format: format}
	}
}

// fill appends up to n bytes of r to buf. The buffer grows only as data
// arrives, so short recordings never allocate a full window. eof reports
// that r ended before n bytes were read.
func fill(r io.Reader, buf []byte, n int64) ([]byte, bool, error) {
	b := bytes.NewBuffer(buf)
	m, err := b.ReadFrom(io.LimitReader(r, n))
	if err != nil {
		return b.Bytes(), false, fmt.Errorf("%w: reading audio: %w", core.ErrTranscription, err)
	}
	return b.Bytes(), m < n, nil
}

// wholeSplitter sends a stream that cannot be cut as a single window.
type wholeSplitter struct {
	r      io.Reader
	max    int64
	format string
	done   bool
}

func (s *wholeSplitter) next() ([]byte, error) {
	if s.done {
		return nil, io.EOF
	}
	s.done = true

	data, eof, err := fill(s.r, nil, s.max)
	if err != nil {
		return nil, err
	}
	if !eof {
		var extra [1]byte
		if n, _ := io.ReadFull(s.r, extra[:]); n > 0 {
			return nil, fmt.Errorf("%w: %s audio exceeds %d bytes and cannot be split",
				core.ErrTranscription, s.format, s.max)
		}
	}
	if len(data) == 0 {
		return nil, io.EOF
	}
	return data, nil
}

// frameSplitter cuts self-synchronising frame streams (MPEG audio, ADTS)
// at the last frame header inside each window. The bytes after the cut are
// carried into the next window.
type frameSplitter struct {
	r      io.Reader
	max    int64
	isSync func([]byte) bool
	buf    []byte
	carry  []byte
	eof    bool
}

func (s *frameSplitter) next() ([]byte, error) {
	s.buf = append(s.buf[:0], s.carry...)
	s.carry = s.carry[:0]
	if !s.eof {
		var err error
		s.buf, s.eof, err = fill(s.r, s.buf, s.max-int64(len(s.buf)))
		if err != nil {
			return nil, err
		}
	}
	if len(s.buf) == 0 {
		return nil, io.EOF
	}
	if s.eof {
		return s.buf, nil
	}

	cut := lastSync(s.buf, s.isSync)
	if cut <= 0 {
		cut = len(s.buf)
	}
	s.carry = append(s.carry, s.buf[cut:]...)
	return s.buf[:cut], nil
}

// lastSync returns the offset of the last frame header in data, or -1.
func lastSync(data []byte, isSync func([]byte) bool) int {
	for i := len(data) - 4; i > 0; i-- {
		if isSync(data[i:]) {
			return i
		}
	}
	return -1
}

// mpegSync matches an MPEG audio frame header with a valid version, layer,
// bitrate and sample rate.
func mpegSync(b []byte) bool {
	if len(b) < 4 || b[0] != 0xFF || b[1]&0xE0 != 0xE0 {
		return false
	}
	version := (b[1] >> 3) & 0x03
	layer := (b[1] >> 1) & 0x03
	bitrate := b[2] >> 4
	rate := (b[2] >> 2) & 0x03
	return version != 0x01 && layer != 0 && bitrate != 0x0F && bitrate != 0 && rate != 0x03
}

// adtsSync matches an ADTS header with layer 0 and a known sampling index.
func adtsSync(b []byte) bool {
	if len(b) < 4 || b[0] != 0xFF || b[1]&0xF6 != 0xF0 {
		return false
	}
	return (b[2]>>2)&0x0F < 13
}

// wavSplitter sends PCM WAV in windows of whole sample frames, each behind
// a rebuilt RIFF header. A file that fits in one window is sent unchanged.
type wavSplitter struct {
	r      io.Reader
	max    int64
	format string

	started bool
	single  bool
	pcm     io.Reader
	fmtBody []byte
	align   int64
	buf     []byte
}

func (s *wavSplitter) next() ([]byte, error) {
	if s.single {
		return nil, io.EOF
	}
	if !s.started {
		s.started = true
		data, eof, err := fill(s.r, nil, s.max)
		if err != nil {
			return nil, err
		}
		if eof {
			if len(data) == 0 {
				return nil, io.EOF
			}
			s.single = true
			return data, nil
		}
		if err := s.parseHeader(data); err != nil {
			return nil, err
		}
	}

	hdr := wavHeaderLen(s.fmtBody)
	per := (s.max - int64(hdr)) / s.align * s.align
	if per <= 0 {
		return nil, fmt.Errorf("%w: %s block of %d bytes does not fit a %d byte window",
			core.ErrTranscription, s.format, s.align, s.max)
	}

	s.buf = append(s.buf[:0], make([]byte, hdr)...)
	var err error
	s.buf, _, err = fill(s.pcm, s.buf, per)
	if err != nil {
		return nil, err
	}
	n := int64(len(s.buf)-hdr) / s.align * s.align
	if n == 0 {
		return nil, io.EOF
	}
	s.buf = s.buf[:hdr+int(n)]
	putWavHeader(s.buf, s.fmtBody, uint32(n))
	return s.buf, nil
}

// parseHeader locates the fmt and data chunks in the head of the file and
// prepares s.pcm to stream the sample data that follows.
func (s *wavSplitter) parseHeader(head []byte) error {
	bad := func(msg string) error {
		return fmt.Errorf("%w: %s audio exceeds %d bytes and %s", core.ErrTranscription, s.format, s.max, msg)
	}
	if len(head) < 12 || string(head[0:4]) != "RIFF" || string(head[8:12]) != "WAVE" {
		return bad("is not a RIFF/WAVE file")
	}

	pos := 12
	for pos+8 <= len(head) {
		id := string(head[pos : pos+4])
		size := int64(binary.LittleEndian.Uint32(head[pos+4 : pos+8]))
		body := pos + 8

		switch id {
		case "fmt ":
			if size < 16 || int64(body)+size > int64(len(head)) {
				return bad("has a truncated fmt chunk")
			}
			s.fmtBody = bytes.Clone(head[body : body+int(size)])
			s.align = int64(binary.LittleEndian.Uint16(s.fmtBody[12:14]))
			if s.align == 0 {
				return bad("declares a zero block size")
			}
		case "data":
			if s.fmtBody == nil {
				return bad("has no fmt chunk before its data")
			}
			var pcm io.Reader = io.MultiReader(bytes.NewReader(bytes.Clone(head[body:])), s.r)
			// Streamed writers leave the size at 0 or 0xFFFFFFFF.
			if size > 0 && size < 0xFFFFFFFF {
				pcm = io.LimitReader(pcm, size)
			}
			s.pcm = pcm
			return nil
		}

		next := int64(body) + size + size%2
		if next > int64(len(head)) {
			break
		}
		pos = int(next)
	}
	return bad("has no data chunk in its first window")
}

// wavHeaderLen is the size of the RIFF, fmt and data headers written by
// putWavHeader.
func wavHeaderLen(fmtBody []byte) int {
	return 12 + 8 + len(fmtBody) + len(fmtBody)%2 + 8
}

// putWavHeader writes a canonical header for n bytes of samples into the
// first wavHeaderLen(fmtBody) bytes of buf.
func putWavHeader(buf, fmtBody []byte, n uint32) {
	hdr := wavHeaderLen(fmtBody)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(hdr-8)+n)
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(fmtBody)))
	pos := 20 + copy(buf[20:], fmtBody)
	if len(fmtBody)%2 == 1 {
		buf[pos] = 0
		pos++
	}
	copy(buf[pos:pos+4], "data")
	binary.LittleEndian.PutUint32(buf[pos+4:pos+8], n)
}
