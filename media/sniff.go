package media

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	"github.com/poiesic/voicevault/core"
)

// sniffLen is the number of leading bytes filetype needs to match every
// known signature.
const sniffLen = 262

// allowedExtensions lists declared file name extensions accepted for upload.
var allowedExtensions = map[string]bool{
	"mp3":  true,
	"m4a":  true,
	"mp4":  true,
	"aac":  true,
	"wav":  true,
	"ogg":  true,
	"oga":  true,
	"opus": true,
	"flac": true,
	"webm": true,
	"mov":  true,
	"mkv":  true,
	"mpeg": true,
	"mpga": true,
	"mpg":  true,
	"amr":  true,
}

// allowedKinds lists sniffed filetype extensions accepted for upload.
// Opus and oga streams sniff as ogg.
var allowedKinds = map[string]bool{
	"mp3":  true,
	"m4a":  true,
	"mp4":  true,
	"aac":  true,
	"wav":  true,
	"ogg":  true,
	"flac": true,
	"webm": true,
	"mov":  true,
	"mkv":  true,
	"mpg":  true,
	"amr":  true,
}

// CheckDeclared rejects uploads whose declared name or content type is
// outside the audio/video allow-list. A name without an extension falls
// back to the content type.
func CheckDeclared(fileName, contentType string) error {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(fileName)), ".")
	if ext != "" {
		if !allowedExtensions[ext] {
			return fmt.Errorf("%w: extension %q", core.ErrUnsupportedMediaType, ext)
		}
		return nil
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return fmt.Errorf("%w: content type %q", core.ErrUnsupportedMediaType, contentType)
	}
	if !strings.HasPrefix(mediaType, "audio/") && !strings.HasPrefix(mediaType, "video/") {
		return fmt.Errorf("%w: content type %q", core.ErrUnsupportedMediaType, mediaType)
	}
	return nil
}

// Sniff reads the head of r and matches it against known signatures.
// It returns the detected kind and a reader that replays the sniffed bytes
// followed by the rest of r.
func Sniff(r io.Reader) (types.Type, io.Reader, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return types.Unknown, nil, fmt.Errorf("read upload head: %w", err)
	}
	head = head[:n]
	if len(head) == 0 {
		return types.Unknown, nil, fmt.Errorf("%w: empty upload", core.ErrUnsupportedMediaType)
	}

	kind, _ := filetype.Match(head)
	if kind == types.Unknown {
		return types.Unknown, nil, fmt.Errorf("%w: unrecognized content", core.ErrUnsupportedMediaType)
	}
	if !allowedKinds[kind.Extension] {
		return types.Unknown, nil, fmt.Errorf("%w: detected %s", core.ErrUnsupportedMediaType, kind.MIME.Value)
	}
	return kind, io.MultiReader(bytes.NewReader(head), r), nil
}

// limitReader fails once more than max bytes have been read. format is
// set when the limit comes from a format that cannot be split.
type limitReader struct {
	r      io.Reader
	max    int64
	format string
	read   int64
}

func (l *limitReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.read += int64(n)
	if l.read > l.max {
		if l.format != "" {
			return n, fmt.Errorf("%w: %s recordings over %d bytes cannot be transcribed", ErrTooLarge, l.format, l.max)
		}
		return n, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, l.max)
	}
	return n, err
}
