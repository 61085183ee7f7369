package ai

import (
	"path/filepath"
	"slices"
	"strings"
)

// SplittableFormats lists formats the transcriber can cut into windows
// that decode on their own: frame streams are cut at frame headers and
// PCM WAV at sample frames. Anything else must fit in one request.
var SplittableFormats = []string{
	"aac",
	"mp3",
	"mpga",
	"wav",
}

// IsSplittable reports whether format may be sent in several windows.
func IsSplittable(format string) bool {
	return slices.Contains(SplittableFormats, strings.ToLower(format))
}

// FormatFromFileName returns the lowercase extension of name without the dot.
func FormatFromFileName(name string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
}

// contentTypeFormats maps sniffed MIME types to transcription formats.
var contentTypeFormats = map[string]string{
	"audio/mpeg":       "mp3",
	"audio/aac":        "aac",
	"audio/x-wav":      "wav",
	"audio/wav":        "wav",
	"audio/ogg":        "ogg",
	"audio/opus":       "ogg",
	"audio/x-flac":     "flac",
	"audio/flac":       "flac",
	"audio/mp4":        "m4a",
	"audio/x-m4a":      "m4a",
	"audio/amr":        "amr",
	"video/mp4":        "mp4",
	"video/webm":       "webm",
	"video/quicktime":  "mov",
	"video/x-matroska": "mkv",
	"video/mpeg":       "mpeg",
}

// FormatFromContentType returns the transcription format for a MIME type,
// or "" when it is not known.
func FormatFromContentType(contentType string) string {
	ct, _, _ := strings.Cut(strings.ToLower(contentType), ";")
	return contentTypeFormats[strings.TrimSpace(ct)]
}
