// Package media classifies input files as directly-usable audio or as video
// that requires conversion.
package media

import (
	"path/filepath"
	"strings"
)

// Kind identifies how the pipeline must treat an input file. It is captured
// once when the file unit is created and never re-derived afterwards.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// Audio formats the generation service accepts without conversion.
var audioExtensions = map[string]struct{}{
	".mp3":  {},
	".wav":  {},
	".m4a":  {},
	".aac":  {},
	".ogg":  {},
	".opus": {},
	".flac": {},
}

// Detect classifies a file by declared MIME type first, falling back to the
// filename extension allow-list. Anything not recognized as audio is treated
// as video and routed through conversion.
func Detect(path, mimeType string) Kind {
	mime := strings.ToLower(strings.TrimSpace(mimeType))
	if strings.HasPrefix(mime, "audio/") {
		return KindAudio
	}
	if strings.HasPrefix(mime, "video/") {
		return KindVideo
	}
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := audioExtensions[ext]; ok {
		return KindAudio
	}
	return KindVideo
}

// IsAudioExtension reports whether ext (with or without leading dot) is in the
// directly-usable audio allow-list.
func IsAudioExtension(ext string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(ext))
	if trimmed == "" {
		return false
	}
	if !strings.HasPrefix(trimmed, ".") {
		trimmed = "." + trimmed
	}
	_, ok := audioExtensions[trimmed]
	return ok
}
