package pipeline

import (
	"path/filepath"

	"soundscribe/internal/media"
)

// FileUnit is one user-submitted input plus the prompt selection applied to
// it. It is immutable once a batch starts: the prompt selection is a
// snapshot, and the media kind is captured here rather than re-derived later.
type FileUnit struct {
	Name      string
	Path      string
	MIMEType  string
	Kind      media.Kind
	PromptIDs []string
}

// NewFileUnit builds a FileUnit for a batch, classifying the media kind once
// at creation time.
func NewFileUnit(path, mimeType string, promptIDs []string) FileUnit {
	ids := make([]string, len(promptIDs))
	copy(ids, promptIDs)
	return FileUnit{
		Name:      filepath.Base(path),
		Path:      path,
		MIMEType:  mimeType,
		Kind:      media.Detect(path, mimeType),
		PromptIDs: ids,
	}
}
