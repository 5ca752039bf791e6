package docstore

import "time"

// Document is one AI-generated text artifact: the result of applying one
// prompt against one file's converted audio (or raw video) blob.
type Document struct {
	ID          int64
	BatchID     string
	FileName    string
	PromptID    string
	PromptName  string
	MediaKind   string
	BitrateKbps int
	SampleRate  int
	Body        string
	CreatedAt   time.Time
}
