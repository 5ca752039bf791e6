package pipeline

import "math"

// Phase identifies the pipeline stage a file is currently in.
type Phase string

const (
	PhaseWaiting         Phase = "waiting"
	PhaseAudioConversion Phase = "audio_conversion"
	PhaseAudioConcat     Phase = "audio_concat"
	PhaseTextGeneration  Phase = "text_generation"
	PhaseCompleted       Phase = "completed"
)

// Status is the user-facing lifecycle of one file.
type Status string

const (
	StatusWaiting      Status = "waiting"
	StatusConverting   Status = "converting"
	StatusTranscribing Status = "transcribing"
	StatusCompleted    Status = "completed"
	StatusError        Status = "error"
)

// SegmentState is the lifecycle of one conversion segment.
type SegmentState string

const (
	SegmentPending    SegmentState = "pending"
	SegmentConverting SegmentState = "converting"
	SegmentCompleted  SegmentState = "completed"
	SegmentError      SegmentState = "error"
)

// Segment is one fixed-length time window of a file's media stream. The
// planned sequence is fixed and ordered; segment i is attempted only after
// every segment before it has completed.
type Segment struct {
	Index        int
	StartSeconds float64
	EndSeconds   float64
	State        SegmentState
	Progress     float64
}

// FileStatus is the resumable processing state for one file.
type FileStatus struct {
	FileIndex int
	FileName  string

	Phase  Phase
	Status Status

	Segments          []Segment
	CompletedSegments map[int]struct{}
	SegmentPaths      []string
	AudioProgress     float64

	// ConvertedAudioPath is set once conversion (or the audio-input skip
	// path) finishes; its presence means a resume bypasses conversion.
	ConvertedAudioPath string

	TotalGenerations int
	GenerationCount  int
	CompletedPrompts map[string]struct{}

	ErrorMessage string
	FailedPhase  Phase
	IsResuming   bool
}

func newFileStatus(index int, name string) FileStatus {
	return FileStatus{
		FileIndex:         index,
		FileName:          name,
		Phase:             PhaseWaiting,
		Status:            StatusWaiting,
		CompletedSegments: make(map[int]struct{}),
		CompletedPrompts:  make(map[string]struct{}),
	}
}

// Clone deep-copies the status so snapshots never alias tracker state.
func (s FileStatus) Clone() FileStatus {
	clone := s
	clone.Segments = make([]Segment, len(s.Segments))
	copy(clone.Segments, s.Segments)
	clone.SegmentPaths = make([]string, len(s.SegmentPaths))
	copy(clone.SegmentPaths, s.SegmentPaths)
	clone.CompletedSegments = make(map[int]struct{}, len(s.CompletedSegments))
	for k := range s.CompletedSegments {
		clone.CompletedSegments[k] = struct{}{}
	}
	clone.CompletedPrompts = make(map[string]struct{}, len(s.CompletedPrompts))
	for k := range s.CompletedPrompts {
		clone.CompletedPrompts[k] = struct{}{}
	}
	return clone
}

// PendingPrompts returns the selected prompt ids that have not completed yet,
// preserving selection order.
func (s FileStatus) PendingPrompts(selected []string) []string {
	pending := make([]string, 0, len(selected))
	for _, id := range selected {
		if _, done := s.CompletedPrompts[id]; !done {
			pending = append(pending, id)
		}
	}
	return pending
}

// SegmentsCompleted reports whether every planned segment has converted.
func (s FileStatus) SegmentsCompleted() bool {
	if len(s.Segments) == 0 {
		return false
	}
	return len(s.CompletedSegments) == len(s.Segments)
}

// aggregateProgress computes the file-level conversion percentage: completed
// segments contribute 100, the converting segment its own progress, pending
// segments 0; the average is rounded to one decimal place.
func aggregateProgress(segments []Segment) float64 {
	if len(segments) == 0 {
		return 0
	}
	var total float64
	for _, segment := range segments {
		switch segment.State {
		case SegmentCompleted:
			total += 100
		case SegmentConverting:
			total += segment.Progress
		}
	}
	return math.Round(total/float64(len(segments))*10) / 10
}
