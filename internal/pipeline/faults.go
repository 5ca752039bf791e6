package pipeline

import (
	"errors"
	"sync/atomic"
)

// ErrInjected marks deterministic failures produced by a FaultPolicy.
var ErrInjected = errors.New("injected failure")

// FaultPolicy deterministically fails specific units of work so the failure
// and resume paths can be exercised without flaky external collaborators. A
// nil policy injects nothing. MaxTriggers limits how many times the fault
// fires (0 means every time), which lets a resume succeed where the first
// attempt was made to fail.
type FaultPolicy struct {
	InjectConversionError bool
	InjectGenerationError bool
	AtFileIndex           int
	AtSegmentIndex        int
	MaxTriggers           int

	triggered atomic.Int32
}

// FailsConversion reports whether converting the given segment of the given
// file should fail.
func (p *FaultPolicy) FailsConversion(fileIndex, segmentIndex int) bool {
	if p == nil || !p.InjectConversionError {
		return false
	}
	if p.AtFileIndex != fileIndex || p.AtSegmentIndex != segmentIndex {
		return false
	}
	return p.arm()
}

// FailsGeneration reports whether generation for the given file should fail
// before any call is issued.
func (p *FaultPolicy) FailsGeneration(fileIndex int) bool {
	if p == nil || !p.InjectGenerationError {
		return false
	}
	if p.AtFileIndex != fileIndex {
		return false
	}
	return p.arm()
}

func (p *FaultPolicy) arm() bool {
	if p.MaxTriggers <= 0 {
		return true
	}
	return p.triggered.Add(1) <= int32(p.MaxTriggers)
}
