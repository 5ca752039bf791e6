package pipeline

import "sync"

// Tracker owns the per-file status slice for one batch. All mutation goes
// through Update, which applies a pure function of the previous state under a
// lock so near-simultaneous prompt completions compose instead of overwrite.
type Tracker struct {
	mu       sync.Mutex
	statuses []FileStatus
}

// NewTracker creates waiting statuses for every file in batch order.
func NewTracker(files []FileUnit) *Tracker {
	statuses := make([]FileStatus, len(files))
	for i, file := range files {
		statuses[i] = newFileStatus(i, file.Name)
	}
	return &Tracker{statuses: statuses}
}

// Reset discards all per-file state and starts every file over at waiting.
func (t *Tracker) Reset(files []FileUnit) {
	t.mu.Lock()
	defer t.mu.Unlock()
	statuses := make([]FileStatus, len(files))
	for i, file := range files {
		statuses[i] = newFileStatus(i, file.Name)
	}
	t.statuses = statuses
}

// Len returns the number of tracked files.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.statuses)
}

// Get returns a snapshot of one file's status.
func (t *Tracker) Get(index int) (FileStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if index < 0 || index >= len(t.statuses) {
		return FileStatus{}, false
	}
	return t.statuses[index].Clone(), true
}

// Snapshot returns copies of every file status in batch order.
func (t *Tracker) Snapshot() []FileStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]FileStatus, len(t.statuses))
	for i := range t.statuses {
		out[i] = t.statuses[i].Clone()
	}
	return out
}

// Update applies fn to a snapshot of the previous state and stores the
// result. Completion bookkeeping is monotonic: an update can add completed
// segments or prompts but can never remove ones recorded by a concurrent
// sibling, and the generation counter always mirrors the completion set.
func (t *Tracker) Update(index int, fn func(FileStatus) FileStatus) (FileStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if index < 0 || index >= len(t.statuses) {
		return FileStatus{}, false
	}
	prev := t.statuses[index]
	next := fn(prev.Clone())

	for k := range prev.CompletedSegments {
		next.CompletedSegments[k] = struct{}{}
	}
	for k := range prev.CompletedPrompts {
		next.CompletedPrompts[k] = struct{}{}
	}
	next.GenerationCount = len(next.CompletedPrompts)

	t.statuses[index] = next
	return next.Clone(), true
}

// BeginResume atomically flips the reentrancy guard for one file. It returns
// false when the index is unknown or a resume is already in flight.
func (t *Tracker) BeginResume(index int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if index < 0 || index >= len(t.statuses) {
		return false
	}
	if t.statuses[index].IsResuming {
		return false
	}
	t.statuses[index].IsResuming = true
	return true
}

// EndResume clears the reentrancy guard.
func (t *Tracker) EndResume(index int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if index < 0 || index >= len(t.statuses) {
		return
	}
	t.statuses[index].IsResuming = false
}
