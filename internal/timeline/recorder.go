package timeline

import "errors"

// ErrRecordingActive signals Begin while a segment is still open. Like
// ErrAlreadySealed this indicates a scheduler ordering bug: only one live
// player exists, so at most one segment may be open.
var ErrRecordingActive = errors.New("a segment is already being recorded")

// Recorder captures the live player's tick-by-tick state into an append-only
// segment while the player is inside an active loop. Recording is
// unconditionally chronological; there is no seeking and no rewriting.
type Recorder struct {
	open *Segment
}

// NewRecorder creates an idle recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Recording reports whether a segment is open.
func (r *Recorder) Recording() bool {
	return r.open != nil
}

// Open returns the segment currently being recorded, if any.
func (r *Recorder) Open() (*Segment, bool) {
	return r.open, r.open != nil
}

// Begin starts a new segment for the named loop elevator.
func (r *Recorder) Begin(loopID string, startTick uint64) (*Segment, error) {
	if r.open != nil {
		return nil, ErrRecordingActive
	}
	r.open = newSegment(loopID, startTick)
	return r.open, nil
}

// Record appends the live player's state for the current tick. Recording
// while no segment is open is a no-op: the player is outside any loop.
func (r *Recorder) Record(snap Snapshot) {
	if r.open == nil {
		return
	}
	r.open.append(snap)
}

// Seal freezes the open segment and returns it. The recorder goes idle.
// Sealing with no open segment, or a segment sealed through another path,
// fails with ErrAlreadySealed.
func (r *Recorder) Seal() (*Segment, error) {
	if r.open == nil {
		return nil, ErrAlreadySealed
	}
	seg := r.open
	r.open = nil
	if err := seg.seal(); err != nil {
		return nil, err
	}
	return seg, nil
}

// Discard drops the open segment without sealing it. Used on level reset.
func (r *Recorder) Discard() {
	r.open = nil
}
