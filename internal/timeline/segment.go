// Package timeline provides the append-only recording of the live player's
// per-tick state and the sealed, immutable segments replayed by replicas.
// This is the engine's source of truth for time travel: a replica is nothing
// but a read-only cursor over a sealed segment.
package timeline

import (
	"errors"

	"github.com/hourglass-games/timelift/server/internal/domain/level"
)

// ErrAlreadySealed signals a second seal of the same segment. This is a
// scheduler ordering bug, not a level-content problem; callers treat it as a
// fatal precondition violation.
var ErrAlreadySealed = errors.New("segment already sealed")

// Snapshot is one recorded tick of the live player.
type Snapshot struct {
	Pos    level.GridPos   `json:"pos"`
	Facing level.Direction `json:"facing"`
	Action level.Action    `json:"action"`
}

// runThreshold is the repetition count at which a trailing run inside a
// variable record is split off into a constant record.
const runThreshold = 5

// record is a run-length chunk of a segment: either a constant run of one
// snapshot or a literal list.
type record struct {
	Start    int
	Constant bool
	Value    Snapshot   // Constant only
	Count    int        // Constant only
	Values   []Snapshot // !Constant only
}

func (r *record) len() int {
	if r.Constant {
		return r.Count
	}
	return len(r.Values)
}

func (r *record) at(i int) Snapshot {
	if r.Constant {
		return r.Value
	}
	return r.Values[i]
}

// Segment is an ordered recording of one traversal through a loop. It is
// exclusively appended to while open and becomes immutable once sealed;
// multiple replicas may then read it concurrently.
type Segment struct {
	loopID    string
	startTick uint64
	records   []record
	length    int
	sealed    bool
}

// newSegment starts an open segment for the named loop elevator.
func newSegment(loopID string, startTick uint64) *Segment {
	return &Segment{loopID: loopID, startTick: startTick}
}

// Restore rebuilds a sealed segment from decoded parts. Used by the codec
// and the storage layer; gameplay code obtains segments from the Recorder.
func Restore(loopID string, startTick uint64, snaps []Snapshot) *Segment {
	s := newSegment(loopID, startTick)
	for _, snap := range snaps {
		s.append(snap)
	}
	s.sealed = true
	return s
}

// LoopID names the loop elevator this traversal was recorded for.
func (s *Segment) LoopID() string { return s.loopID }

// StartTick is the engine tick at which recording began.
func (s *Segment) StartTick() uint64 { return s.startTick }

// Len is the number of recorded ticks.
func (s *Segment) Len() int { return s.length }

// Sealed reports whether the segment is immutable.
func (s *Segment) Sealed() bool { return s.sealed }

// At returns the snapshot for tick offset i (0-based), or false when i is out
// of range.
func (s *Segment) At(i int) (Snapshot, bool) {
	if i < 0 || i >= s.length {
		return Snapshot{}, false
	}
	// Records are contiguous: binary search by start offset.
	lo, hi := 0, len(s.records)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if s.records[mid].Start <= i {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	r := &s.records[lo]
	return r.at(i - r.Start), true
}

// Snapshots expands the segment into a flat slice, oldest first.
func (s *Segment) Snapshots() []Snapshot {
	out := make([]Snapshot, 0, s.length)
	for i := 0; i < s.length; i++ {
		snap, _ := s.At(i)
		out = append(out, snap)
	}
	return out
}

// append adds one tick. Runs of identical snapshots collapse into constant
// records once they pass runThreshold, so a player idling on a cell costs
// O(1) memory per run instead of per tick.
func (s *Segment) append(snap Snapshot) {
	defer func() { s.length++ }()

	if len(s.records) == 0 {
		s.records = append(s.records, record{Start: 0, Constant: true, Value: snap, Count: 1})
		return
	}

	last := &s.records[len(s.records)-1]
	if last.Constant {
		if last.Value == snap {
			last.Count++
			return
		}
		if last.Count == 1 {
			// Degrade the single-entry constant into a literal run.
			*last = record{Start: last.Start, Values: []Snapshot{last.Value, snap}}
			return
		}
		s.records = append(s.records, record{Start: s.length, Constant: true, Value: snap, Count: 1})
		return
	}

	// Literal record: split off a constant run once the tail repeats enough.
	run := 1
	for i := len(last.Values) - 1; i >= 0 && last.Values[i] == snap; i-- {
		run++
	}
	if run >= runThreshold {
		tail := run - 1
		if tail == len(last.Values) {
			*last = record{Start: last.Start, Constant: true, Value: snap, Count: run}
			return
		}
		last.Values = last.Values[:len(last.Values)-tail]
		s.records = append(s.records, record{Start: s.length - tail, Constant: true, Value: snap, Count: run})
		return
	}
	last.Values = append(last.Values, snap)
}

// seal freezes the segment. Sealing twice fails with ErrAlreadySealed.
func (s *Segment) seal() error {
	if s.sealed {
		return ErrAlreadySealed
	}
	s.sealed = true
	return nil
}
