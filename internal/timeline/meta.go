package timeline

import "time"

// SegmentMeta describes an archived segment without its snapshots. The
// storage layer produces these for the inspector API.
type SegmentMeta struct {
	Level     string    `json:"level"`
	LoopID    string    `json:"loop"`
	StartTick uint64    `json:"start_tick"`
	Length    int       `json:"length"`
	SavedAt   time.Time `json:"saved_at"`
}
