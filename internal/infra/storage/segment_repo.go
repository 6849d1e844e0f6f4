package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/hourglass-games/timelift/server/internal/timeline"
)

// SegmentRepository archives sealed timeline segments as compressed blobs.
// It implements engine.SegmentArchiver and the inspector's SegmentLister.
type SegmentRepository struct {
	db *sql.DB
}

// NewSegmentRepository creates the segment repository.
func NewSegmentRepository(db *sql.DB) *SegmentRepository {
	return &SegmentRepository{db: db}
}

// SaveSegment archives one sealed traversal for a level.
func (r *SegmentRepository) SaveSegment(levelName string, seg *timeline.Segment) error {
	data, err := timeline.EncodeSegment(seg)
	if err != nil {
		return fmt.Errorf("failed to encode segment: %w", err)
	}

	query := `
		INSERT INTO segments (level_name, loop_id, start_tick, length, data, saved_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.Exec(query, levelName, seg.LoopID(), seg.StartTick(), seg.Len(), data, time.Now())
	if err != nil {
		return fmt.Errorf("failed to save segment: %w", err)
	}
	return nil
}

// LoadSegments returns every archived traversal for a level, oldest first.
// The engine keeps only the newest per loop; ordering lets later rows win.
func (r *SegmentRepository) LoadSegments(levelName string) ([]*timeline.Segment, error) {
	query := `SELECT data FROM segments WHERE level_name = ? ORDER BY id ASC`
	rows, err := r.db.Query(query, levelName)
	if err != nil {
		return nil, fmt.Errorf("failed to query segments: %w", err)
	}
	defer rows.Close()

	var segs []*timeline.Segment
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		seg, err := timeline.DecodeSegment(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode segment: %w", err)
		}
		segs = append(segs, seg)
	}
	return segs, rows.Err()
}

// ListSegments returns archive metadata for a level without decoding blobs.
func (r *SegmentRepository) ListSegments(levelName string) ([]timeline.SegmentMeta, error) {
	query := `SELECT loop_id, start_tick, length, saved_at FROM segments WHERE level_name = ? ORDER BY id ASC`
	rows, err := r.db.Query(query, levelName)
	if err != nil {
		return nil, fmt.Errorf("failed to query segments: %w", err)
	}
	defer rows.Close()

	var metas []timeline.SegmentMeta
	for rows.Next() {
		m := timeline.SegmentMeta{Level: levelName}
		if err := rows.Scan(&m.LoopID, &m.StartTick, &m.Length, &m.SavedAt); err != nil {
			return nil, err
		}
		metas = append(metas, m)
	}
	return metas, rows.Err()
}

// DeleteSegments drops a level's archived history. Used on level reset so a
// restart does not bring the cleared loops back.
func (r *SegmentRepository) DeleteSegments(levelName string) error {
	_, err := r.db.Exec(`DELETE FROM segments WHERE level_name = ?`, levelName)
	return err
}
