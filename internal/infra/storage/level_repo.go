package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// LevelRepository mirrors level source files into SQLite so a deployment can
// inspect and restore the levels it actually ran, independent of the files
// on disk.
type LevelRepository struct {
	db *sql.DB
}

// NewLevelRepository creates the level repository.
func NewLevelRepository(db *sql.DB) *LevelRepository {
	return &LevelRepository{db: db}
}

// SaveLevel upserts a level's raw source.
func (r *LevelRepository) SaveLevel(name string, data []byte) error {
	query := `
		INSERT INTO levels (name, data, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			data=excluded.data,
			updated_at=excluded.updated_at
	`
	_, err := r.db.Exec(query, name, data, time.Now())
	if err != nil {
		return fmt.Errorf("failed to save level %q: %w", name, err)
	}
	return nil
}

// LoadLevel returns a level's raw source, or nil when not mirrored.
func (r *LevelRepository) LoadLevel(name string) ([]byte, error) {
	var data []byte
	err := r.db.QueryRow(`SELECT data FROM levels WHERE name = ?`, name).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load level %q: %w", name, err)
	}
	return data, nil
}

// ListLevels returns the names of all mirrored levels.
func (r *LevelRepository) ListLevels() ([]string, error) {
	rows, err := r.db.Query(`SELECT name FROM levels ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
