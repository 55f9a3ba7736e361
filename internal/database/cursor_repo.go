package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mixelka/otprelay/pkg/models"
)

// ErrNotFound is returned when a record is not found
var ErrNotFound = errors.New("record not found")

// LoadCursor returns the saved cursor for a source
func (db *DB) LoadCursor(ctx context.Context, source string) (models.Cursor, error) {
	var cursor models.Cursor
	query := `SELECT source, history_id FROM source_cursors WHERE source = ?`
	err := db.GetContext(ctx, &cursor, query, source)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Cursor{}, ErrNotFound
	}
	if err != nil {
		return models.Cursor{}, fmt.Errorf("failed to load cursor: %w", err)
	}
	return cursor, nil
}

// SaveCursor upserts the cursor for its source
func (db *DB) SaveCursor(ctx context.Context, cursor models.Cursor) error {
	query := `
		INSERT INTO source_cursors (source, history_id, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(source) DO UPDATE SET history_id = excluded.history_id, updated_at = excluded.updated_at
	`
	if _, err := db.ExecContext(ctx, query, cursor.Source, cursor.HistoryID, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	return nil
}

// ListCursors returns all saved cursors ordered by source
func (db *DB) ListCursors(ctx context.Context) ([]models.Cursor, error) {
	var cursors []models.Cursor
	query := `SELECT source, history_id FROM source_cursors ORDER BY source`
	if err := db.SelectContext(ctx, &cursors, query); err != nil {
		return nil, fmt.Errorf("failed to list cursors: %w", err)
	}
	return cursors, nil
}
