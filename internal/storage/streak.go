package storage

import (
	"database/sql"
	"fmt"
)

// Streak returns the study streak: the last study date (YYYY-MM-DD) and the
// consecutive-day count. An absent row reads as no streak.
func (db *DB) Streak() (lastDate string, count int, err error) {
	row := db.conn.QueryRow(`SELECT last_date, count FROM streak WHERE id = 1`)
	if err := row.Scan(&lastDate, &count); err != nil {
		if err == sql.ErrNoRows {
			return "", 0, nil
		}
		return "", 0, fmt.Errorf("failed to read streak: %w", err)
	}
	return lastDate, count, nil
}

// SetStreak records the study streak.
func (db *DB) SetStreak(lastDate string, count int) error {
	_, err := db.conn.Exec(`
		INSERT INTO streak (id, last_date, count) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET last_date = excluded.last_date, count = excluded.count
	`, lastDate, count)
	if err != nil {
		return fmt.Errorf("failed to write streak: %w", err)
	}
	return nil
}
