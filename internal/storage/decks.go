package storage

import (
	"database/sql"
	"fmt"

	"github.com/pkeogan/memosync/internal/domain"
)

const deckColumns = `id, name, group_name, created_at, updated_at, synced, deleted`

func scanDeck(row scanner) (*domain.Deck, error) {
	var d domain.Deck
	var synced, deleted int
	err := row.Scan(&d.ID, &d.Name, &d.Group, &d.CreatedAt, &d.UpdatedAt, &synced, &deleted)
	if err != nil {
		return nil, err
	}
	d.Synced = synced == 1
	d.Deleted = deleted == 1
	return &d, nil
}

// InsertDeck inserts a new deck.
func (db *DB) InsertDeck(d *domain.Deck) error {
	_, err := db.conn.Exec(`
		INSERT INTO decks (`+deckColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.Name, d.Group, d.CreatedAt, d.UpdatedAt, boolToInt(d.Synced), boolToInt(d.Deleted))
	if err != nil {
		return fmt.Errorf("failed to insert deck %s: %w", d.ID, err)
	}
	return nil
}

// PutDeck writes a deck by id, replacing any existing row.
func (db *DB) PutDeck(d *domain.Deck) error {
	_, err := db.conn.Exec(`
		INSERT OR REPLACE INTO decks (`+deckColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.Name, d.Group, d.CreatedAt, d.UpdatedAt, boolToInt(d.Synced), boolToInt(d.Deleted))
	if err != nil {
		return fmt.Errorf("failed to put deck %s: %w", d.ID, err)
	}
	return nil
}

// GetDeck retrieves a deck by id, including tombstones. Returns (nil, nil)
// when no row exists.
func (db *DB) GetDeck(id string) (*domain.Deck, error) {
	row := db.conn.QueryRow(`SELECT `+deckColumns+` FROM decks WHERE id = ?`, id)
	d, err := scanDeck(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get deck %s: %w", id, err)
	}
	return d, nil
}

// GetDeckByName retrieves a non-deleted deck by name. Returns (nil, nil)
// when no such deck exists.
func (db *DB) GetDeckByName(name string) (*domain.Deck, error) {
	row := db.conn.QueryRow(`SELECT `+deckColumns+` FROM decks WHERE deleted = 0 AND name = ?`, name)
	d, err := scanDeck(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get deck by name %s: %w", name, err)
	}
	return d, nil
}

func (db *DB) queryDecks(query string, args ...any) ([]domain.Deck, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var decks []domain.Deck
	for rows.Next() {
		d, err := scanDeck(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deck row: %w", err)
		}
		decks = append(decks, *d)
	}
	return decks, rows.Err()
}

// ListDecks returns all non-deleted decks in storage order.
func (db *DB) ListDecks() ([]domain.Deck, error) {
	decks, err := db.queryDecks(`SELECT ` + deckColumns + ` FROM decks WHERE deleted = 0 ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to list decks: %w", err)
	}
	return decks, nil
}

// UnsyncedDecks returns every deck that has diverged from the last known
// remote state, tombstones included.
func (db *DB) UnsyncedDecks() ([]domain.Deck, error) {
	decks, err := db.queryDecks(`SELECT ` + deckColumns + ` FROM decks WHERE synced = 0 ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to list unsynced decks: %w", err)
	}
	return decks, nil
}

// MarkDecksSynced flips synced on exactly the given ids.
func (db *DB) MarkDecksSynced(ids []string) error {
	for _, id := range ids {
		if _, err := db.conn.Exec(`UPDATE decks SET synced = 1 WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to mark deck %s synced: %w", id, err)
		}
	}
	return nil
}

// MarkDeckDirty stamps a deck as locally modified: synced=0, updated_at=now.
func (db *DB) MarkDeckDirty(id, now string) error {
	_, err := db.conn.Exec(`UPDATE decks SET synced = 0, updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return fmt.Errorf("failed to mark deck %s dirty: %w", id, err)
	}
	return nil
}

// SoftDeleteDeck turns a deck into a tombstone.
func (db *DB) SoftDeleteDeck(id, now string) error {
	_, err := db.conn.Exec(`UPDATE decks SET deleted = 1, synced = 0, updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return fmt.Errorf("failed to soft-delete deck %s: %w", id, err)
	}
	return nil
}

// HardDeleteDeck removes a deck row entirely.
func (db *DB) HardDeleteDeck(id string) error {
	_, err := db.conn.Exec(`DELETE FROM decks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete deck %s: %w", id, err)
	}
	return nil
}
