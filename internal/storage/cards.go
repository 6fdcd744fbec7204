package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pkeogan/memosync/internal/domain"
)

const cardColumns = `id, question, answer, question_image, answer_image, category,
	level, ease_factor, interval, repetitions, next_review, review_history,
	created_at, updated_at, synced, deleted`

type scanner interface {
	Scan(dest ...any) error
}

func scanCard(row scanner) (*domain.Card, error) {
	var c domain.Card
	var history string
	var synced, deleted int
	err := row.Scan(
		&c.ID, &c.Question, &c.Answer, &c.QuestionImage, &c.AnswerImage, &c.Category,
		&c.Level, &c.EaseFactor, &c.Interval, &c.Repetitions, &c.NextReview, &history,
		&c.CreatedAt, &c.UpdatedAt, &synced, &deleted,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(history), &c.ReviewHistory); err != nil {
		// Old or hand-edited rows may carry malformed history; start fresh
		// rather than refusing the whole record.
		c.ReviewHistory = []domain.ReviewEntry{}
	}
	c.Synced = synced == 1
	c.Deleted = deleted == 1
	return &c, nil
}

func marshalHistory(entries []domain.ReviewEntry) (string, error) {
	if entries == nil {
		entries = []domain.ReviewEntry{}
	}
	b, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("failed to serialize review history: %w", err)
	}
	return string(b), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// InsertCard inserts a new card.
func (db *DB) InsertCard(c *domain.Card) error {
	history, err := marshalHistory(c.ReviewHistory)
	if err != nil {
		return err
	}
	_, err = db.conn.Exec(`
		INSERT INTO cards (`+cardColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID, c.Question, c.Answer, c.QuestionImage, c.AnswerImage, c.Category,
		c.Level, c.EaseFactor, c.Interval, c.Repetitions, c.NextReview, history,
		c.CreatedAt, c.UpdatedAt, boolToInt(c.Synced), boolToInt(c.Deleted),
	)
	if err != nil {
		return fmt.Errorf("failed to insert card %s: %w", c.ID, err)
	}
	return nil
}

// PutCard writes a card by id, replacing any existing row. Used when applying
// remote-originated state and when importing a backup.
func (db *DB) PutCard(c *domain.Card) error {
	history, err := marshalHistory(c.ReviewHistory)
	if err != nil {
		return err
	}
	_, err = db.conn.Exec(`
		INSERT OR REPLACE INTO cards (`+cardColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID, c.Question, c.Answer, c.QuestionImage, c.AnswerImage, c.Category,
		c.Level, c.EaseFactor, c.Interval, c.Repetitions, c.NextReview, history,
		c.CreatedAt, c.UpdatedAt, boolToInt(c.Synced), boolToInt(c.Deleted),
	)
	if err != nil {
		return fmt.Errorf("failed to put card %s: %w", c.ID, err)
	}
	return nil
}

// UpdateCard rewrites all mutable fields of an existing card.
func (db *DB) UpdateCard(c *domain.Card) error {
	history, err := marshalHistory(c.ReviewHistory)
	if err != nil {
		return err
	}
	_, err = db.conn.Exec(`
		UPDATE cards
		SET question = ?, answer = ?, question_image = ?, answer_image = ?, category = ?,
		    level = ?, ease_factor = ?, interval = ?, repetitions = ?, next_review = ?,
		    review_history = ?, updated_at = ?, synced = ?, deleted = ?
		WHERE id = ?
	`,
		c.Question, c.Answer, c.QuestionImage, c.AnswerImage, c.Category,
		c.Level, c.EaseFactor, c.Interval, c.Repetitions, c.NextReview,
		history, c.UpdatedAt, boolToInt(c.Synced), boolToInt(c.Deleted), c.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update card %s: %w", c.ID, err)
	}
	return nil
}

// GetCard retrieves a card by id, including tombstones. Returns (nil, nil)
// when no row exists.
func (db *DB) GetCard(id string) (*domain.Card, error) {
	row := db.conn.QueryRow(`SELECT `+cardColumns+` FROM cards WHERE id = ?`, id)
	c, err := scanCard(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get card %s: %w", id, err)
	}
	return c, nil
}

func (db *DB) queryCards(query string, args ...any) ([]domain.Card, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cards []domain.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card row: %w", err)
		}
		cards = append(cards, *c)
	}
	return cards, rows.Err()
}

// ListCards returns all non-deleted cards in storage order.
func (db *DB) ListCards() ([]domain.Card, error) {
	cards, err := db.queryCards(`SELECT ` + cardColumns + ` FROM cards WHERE deleted = 0 ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	return cards, nil
}

// ListCardsByCategory returns all non-deleted cards in the given category.
func (db *DB) ListCardsByCategory(category string) ([]domain.Card, error) {
	cards, err := db.queryCards(
		`SELECT `+cardColumns+` FROM cards WHERE deleted = 0 AND category = ? ORDER BY rowid`, category)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards for category %s: %w", category, err)
	}
	return cards, nil
}

// DueCards returns all non-deleted cards whose next review is at or before
// now, in storage order. now is a local timestamp; date-only next_review
// values sort before it on the same day, so day-granularity cards count as
// due all day. No priority is implied; callers shuffle for a session.
func (db *DB) DueCards(now string) ([]domain.Card, error) {
	cards, err := db.queryCards(
		`SELECT `+cardColumns+` FROM cards WHERE deleted = 0 AND next_review != '' AND next_review <= ? ORDER BY rowid`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list due cards: %w", err)
	}
	return cards, nil
}

// UnsyncedCards returns every card whose local state has diverged from the
// last known remote state, tombstones included.
func (db *DB) UnsyncedCards() ([]domain.Card, error) {
	cards, err := db.queryCards(`SELECT ` + cardColumns + ` FROM cards WHERE synced = 0 ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to list unsynced cards: %w", err)
	}
	return cards, nil
}

// MarkCardsSynced flips synced on exactly the given ids.
func (db *DB) MarkCardsSynced(ids []string) error {
	for _, id := range ids {
		if _, err := db.conn.Exec(`UPDATE cards SET synced = 1 WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to mark card %s synced: %w", id, err)
		}
	}
	return nil
}

// MarkCardDirty stamps a card as locally modified: synced=0, updated_at=now.
func (db *DB) MarkCardDirty(id, now string) error {
	_, err := db.conn.Exec(`UPDATE cards SET synced = 0, updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return fmt.Errorf("failed to mark card %s dirty: %w", id, err)
	}
	return nil
}

// SoftDeleteCard turns a card into a tombstone: deleted=1, synced=0. The row
// stays in the store, hidden from visible queries, until the tombstone has
// been pushed.
func (db *DB) SoftDeleteCard(id, now string) error {
	_, err := db.conn.Exec(`UPDATE cards SET deleted = 1, synced = 0, updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return fmt.Errorf("failed to soft-delete card %s: %w", id, err)
	}
	return nil
}

// SoftDeleteCardsByCategory tombstones every non-deleted card in a category
// and returns their ids. Used by deck deletion.
func (db *DB) SoftDeleteCardsByCategory(category, now string) ([]string, error) {
	rows, err := db.conn.Query(`SELECT id FROM cards WHERE deleted = 0 AND category = ?`, category)
	if err != nil {
		return nil, fmt.Errorf("failed to find cards for category %s: %w", category, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan card id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range ids {
		if err := db.SoftDeleteCard(id, now); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// HardDeleteCard removes a card row entirely. Called once a tombstone has
// been acknowledged by the remote, or when a newer remote tombstone is
// observed.
func (db *DB) HardDeleteCard(id string) error {
	_, err := db.conn.Exec(`DELETE FROM cards WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete card %s: %w", id, err)
	}
	return nil
}
