package storage

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/pkeogan/memosync/internal/domain"
)

// Backup is the export file format. Cards carry their image payloads here;
// backups are the only place images leave the local store.
type Backup struct {
	Cards      []domain.Card `json:"cards"`
	Decks      []domain.Deck `json:"decks"`
	ExportDate string        `json:"exportDate"`
}

// Export writes every card and deck row, tombstones included, as a backup
// document.
func (db *DB) Export(w io.Writer, exportDate string) error {
	cards, err := db.queryCards(`SELECT ` + cardColumns + ` FROM cards ORDER BY rowid`)
	if err != nil {
		return fmt.Errorf("failed to export cards: %w", err)
	}
	decks, err := db.queryDecks(`SELECT ` + deckColumns + ` FROM decks ORDER BY rowid`)
	if err != nil {
		return fmt.Errorf("failed to export decks: %w", err)
	}
	if cards == nil {
		cards = []domain.Card{}
	}
	if decks == nil {
		decks = []domain.Deck{}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(Backup{Cards: cards, Decks: decks, ExportDate: exportDate}); err != nil {
		return fmt.Errorf("failed to encode backup: %w", err)
	}
	return nil
}

// Import merges a backup into the store: every record present is put by id,
// overwriting matching rows and adding new ones. No conflict resolution
// beyond that. Returns the number of cards and decks written.
func (db *DB) Import(r io.Reader) (cards, decks int, err error) {
	var backup Backup
	if err := json.NewDecoder(r).Decode(&backup); err != nil {
		return 0, 0, fmt.Errorf("%w: invalid backup file: %v", domain.ErrValidation, err)
	}
	if backup.Cards == nil && backup.Decks == nil {
		return 0, 0, fmt.Errorf("%w: backup has no cards or decks", domain.ErrValidation)
	}

	for i := range backup.Decks {
		if err := db.PutDeck(&backup.Decks[i]); err != nil {
			return cards, decks, err
		}
		decks++
	}
	for i := range backup.Cards {
		if err := db.PutCard(&backup.Cards[i]); err != nil {
			return cards, decks, err
		}
		cards++
	}
	return cards, decks, nil
}
