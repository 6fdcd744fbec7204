// Package remote is the client for the remote replica service: a row store
// with id-keyed upserts, an email/password auth endpoint, and a realtime
// channel pushing row-change events. The sync engine owns all policy; this
// package only speaks the wire contract.
package remote

import (
	"encoding/json"

	"github.com/pkeogan/memosync/internal/domain"
)

// CardRow is the wire shape of a card. Image payloads never appear here; only
// metadata and text travel over the wire. interval_days carries the interval
// value regardless of unit; minute-granularity learning state has no distinct
// wire representation.
type CardRow struct {
	ID            string  `json:"id"`
	UserID        string  `json:"user_id"`
	Question      string  `json:"question"`
	Answer        string  `json:"answer"`
	Category      string  `json:"category"`
	Level         int     `json:"level"`
	EaseFactor    float64 `json:"ease_factor"`
	IntervalDays  int     `json:"interval_days"`
	Repetitions   int     `json:"repetitions"`
	NextReview    string  `json:"next_review"`
	ReviewHistory string  `json:"review_history"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
	Deleted       bool    `json:"deleted"`
}

// DeckRow is the wire shape of a deck.
type DeckRow struct {
	ID        string  `json:"id"`
	UserID    string  `json:"user_id"`
	Name      string  `json:"name"`
	GroupName *string `json:"group_name"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
	Deleted   bool    `json:"deleted"`
}

// CardRowFrom maps a local card to its wire shape for the given identity.
func CardRowFrom(c domain.Card, userID string) CardRow {
	history, err := json.Marshal(c.ReviewHistory)
	if err != nil || c.ReviewHistory == nil {
		history = []byte("[]")
	}
	category := c.Category
	if category == "" {
		category = domain.DefaultCategory
	}
	return CardRow{
		ID:            c.ID,
		UserID:        userID,
		Question:      c.Question,
		Answer:        c.Answer,
		Category:      category,
		Level:         c.Level,
		EaseFactor:    c.EaseFactor,
		IntervalDays:  c.Interval,
		Repetitions:   c.Repetitions,
		NextReview:    c.NextReview,
		ReviewHistory: string(history),
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
		Deleted:       c.Deleted,
	}
}

// Card maps a wire row to a local card marked as in sync with the remote.
func (r CardRow) Card() domain.Card {
	var history []domain.ReviewEntry
	if err := json.Unmarshal([]byte(r.ReviewHistory), &history); err != nil || history == nil {
		history = []domain.ReviewEntry{}
	}
	ease := r.EaseFactor
	if ease == 0 {
		ease = domain.DefaultEaseFactor
	}
	category := r.Category
	if category == "" {
		category = domain.DefaultCategory
	}
	return domain.Card{
		ID:            r.ID,
		Question:      r.Question,
		Answer:        r.Answer,
		Category:      category,
		Level:         r.Level,
		EaseFactor:    ease,
		Interval:      r.IntervalDays,
		Repetitions:   r.Repetitions,
		NextReview:    r.NextReview,
		ReviewHistory: history,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
		Synced:        true,
		Deleted:       r.Deleted,
	}
}

// DeckRowFrom maps a local deck to its wire shape for the given identity.
func DeckRowFrom(d domain.Deck, userID string) DeckRow {
	var group *string
	if d.Group != "" {
		g := d.Group
		group = &g
	}
	return DeckRow{
		ID:        d.ID,
		UserID:    userID,
		Name:      d.Name,
		GroupName: group,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
		Deleted:   d.Deleted,
	}
}

// Deck maps a wire row to a local deck marked as in sync with the remote.
func (r DeckRow) Deck() domain.Deck {
	group := ""
	if r.GroupName != nil {
		group = *r.GroupName
	}
	return domain.Deck{
		ID:        r.ID,
		Name:      r.Name,
		Group:     group,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		Synced:    true,
		Deleted:   r.Deleted,
	}
}
