// Package review drives study sessions: picking due cards, committing grades
// through the scheduler, and the bookkeeping that hangs off a review (level,
// history, streak).
package review

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/pkeogan/memosync/internal/domain"
	"github.com/pkeogan/memosync/internal/scheduler"
	"github.com/pkeogan/memosync/internal/storage"
	syncengine "github.com/pkeogan/memosync/internal/sync"
)

// Service coordinates the store, the scheduler and the optional sync engine.
// engine may be nil when sync is not configured; that is checked here and
// nowhere else.
type Service struct {
	store  *storage.DB
	engine *syncengine.Engine
	params *scheduler.Params
	now    func() time.Time
}

// NewService creates a review service. engine may be nil.
func NewService(store *storage.DB, engine *syncengine.Engine, params *scheduler.Params) *Service {
	if params == nil {
		params = scheduler.DefaultParams()
	}
	return &Service{
		store:  store,
		engine: engine,
		params: params,
		now:    time.Now,
	}
}

// DueCards returns the cards due at this moment, shuffled for a session.
// Storage order carries no priority, so the shuffle loses nothing.
func (s *Service) DueCards() ([]domain.Card, error) {
	cards, err := s.store.DueCards(domain.LocalTimestamp(s.now()))
	if err != nil {
		return nil, err
	}
	rand.Shuffle(len(cards), func(i, j int) {
		cards[i], cards[j] = cards[j], cards[i]
	})
	return cards, nil
}

// GradePreview is one projected outcome for a card, used to label the grade
// choices before the user commits one.
type GradePreview struct {
	Grade    domain.Grade `json:"grade"`
	Interval string       `json:"interval"`
}

// Preview projects all four grade outcomes for a card without mutating it.
func (s *Service) Preview(id string) ([4]GradePreview, error) {
	var previews [4]GradePreview
	card, err := s.store.GetCard(id)
	if err != nil {
		return previews, err
	}
	if card == nil || card.Deleted {
		return previews, fmt.Errorf("%w: card %s", domain.ErrNotFound, id)
	}

	results := s.params.Preview(scheduler.StateOf(*card))
	for g, r := range results {
		previews[g] = GradePreview{
			Grade:    domain.Grade(g),
			Interval: scheduler.FormatInterval(r.Interval, r.Unit),
		}
	}
	return previews, nil
}

// Grade commits a review: the scheduler's proposed state is applied to the
// card, the display level and history are updated, the record is flagged for
// sync and the streak advances.
func (s *Service) Grade(id string, grade domain.Grade) (*domain.Card, error) {
	if !grade.Valid() {
		return nil, fmt.Errorf("%w: unknown grade %d", domain.ErrValidation, grade)
	}
	card, err := s.store.GetCard(id)
	if err != nil {
		return nil, err
	}
	if card == nil || card.Deleted {
		return nil, fmt.Errorf("%w: card %s", domain.ErrNotFound, id)
	}

	now := s.now()
	result := s.params.Next(scheduler.StateOf(*card), grade)
	card.EaseFactor = result.EaseFactor
	card.Interval = result.Interval
	card.Repetitions = result.Repetitions
	card.NextReview = scheduler.NextReviewAt(now, result)

	// Display-only level, kept for backward compatibility.
	if grade.Correct() {
		card.Level = min(card.Level+1, domain.MaxLevel)
	} else if grade == domain.GradeAgain {
		card.Level = 0
	}

	card.ReviewHistory = append(card.ReviewHistory, domain.ReviewEntry{
		Date:    domain.DateString(now),
		Quality: int(grade),
		Correct: grade.Correct(),
	})
	card.UpdatedAt = domain.NowISO()
	card.Synced = false

	if err := s.store.UpdateCard(card); err != nil {
		return nil, err
	}
	if s.engine != nil {
		if err := s.engine.MarkCardDirty(card.ID); err != nil {
			return nil, err
		}
	}
	if err := s.advanceStreak(now); err != nil {
		return nil, err
	}
	return card, nil
}

// Practice grades a card without any scheduling side effects; only the
// session's own counters move. Returns whether the recall counted as correct.
func (s *Service) Practice(id string, grade domain.Grade) (bool, error) {
	if !grade.Valid() {
		return false, fmt.Errorf("%w: unknown grade %d", domain.ErrValidation, grade)
	}
	card, err := s.store.GetCard(id)
	if err != nil {
		return false, err
	}
	if card == nil || card.Deleted {
		return false, fmt.Errorf("%w: card %s", domain.ErrNotFound, id)
	}
	return grade.Correct(), nil
}

// advanceStreak bumps the consecutive-day study counter: a second study today
// is a no-op, studying the day after the last study extends the streak,
// anything else restarts it.
func (s *Service) advanceStreak(now time.Time) error {
	today := domain.DateString(now)
	yesterday := domain.DateString(now.AddDate(0, 0, -1))

	lastDate, count, err := s.store.Streak()
	if err != nil {
		return err
	}
	switch lastDate {
	case today:
		return nil
	case yesterday:
		return s.store.SetStreak(today, count+1)
	default:
		return s.store.SetStreak(today, 1)
	}
}

// Stats summarizes the collection for display.
type Stats struct {
	TotalCards int     `json:"totalCards"`
	DueNow     int     `json:"dueNow"`
	Mastered   int     `json:"mastered"` // repetitions >= 3
	Accuracy   float64 `json:"accuracy"` // percent of correct reviews, all time
	Streak     int     `json:"streak"`
}

// Stats computes collection statistics from the visible local set.
func (s *Service) Stats() (Stats, error) {
	cards, err := s.store.ListCards()
	if err != nil {
		return Stats{}, err
	}
	due, err := s.store.DueCards(domain.LocalTimestamp(s.now()))
	if err != nil {
		return Stats{}, err
	}
	_, streak, err := s.store.Streak()
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{TotalCards: len(cards), DueNow: len(due), Streak: streak}
	var reviews, correct int
	for _, c := range cards {
		if c.Repetitions >= 3 {
			stats.Mastered++
		}
		for _, entry := range c.ReviewHistory {
			reviews++
			if entry.Correct {
				correct++
			}
		}
	}
	if reviews > 0 {
		stats.Accuracy = 100 * float64(correct) / float64(reviews)
	}
	return stats, nil
}

// ProvisionDecks creates a deck for every standard deck name and every card
// category that lacks one. Returns how many decks were created.
func (s *Service) ProvisionDecks() (int, error) {
	existing, err := s.store.ListDecks()
	if err != nil {
		return 0, err
	}
	have := make(map[string]bool, len(existing))
	for _, d := range existing {
		have[d.Name] = true
	}

	cards, err := s.store.ListCards()
	if err != nil {
		return 0, err
	}
	names := append([]string(nil), domain.StandardDeckNames...)
	for _, c := range cards {
		if c.Category != "" {
			names = append(names, c.Category)
		}
	}

	created := 0
	for _, name := range names {
		if have[name] {
			continue
		}
		id, err := domain.NewID()
		if err != nil {
			return created, fmt.Errorf("failed to generate deck id: %w", err)
		}
		deck := domain.NewDeck(id, name, domain.NowISO())
		if err := s.store.InsertDeck(&deck); err != nil {
			return created, err
		}
		if s.engine != nil {
			if err := s.engine.MarkDeckDirty(deck.ID); err != nil {
				return created, err
			}
		}
		have[name] = true
		created++
	}
	return created, nil
}
