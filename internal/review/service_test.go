package review

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pkeogan/memosync/internal/domain"
	"github.com/pkeogan/memosync/internal/storage"
)

func newTestService(t *testing.T) (*Service, *storage.DB) {
	t.Helper()
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	svc := NewService(db, nil, nil)
	svc.now = func() time.Time {
		return time.Date(2026, 3, 14, 9, 26, 53, 0, time.Local)
	}
	return svc, db
}

func insertCard(t *testing.T, db *storage.DB, c domain.Card) {
	t.Helper()
	if err := db.InsertCard(&c); err != nil {
		t.Fatalf("InsertCard failed: %v", err)
	}
}

func TestGradeGoodCommitsSchedulerState(t *testing.T) {
	svc, db := newTestService(t)
	card := domain.NewCard("c1", "Q", "A", "Databases", "2026-03-01T09:00:00.000Z", "2026-03-14")
	card.EaseFactor = 2.5
	card.Interval = 10
	card.Repetitions = 3
	card.Level = 2
	card.Synced = true
	insertCard(t, db, card)

	got, err := svc.Grade("c1", domain.GradeGood)
	if err != nil {
		t.Fatalf("Grade failed: %v", err)
	}

	if got.Interval != 25 || got.Repetitions != 4 || got.EaseFactor != 2.5 {
		t.Errorf("Unexpected scheduling state: interval=%d repetitions=%d ease=%.2f",
			got.Interval, got.Repetitions, got.EaseFactor)
	}
	if got.NextReview != "2026-04-08" {
		t.Errorf("Expected day-granularity next review 2026-04-08, got %q", got.NextReview)
	}
	if got.Level != 3 {
		t.Errorf("Expected level bump to 3, got %d", got.Level)
	}
	if len(got.ReviewHistory) != 1 {
		t.Fatalf("Expected one history entry, got %d", len(got.ReviewHistory))
	}
	entry := got.ReviewHistory[0]
	if entry.Date != "2026-03-14" || entry.Quality != int(domain.GradeGood) || !entry.Correct {
		t.Errorf("Unexpected history entry: %+v", entry)
	}
	if got.Synced {
		t.Error("A graded card must be flagged dirty")
	}

	stored, _ := db.GetCard("c1")
	if stored.Interval != 25 || stored.Synced {
		t.Error("Graded state must be persisted")
	}
}

func TestGradeAgainRequeuesInMinutes(t *testing.T) {
	svc, db := newTestService(t)
	card := domain.NewCard("c1", "Q", "A", "Databases", "2026-03-01T09:00:00.000Z", "2026-03-14")
	card.Interval = 30
	card.Repetitions = 5
	card.Level = 4
	insertCard(t, db, card)

	got, err := svc.Grade("c1", domain.GradeAgain)
	if err != nil {
		t.Fatalf("Grade failed: %v", err)
	}
	if got.Repetitions != 0 || got.Interval != 1 {
		t.Errorf("Again must reset to a 1 minute step, got interval=%d repetitions=%d", got.Interval, got.Repetitions)
	}
	if got.NextReview != "2026-03-14T09:27:53" {
		t.Errorf("Expected a same-day local timestamp, got %q", got.NextReview)
	}
	if got.Level != 0 {
		t.Errorf("Again must reset the level, got %d", got.Level)
	}
}

func TestGradeRejectsBadInput(t *testing.T) {
	svc, db := newTestService(t)
	card := domain.NewCard("c1", "Q", "A", "Databases", "2026-03-01T09:00:00.000Z", "2026-03-14")
	insertCard(t, db, card)

	if _, err := svc.Grade("c1", domain.Grade(9)); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("Expected validation error for unknown grade, got %v", err)
	}
	if _, err := svc.Grade("missing", domain.GradeGood); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected not-found error, got %v", err)
	}

	// No state change on the aborted operation.
	stored, _ := db.GetCard("c1")
	if len(stored.ReviewHistory) != 0 {
		t.Error("Rejected grade must not touch the card")
	}
}

func TestPracticeHasNoSideEffects(t *testing.T) {
	svc, db := newTestService(t)
	card := domain.NewCard("c1", "Q", "A", "Databases", "2026-03-01T09:00:00.000Z", "2026-03-14")
	card.Synced = true
	insertCard(t, db, card)

	correct, err := svc.Practice("c1", domain.GradeGood)
	if err != nil {
		t.Fatalf("Practice failed: %v", err)
	}
	if !correct {
		t.Error("Good must count as correct")
	}
	correct, _ = svc.Practice("c1", domain.GradeHard)
	if correct {
		t.Error("Hard must count as incorrect")
	}

	stored, _ := db.GetCard("c1")
	if !stored.Synced || stored.Repetitions != 0 || len(stored.ReviewHistory) != 0 {
		t.Error("Practice must not alter scheduling or sync state")
	}
}

func TestStreakProgression(t *testing.T) {
	svc, db := newTestService(t)
	card := domain.NewCard("c1", "Q", "A", "Databases", "2026-03-01T09:00:00.000Z", "2026-03-14")
	insertCard(t, db, card)

	day := func(d int) func() time.Time {
		return func() time.Time { return time.Date(2026, 3, d, 10, 0, 0, 0, time.Local) }
	}

	svc.now = day(14)
	if _, err := svc.Grade("c1", domain.GradeGood); err != nil {
		t.Fatalf("Grade failed: %v", err)
	}
	if _, count, _ := db.Streak(); count != 1 {
		t.Errorf("First study day should start the streak, got %d", count)
	}

	// Same day again: no change.
	if _, err := svc.Grade("c1", domain.GradeGood); err != nil {
		t.Fatalf("Grade failed: %v", err)
	}
	if _, count, _ := db.Streak(); count != 1 {
		t.Errorf("Same-day study must not extend the streak, got %d", count)
	}

	svc.now = day(15)
	if _, err := svc.Grade("c1", domain.GradeGood); err != nil {
		t.Fatalf("Grade failed: %v", err)
	}
	if _, count, _ := db.Streak(); count != 2 {
		t.Errorf("Consecutive day must extend the streak, got %d", count)
	}

	svc.now = day(20)
	if _, err := svc.Grade("c1", domain.GradeGood); err != nil {
		t.Fatalf("Grade failed: %v", err)
	}
	if _, count, _ := db.Streak(); count != 1 {
		t.Errorf("A gap must restart the streak, got %d", count)
	}
}

func TestPreviewLabels(t *testing.T) {
	svc, db := newTestService(t)
	card := domain.NewCard("c1", "Q", "A", "Databases", "2026-03-01T09:00:00.000Z", "2026-03-14")
	card.Interval = 10
	card.Repetitions = 3
	insertCard(t, db, card)

	previews, err := svc.Preview("c1")
	if err != nil {
		t.Fatalf("Preview failed: %v", err)
	}
	if previews[domain.GradeAgain].Interval != "1 minute" {
		t.Errorf("Again label: %q", previews[domain.GradeAgain].Interval)
	}
	if previews[domain.GradeGood].Interval != "25 days" {
		t.Errorf("Good label: %q", previews[domain.GradeGood].Interval)
	}

	// Preview is a projection; the card is untouched.
	stored, _ := db.GetCard("c1")
	if stored.Interval != 10 || stored.Repetitions != 3 {
		t.Error("Preview must not mutate the card")
	}
}

func TestStats(t *testing.T) {
	svc, db := newTestService(t)

	mastered := domain.NewCard("m", "Q", "A", "Databases", "2026-03-01T09:00:00.000Z", "2026-03-14")
	mastered.Repetitions = 4
	mastered.ReviewHistory = []domain.ReviewEntry{
		{Date: "2026-03-10", Quality: 2, Correct: true},
		{Date: "2026-03-12", Quality: 0, Correct: false},
	}
	fresh := domain.NewCard("f", "Q", "A", "Databases", "2026-03-01T09:00:00.000Z", "2026-03-20")
	insertCard(t, db, mastered)
	insertCard(t, db, fresh)

	stats, err := svc.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalCards != 2 || stats.DueNow != 1 || stats.Mastered != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if stats.Accuracy != 50 {
		t.Errorf("Expected 50%% accuracy, got %.1f", stats.Accuracy)
	}
}

func TestProvisionDecks(t *testing.T) {
	svc, db := newTestService(t)
	card := domain.NewCard("c1", "Q", "A", "Astronomy", "2026-03-01T09:00:00.000Z", "2026-03-14")
	insertCard(t, db, card)

	created, err := svc.ProvisionDecks()
	if err != nil {
		t.Fatalf("ProvisionDecks failed: %v", err)
	}
	if created != len(domain.StandardDeckNames)+1 {
		t.Errorf("Expected %d decks created, got %d", len(domain.StandardDeckNames)+1, created)
	}

	deck, err := db.GetDeckByName("Astronomy")
	if err != nil || deck == nil {
		t.Fatalf("Expected a deck for the card's category, got %v, %v", deck, err)
	}
	if deck.Group != domain.GroupOther {
		t.Errorf("Expected the Other group, got %q", deck.Group)
	}
	if tech, _ := db.GetDeckByName("Databases"); tech == nil || tech.Group != domain.GroupTechnology {
		t.Error("Standard decks must be grouped")
	}

	// Idempotent.
	created, err = svc.ProvisionDecks()
	if err != nil {
		t.Fatalf("ProvisionDecks failed: %v", err)
	}
	if created != 0 {
		t.Errorf("Second provisioning must create nothing, got %d", created)
	}
}

func TestDueCardsShuffledButComplete(t *testing.T) {
	svc, db := newTestService(t)
	ids := []string{"a", "b", "c", "d"}
	for _, id := range ids {
		card := domain.NewCard(id, "Q", "A", "Databases", "2026-03-01T09:00:00.000Z", "2026-03-14")
		insertCard(t, db, card)
	}

	due, err := svc.DueCards()
	if err != nil {
		t.Fatalf("DueCards failed: %v", err)
	}
	if len(due) != len(ids) {
		t.Fatalf("Expected %d due cards, got %d", len(ids), len(due))
	}
	seen := map[string]bool{}
	for _, c := range due {
		seen[c.ID] = true
	}
	for _, id := range ids {
		if !seen[id] {
			t.Errorf("Card %s missing from the session", id)
		}
	}
}

func TestGradeTombstoneIsNotFound(t *testing.T) {
	svc, db := newTestService(t)
	card := domain.NewCard("c1", "Q", "A", "Databases", "2026-03-01T09:00:00.000Z", "2026-03-14")
	insertCard(t, db, card)
	if err := db.SoftDeleteCard("c1", "2026-03-14T09:00:00.000Z"); err != nil {
		t.Fatalf("SoftDeleteCard failed: %v", err)
	}

	_, err := svc.Grade("c1", domain.GradeGood)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected not-found for a tombstone, got %v", err)
	}
	if err != nil && !strings.Contains(err.Error(), "c1") {
		t.Errorf("Error should name the card: %v", err)
	}
}
