package domain

// Default scheduling parameters shared by the scheduler and the store.
const (
	DefaultEaseFactor = 2.5
	MinEaseFactor     = 1.3

	// DefaultCategory is assigned to cards created without one.
	DefaultCategory = "Uncategorized"

	// MaxLevel caps the display-only mastery level.
	MaxLevel = 5
)

// Grade is the user's recall-quality response to a card review.
type Grade int

const (
	GradeAgain Grade = iota
	GradeHard
	GradeGood
	GradeEasy
)

// Correct reports whether the grade counts as a successful recall.
func (g Grade) Correct() bool {
	return g >= GradeGood
}

// Valid reports whether the grade is one of the four known values.
func (g Grade) Valid() bool {
	return g >= GradeAgain && g <= GradeEasy
}

// ReviewEntry records a single review event for a card.
type ReviewEntry struct {
	Date    string `json:"date"` // YYYY-MM-DD
	Quality int    `json:"quality"`
	Correct bool   `json:"correct"`
}

// Card is a single flashcard with its scheduling and sync state.
//
// Interval is unit-tagged: while a card is in the learning phase the value is
// minutes, once it graduates to review it is days. The unit is not persisted
// separately; it is re-derived from the scheduling branch that produced it.
//
// NextReview is either a date-only string (day granularity) or a local
// timestamp with second precision (minute-granularity learning steps). Both
// forms compare correctly against a local timestamp with plain string
// ordering.
type Card struct {
	ID            string        `json:"id"`
	Question      string        `json:"question"`
	Answer        string        `json:"answer"`
	QuestionImage string        `json:"questionImage,omitempty"` // opaque payload, never synced
	AnswerImage   string        `json:"answerImage,omitempty"`   // opaque payload, never synced
	Category      string        `json:"category"`
	Level         int           `json:"level"`
	EaseFactor    float64       `json:"easeFactor"`
	Interval      int           `json:"interval"`
	Repetitions   int           `json:"repetitions"`
	NextReview    string        `json:"nextReview"`
	ReviewHistory []ReviewEntry `json:"reviewHistory"`
	CreatedAt     string        `json:"createdAt"`
	UpdatedAt     string        `json:"updatedAt"`
	Synced        bool          `json:"synced"`
	Deleted       bool          `json:"deleted"`
}

// NewCard returns a card with default scheduling state, due immediately.
// now is an ISO-8601 instant and today a date-only string.
func NewCard(id, question, answer, category, now, today string) Card {
	if category == "" {
		category = DefaultCategory
	}
	return Card{
		ID:            id,
		Question:      question,
		Answer:        answer,
		Category:      category,
		EaseFactor:    DefaultEaseFactor,
		NextReview:    today,
		ReviewHistory: []ReviewEntry{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
