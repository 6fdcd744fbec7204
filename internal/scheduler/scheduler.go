// Package scheduler computes spaced-repetition scheduling state.
//
// The algorithm is an SM-2 variant with short learning steps: early
// repetitions are scheduled in minutes so a card can re-queue within the same
// session, later repetitions graduate to day-granularity intervals that grow
// with the card's ease factor. All functions are pure; persisting the result
// is the caller's job.
package scheduler

import (
	"fmt"
	"math"
	"time"

	"github.com/pkeogan/memosync/internal/domain"
)

// Unit tags an interval value as minutes (learning phase) or days (review
// phase).
type Unit int

const (
	Days Unit = iota
	Minutes
)

// State is the scheduling state a computation starts from.
type State struct {
	EaseFactor  float64
	Interval    int
	Repetitions int
}

// Result is the proposed next scheduling state for one grade.
type Result struct {
	EaseFactor  float64
	Interval    int
	Repetitions int
	Unit        Unit
}

// Params holds the tunable scheduler parameters.
type Params struct {
	DefaultEase float64
	MinEase     float64 // ease factor floor
}

// DefaultParams returns the standard SM-2 parameters.
func DefaultParams() *Params {
	return &Params{
		DefaultEase: domain.DefaultEaseFactor,
		MinEase:     domain.MinEaseFactor,
	}
}

// StateOf extracts a card's scheduling state, substituting the default ease
// factor for records that predate it.
func StateOf(c domain.Card) State {
	ease := c.EaseFactor
	if ease == 0 {
		ease = domain.DefaultEaseFactor
	}
	return State{EaseFactor: ease, Interval: c.Interval, Repetitions: c.Repetitions}
}

// Next computes the scheduling state resulting from grading a card. It is
// deterministic and never fails; unknown grades are treated as Again.
func (p *Params) Next(s State, grade domain.Grade) Result {
	ease := s.EaseFactor
	if ease == 0 {
		ease = p.DefaultEase
	}
	interval := s.Interval
	repetitions := s.Repetitions
	unit := Days

	switch grade {
	case domain.GradeHard:
		if repetitions == 0 {
			interval = 6
			unit = Minutes
		} else {
			interval = max(1, int(math.Round(float64(interval)*1.2)))
		}
		ease = math.Max(p.MinEase, ease-0.15)
	case domain.GradeGood:
		switch repetitions {
		case 0:
			interval = 10
			unit = Minutes
		case 1:
			interval = 1
		default:
			interval = int(math.Round(float64(interval) * ease))
		}
		repetitions++
	case domain.GradeEasy:
		switch repetitions {
		case 0:
			interval = 4
		case 1:
			interval = 10
		default:
			interval = int(math.Round(float64(interval) * ease * 1.3))
		}
		ease = math.Max(p.MinEase, ease+0.15)
		repetitions++
	default: // Again
		repetitions = 0
		interval = 1
		unit = Minutes
	}

	return Result{EaseFactor: ease, Interval: interval, Repetitions: repetitions, Unit: unit}
}

// Preview projects all four grade outcomes without committing any of them,
// indexed by grade. Used to label the grade choices before the user answers.
func (p *Params) Preview(s State) [4]Result {
	var out [4]Result
	for g := domain.GradeAgain; g <= domain.GradeEasy; g++ {
		out[g] = p.Next(s, g)
	}
	return out
}

// NextReviewAt derives the stored next-review value for a result: a local
// second-precision timestamp for minute intervals so same-day re-queuing
// works, a date-only string for day intervals.
func NextReviewAt(now time.Time, r Result) string {
	if r.Unit == Minutes {
		return domain.LocalTimestamp(now.Add(time.Duration(r.Interval) * time.Minute))
	}
	return domain.DateString(now.AddDate(0, 0, r.Interval))
}

// FormatInterval renders an interval as a human-readable label.
func FormatInterval(value int, unit Unit) string {
	if unit == Minutes {
		if value < 60 {
			return plural(value, "minute")
		}
		return plural(int(math.Round(float64(value)/60)), "hour")
	}
	switch {
	case value <= 0:
		return "<1 day"
	case value == 1:
		return "1 day"
	case value < 30:
		return fmt.Sprintf("%d days", value)
	case value < 365:
		return plural(int(math.Round(float64(value)/30)), "month")
	default:
		return fmt.Sprintf("%.1f years", float64(value)/365)
	}
}

// FormatNextReview renders a stored next-review value relative to now, e.g.
// "today", "tomorrow", "in 3 days". Minute-precision values within today also
// read "today".
func FormatNextReview(nextReview string, now time.Time) string {
	if len(nextReview) > len("2006-01-02") {
		nextReview = nextReview[:len("2006-01-02")]
	}
	due, err := time.ParseInLocation("2006-01-02", nextReview, now.Location())
	if err != nil {
		return nextReview
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	days := int(math.Ceil(due.Sub(today).Hours() / 24))
	switch {
	case days <= 0:
		return "today"
	case days == 1:
		return "tomorrow"
	default:
		return fmt.Sprintf("in %d days", days)
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
