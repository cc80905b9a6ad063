package pipeline

import (
	"time"

	"github.com/stagetrack/stagetrack/internal/core/domain"
)

// DefaultWindowDays is how far back the terminal stage looks when no begin
// date is given.
const DefaultWindowDays = 90

// Window is an inclusive time range applied to the terminal stage.
type Window struct {
	Lower time.Time
	Upper time.Time
}

// NewWindow fills missing bounds from now: the lower bound defaults to
// DefaultWindowDays before now and the upper bound to now. Inverted bounds
// are kept as given and match nothing.
func NewWindow(now time.Time, begin, end *time.Time) Window {
	w := Window{
		Lower: now.AddDate(0, 0, -DefaultWindowDays),
		Upper: now,
	}
	if begin != nil {
		w.Lower = *begin
	}
	if end != nil {
		w.Upper = *end
	}
	return w
}

// Contains reports whether Lower <= t <= Upper.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Lower) && !t.After(w.Upper)
}

// FilterWindow returns the commits whose timestamp at stageName falls inside
// w. Commits without a timestamp for stageName are dropped. The input slice
// is left untouched.
func FilterWindow(commits []domain.ReconciledCommit, stageName string, w Window) []domain.ReconciledCommit {
	kept := make([]domain.ReconciledCommit, 0, len(commits))
	for _, c := range commits {
		t, ok := c.Timestamp(stageName)
		if ok && w.Contains(t) {
			kept = append(kept, c)
		}
	}
	return kept
}
