// Package interval models half-open time ranges [Start, End).
package interval

import (
	"errors"
	"time"
)

var ErrEmptyInterval = errors.New("interval start must be before end")

type Interval struct {
	Start time.Time
	End   time.Time
}

// New returns [start, end) or ErrEmptyInterval when start is not before end.
func New(start, end time.Time) (Interval, error) {
	if !start.Before(end) {
		return Interval{}, ErrEmptyInterval
	}
	return Interval{Start: start, End: end}, nil
}

// Overlaps reports whether a and b share any instant. An interval ending at
// 10:00 does not overlap one starting at 10:00.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

func (i Interval) Overlaps(other Interval) bool {
	return Overlaps(i, other)
}

func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}
