// Package slots produces the bookable/blocked slot grid for the clinic calendar.
package slots

import (
	"errors"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"time"

	"github.com/hackgods/dental-clinic-engine/internal/interval"
)

const DefaultGranularity = 30 * time.Minute

var (
	DefaultOpen  = Clock{Hour: 9}
	DefaultClose = Clock{Hour: 17}
)

// Clock is a wall-clock time of day in the clinic's location.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return Clock{}, fmt.Errorf("invalid time of day %q, want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return Clock{}, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return Clock{}, fmt.Errorf("invalid minute in %q", s)
	}
	return Clock{Hour: h, Minute: m}, nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

func (c Clock) minutes() int { return c.Hour*60 + c.Minute }

// Slot is one granularity-aligned cell of the calendar.
type Slot struct {
	interval.Interval
	Available bool
}

type Config struct {
	Granularity time.Duration
	Open        Clock
	Close       Clock
	Location    *time.Location
}

// Allocator is immutable once built and safe for concurrent use.
type Allocator struct {
	granularity time.Duration
	open        Clock
	close       Clock
	loc         *time.Location
}

func NewAllocator(cfg Config) (*Allocator, error) {
	if cfg.Granularity == 0 {
		cfg.Granularity = DefaultGranularity
	}
	if cfg.Granularity < time.Minute {
		return nil, errors.New("slot granularity must be at least one minute")
	}
	if cfg.Open == (Clock{}) && cfg.Close == (Clock{}) {
		cfg.Open, cfg.Close = DefaultOpen, DefaultClose
	}
	if cfg.Close.minutes() <= cfg.Open.minutes() {
		return nil, fmt.Errorf("clinic close %s must be after open %s", cfg.Close, cfg.Open)
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Allocator{
		granularity: cfg.Granularity,
		open:        cfg.Open,
		close:       cfg.Close,
		loc:         cfg.Location,
	}, nil
}

func (a *Allocator) Location() *time.Location { return a.loc }

func (a *Allocator) Granularity() time.Duration { return a.granularity }

// Window returns the operating interval for the calendar day containing day.
func (a *Allocator) Window(day time.Time) interval.Interval {
	d := day.In(a.loc)
	return interval.Interval{
		Start: time.Date(d.Year(), d.Month(), d.Day(), a.open.Hour, a.open.Minute, 0, 0, a.loc),
		End:   time.Date(d.Year(), d.Month(), d.Day(), a.close.Hour, a.close.Minute, 0, 0, a.loc),
	}
}

// Range returns the span covering every operating window from the day of from
// through the day of to, used to fetch the blocking appointments for Slots.
func (a *Allocator) Range(from, to time.Time) interval.Interval {
	return interval.Interval{Start: a.Window(from).Start, End: a.Window(to).End}
}

// Slots yields every slot of every day in [from, to] (calendar days in the
// clinic location). A slot is unavailable when it overlaps any blocking
// interval, so an appointment ending mid-slot blocks the whole slot.
// The sequence is lazy and can be ranged over any number of times.
func (a *Allocator) Slots(from, to time.Time, blocking []interval.Interval) iter.Seq[Slot] {
	busy := make([]interval.Interval, len(blocking))
	copy(busy, blocking)

	first := startOfDay(from.In(a.loc))
	last := startOfDay(to.In(a.loc))

	return func(yield func(Slot) bool) {
		for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
			window := a.Window(day)
			for start := window.Start; !start.Add(a.granularity).After(window.End); start = start.Add(a.granularity) {
				cell := interval.Interval{Start: start, End: start.Add(a.granularity)}
				if !yield(Slot{Interval: cell, Available: free(cell, busy)}) {
					return
				}
			}
		}
	}
}

// Available filters seq down to bookable slots.
func Available(seq iter.Seq[Slot]) iter.Seq[Slot] {
	return func(yield func(Slot) bool) {
		for s := range seq {
			if s.Available && !yield(s) {
				return
			}
		}
	}
}

func free(cell interval.Interval, busy []interval.Interval) bool {
	for _, b := range busy {
		if interval.Overlaps(cell, b) {
			return false
		}
	}
	return true
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
