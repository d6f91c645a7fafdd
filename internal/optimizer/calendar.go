package optimizer

import (
	"fmt"
	"iter"
	"time"
)

// DateKey is the fixed-width YYYY-MM-DD form of a calendar date.
type DateKey string

const dateKeyLayout = "2006-01-02"

// KeyOf formats t as a DateKey.
func KeyOf(t time.Time) DateKey {
	return DateKey(t.Format(dateKeyLayout))
}

// Day strips the clock from t, keeping its calendar date in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IsBusinessDay reports whether t falls Monday through Friday.
func IsBusinessDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// EachBusinessDay yields every weekday in [from, through].
func EachBusinessDay(from, through time.Time) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		last := Day(through)
		for d := Day(from); !d.After(last); d = d.AddDate(0, 0, 1) {
			if !IsBusinessDay(d) {
				continue
			}
			if !yield(d) {
				return
			}
		}
	}
}

// AddBusinessDays moves n business days away from date, backwards when subtract is set.
// Weekends are stepped over without being counted.
func AddBusinessDays(date time.Time, n int, subtract bool) time.Time {
	step := 1
	if subtract {
		step = -1
	}
	d := Day(date)
	for n > 0 {
		d = d.AddDate(0, 0, step)
		if IsBusinessDay(d) {
			n--
		}
	}
	return d
}

// Window is the ordered set of business days a run may schedule into.
type Window struct {
	Start time.Time
	End   time.Time
	days  []time.Time
	index map[DateKey]int
}

// NewWindow indexes the business days of [start, end].
func NewWindow(start, end time.Time) (*Window, error) {
	start, end = Day(start), Day(end)
	if end.Before(start) {
		return nil, fmt.Errorf("window end %s is before start %s", KeyOf(end), KeyOf(start))
	}
	w := &Window{Start: start, End: end, index: make(map[DateKey]int)}
	for d := range EachBusinessDay(start, end) {
		w.index[KeyOf(d)] = len(w.days)
		w.days = append(w.days, d)
	}
	return w, nil
}

// Len is the number of business days in the window.
func (w *Window) Len() int { return len(w.days) }

// Date returns the business day at index i.
func (w *Window) Date(i int) time.Time { return w.days[i] }

// IndexOf returns the index of t when it is a business day inside the window.
func (w *Window) IndexOf(t time.Time) (int, bool) {
	i, ok := w.index[KeyOf(t)]
	return i, ok
}

// mustIndex panics for dates outside the window; callers only pass dates the window produced.
func (w *Window) mustIndex(t time.Time) int {
	i, ok := w.IndexOf(t)
	if !ok {
		panic(fmt.Sprintf("optimizer: date %s is not a business day in the window %s..%s", KeyOf(t), KeyOf(w.Start), KeyOf(w.End)))
	}
	return i
}

// clamp returns the index range of business days of [from, through] that overlap the window.
func (w *Window) clamp(from, through time.Time) (int, int, bool) {
	from, through = Day(from), Day(through)
	if from.Before(w.Start) {
		from = w.Start
	}
	if through.After(w.End) {
		through = w.End
	}
	first, last := -1, -1
	for d := range EachBusinessDay(from, through) {
		i := w.index[KeyOf(d)]
		if first < 0 {
			first = i
		}
		last = i
	}
	return first, last, first >= 0
}
