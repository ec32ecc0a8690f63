package award

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// DateLayout is the civil-date format used on the wire and in storage.
const DateLayout = "2006-01-02"

// Window bounds one acquisition query.
type Window struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	MinValue float64   `json:"min_value"`
}

// NewWindow validates and truncates the bounds to civil dates.
func NewWindow(start, end time.Time, minValue float64) (Window, error) {
	if start.IsZero() || end.IsZero() {
		return Window{}, errors.New("window start and end are required")
	}
	start, end = DateOnly(start), DateOnly(end)
	if start.After(end) {
		return Window{}, fmt.Errorf("window start %s is after end %s",
			start.Format(DateLayout), end.Format(DateLayout))
	}
	if minValue < 0 || math.IsNaN(minValue) || math.IsInf(minValue, 0) {
		return Window{}, fmt.Errorf("window min value must be a finite number >= 0, got %v", minValue)
	}
	return Window{Start: start, End: end, MinValue: minValue}, nil
}

// DefaultWindow covers the last lookbackDays days up to and including now.
func DefaultWindow(now time.Time, lookbackDays int, minValue float64) (Window, error) {
	if lookbackDays < 0 {
		return Window{}, fmt.Errorf("lookback days must be >= 0, got %d", lookbackDays)
	}
	end := DateOnly(now)
	return NewWindow(end.AddDate(0, 0, -lookbackDays), end, minValue)
}

// StartDate renders the lower bound as YYYY-MM-DD.
func (w Window) StartDate() string { return w.Start.Format(DateLayout) }

// EndDate renders the upper bound as YYYY-MM-DD.
func (w Window) EndDate() string { return w.End.Format(DateLayout) }

// Contains reports whether the record's award date is inside the window.
func (w Window) Contains(t time.Time) bool {
	d := DateOnly(t)
	return !d.Before(w.Start) && !d.After(w.End)
}

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate accepts YYYY-MM-DD or any RFC 3339 timestamp whose first ten
// characters are a date.
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) < len(DateLayout) {
		return time.Time{}, fmt.Errorf("invalid date %q", raw)
	}
	t, err := time.Parse(DateLayout, raw[:len(DateLayout)])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", raw, err)
	}
	return t, nil
}
