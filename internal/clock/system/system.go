// Package system provides clock implementations for cycle scheduling.
package system

import (
	"time"

	"github.com/JakeFAU/award-digest/internal/award"
)

// Clock implements award.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Fixed always reports the same instant. Tests and backfills use it to pin
// the default query window.
type Fixed time.Time

// Now returns the pinned instant in UTC.
func (f Fixed) Now() time.Time {
	return time.Time(f).UTC()
}

var (
	_ award.Clock = Clock{}
	_ award.Clock = Fixed{}
)
