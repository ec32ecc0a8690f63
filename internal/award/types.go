// Package award defines the canonical award-notice model shared by the
// fetch, normalize, persist and digest subsystems.
package award

import (
	"time"
)

// RawAwardItem is one upstream award entry exactly as decoded from JSON.
// Every field is optional; see Normalize for the fields that are read.
type RawAwardItem map[string]any

// Record is the canonical, validated form of an award notice.
type Record struct {
	CompanyName        string    `json:"company_name"`
	CompanyID          string    `json:"company_id"`
	Value              float64   `json:"value"`
	Title              string    `json:"title"`
	AuthorityName      string    `json:"authority_name"`
	AwardDate          time.Time `json:"award_date"`
	ClassificationCode string    `json:"classification_code"`
	CategoryLabel      string    `json:"category_label"`
	NoticeID           string    `json:"notice_id"`
}

// Placeholder fills missing textual fields.
const Placeholder = "N/A"

// CycleRequest asks the worker to run one synchronization cycle.
type CycleRequest struct {
	ID        string
	Window    Window
	Source    string
	Submitted int64
}

// Query selects stored records for the interactive listing.
type Query struct {
	From       time.Time
	To         time.Time
	MinValue   float64
	Categories []string
	Limit      int
}

// DefaultListLimit caps listings when the caller does not set a limit.
const DefaultListLimit = 1000
