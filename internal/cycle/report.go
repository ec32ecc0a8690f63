package cycle

import (
	"slices"
	"time"

	"github.com/JakeFAU/award-digest/internal/award"
	"github.com/JakeFAU/award-digest/internal/digest"
	"github.com/JakeFAU/award-digest/internal/progress"
)

// Stage is one step of the cycle state machine. A cycle only ever moves
// forward: RESOLVING, FETCHED, NORMALIZED, PERSISTED, DIGESTED, DONE, or
// RESOLVING, FAILED, DONE when no address answered.
type Stage string

// Cycle stages in trail order.
const (
	StageResolving  Stage = "RESOLVING"
	StageFetched    Stage = "FETCHED"
	StageNormalized Stage = "NORMALIZED"
	StagePersisted  Stage = "PERSISTED"
	StageDigested   Stage = "DIGESTED"
	StageFailed     Stage = "FAILED"
	StageDone       Stage = "DONE"
)

// Report summarizes one cycle for logs, the API and the CLI.
type Report struct {
	CycleID        string          `json:"cycle_id"`
	Window         award.Window    `json:"window"`
	Endpoint       string          `json:"endpoint,omitempty"`
	Trail          []Stage         `json:"trail"`
	State          Stage           `json:"state"`
	FetchedCount   int             `json:"fetched_count"`
	RetainedCount  int             `json:"retained_count"`
	DuplicateCount int             `json:"duplicate_count"`
	PersistedCount int             `json:"persisted_count"`
	FailedChunks   int             `json:"failed_chunks"`
	Errors         []string        `json:"errors,omitempty"`
	Digest         *digest.Payload `json:"digest,omitempty"`
	DigestSkipped  bool            `json:"digest_skipped"`
	Delivered      bool            `json:"delivered"`
	MessageID      string          `json:"message_id,omitempty"`
	ArchiveURI     string          `json:"archive_uri,omitempty"`
	DigestSHA256   string          `json:"digest_sha256,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at"`
}

// Failed reports whether resolution failed and the cycle ran empty.
func (r Report) Failed() bool {
	return slices.Contains(r.Trail, StageFailed)
}

// Outcome condenses the report into a progress outcome: failed when no
// usable batch was fetched, degraded when any later step recorded an error.
func (r Report) Outcome() progress.Outcome {
	switch {
	case r.Failed():
		return progress.OutcomeFailed
	case r.FailedChunks > 0 || len(r.Errors) > 0:
		return progress.OutcomeDegraded
	default:
		return progress.OutcomeOK
	}
}

// Duration is the wall time of the cycle.
func (r Report) Duration() time.Duration {
	if r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *Report) advance(s Stage) {
	r.Trail = append(r.Trail, s)
	r.State = s
}

func (r *Report) fail(err error) {
	if err != nil {
		r.Errors = append(r.Errors, err.Error())
	}
}
