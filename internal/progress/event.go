package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageCycleStart   Stage = "CYCLE_START"
	StageEndpointDone Stage = "ENDPOINT_DONE"
	StageChunkDone    Stage = "CHUNK_DONE"
	StageDigestDone   Stage = "DIGEST_DONE"
	StageCycleDone    Stage = "CYCLE_DONE"
)

// Outcome is the result attached to completion stages.
type Outcome string

// Supported outcomes.
const (
	OutcomeOK       Outcome = "ok"
	OutcomeFailed   Outcome = "failed"
	OutcomeDegraded Outcome = "degraded"
	OutcomeSkipped  Outcome = "skipped"
)

// Counts carries the record counters of a finished cycle.
type Counts struct {
	Fetched      int64
	Retained     int64
	Duplicates   int64
	Persisted    int64
	FailedChunks int64
}

// Event captures a single milestone of a sync cycle.
type Event struct {
	// CycleID uniquely identifies a cycle using the 16-byte UUID form.
	CycleID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	Stage Stage
	// WindowStart and WindowEnd are set on CYCLE_START.
	WindowStart time.Time
	WindowEnd   time.Time
	// Endpoint is the candidate address for ENDPOINT_DONE and the resolved one for CYCLE_DONE.
	Endpoint string
	Outcome  Outcome
	// Attempts counts HTTP attempts made against Endpoint.
	Attempts int
	// Chunk is the zero-based chunk index for CHUNK_DONE.
	Chunk int
	// Records is the chunk size for CHUNK_DONE.
	Records int64
	Counts  Counts
	Dur     time.Duration
	// Note lets emitters attach low-volume context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.CycleID == [16]byte{} {
		return errors.New("cycle id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageCycleStart:
		if e.WindowStart.IsZero() || e.WindowEnd.IsZero() {
			return errors.New("cycle start requires window bounds")
		}
	case StageEndpointDone:
		if e.Endpoint == "" {
			return errors.New("endpoint done requires endpoint")
		}
		if e.Outcome == "" {
			return errors.New("endpoint done requires outcome")
		}
	case StageChunkDone:
		if e.Chunk < 0 {
			return errors.New("chunk index must be >= 0")
		}
		if e.Outcome == "" {
			return errors.New("chunk done requires outcome")
		}
	case StageDigestDone, StageCycleDone:
		if e.Outcome == "" {
			return fmt.Errorf("%s requires outcome", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// CycleUUID converts the binary cycle ID to uuid.UUID for repositories.
func (e Event) CycleUUID() uuid.UUID {
	return uuid.UUID(e.CycleID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
