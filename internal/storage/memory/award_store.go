package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/award-digest/internal/award"
)

// AwardStore keeps records keyed by natural key, so re-submitting a batch
// overwrites rather than duplicates.
type AwardStore struct {
	mu      sync.RWMutex
	records map[string]award.Record
	order   []string
	upserts int
}

// NewAwardStore constructs an empty AwardStore.
func NewAwardStore() *AwardStore {
	return &AwardStore{records: make(map[string]award.Record)}
}

// Upsert merges the chunk into the store.
func (s *AwardStore) Upsert(ctx context.Context, records []award.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		key := rec.NaturalKey()
		if _, ok := s.records[key]; !ok {
			s.order = append(s.order, key)
		}
		s.records[key] = rec
	}
	s.upserts++
	return nil
}

// List returns the records matching q sorted by value descending.
func (s *AwardStore) List(ctx context.Context, q award.Query) ([]award.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	all := make([]award.Record, 0, len(s.order))
	for _, key := range s.order {
		all = append(all, s.records[key])
	}
	s.mu.RUnlock()

	out := award.Filter(all, q)
	award.SortByValueDesc(out)
	limit := q.Limit
	if limit <= 0 {
		limit = award.DefaultListLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len reports how many distinct records are stored.
func (s *AwardStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Upserts reports how many chunks were accepted.
func (s *AwardStore) Upserts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.upserts
}
