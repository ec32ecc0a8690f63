package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/award-digest/internal/award"
)

func TestAwardStoreResubmissionDoesNotDuplicate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewAwardStore()
	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	batch := []award.Record{
		{CompanyID: "1", NoticeID: "n-1", Value: 100, AwardDate: date},
		{CompanyID: "2", NoticeID: "n-2", Value: 250, AwardDate: date},
	}

	require.NoError(t, store.Upsert(ctx, batch))
	require.NoError(t, store.Upsert(ctx, batch))

	require.Equal(t, 2, store.Len())
	require.Equal(t, 2, store.Upserts())

	listed, err := store.List(ctx, award.Query{})
	require.NoError(t, err)
	require.InDelta(t, 350.0, award.Summarize(listed).Total, 0)
	require.Equal(t, "2", listed[0].CompanyID)
}

func TestAwardStoreListAppliesQuery(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewAwardStore()
	require.NoError(t, store.Upsert(ctx, []award.Record{
		{CompanyID: "1", NoticeID: "a", Value: 10, AwardDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{CompanyID: "1", NoticeID: "b", Value: 20, AwardDate: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
		{CompanyID: "1", NoticeID: "c", Value: 30, AwardDate: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)},
	}))

	got, err := store.List(ctx, award.Query{
		From:  time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		To:    time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
		Limit: 1,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "c", got[0].NoticeID)
}

func TestAwardStoreHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, NewAwardStore().Upsert(ctx, nil), context.Canceled)
}
