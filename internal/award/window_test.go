package award

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewWindow(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 10, 18, 15, 4, 5, 0, time.UTC)
	end := time.Date(2026, 10, 19, 1, 0, 0, 0, time.UTC)

	w, err := NewWindow(start, end, 50000)
	require.NoError(t, err)
	require.Equal(t, "2026-10-18", w.StartDate())
	require.Equal(t, "2026-10-19", w.EndDate())
	require.True(t, w.Contains(time.Date(2026, 10, 19, 23, 0, 0, 0, time.UTC)))
	require.False(t, w.Contains(time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)))

	_, err = NewWindow(end, start.AddDate(0, 0, -1), 0)
	require.ErrorContains(t, err, "after end")

	_, err = NewWindow(start, end, -1)
	require.ErrorContains(t, err, "min value")

	_, err = NewWindow(time.Time{}, end, 0)
	require.Error(t, err)
}

func TestDefaultWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 19, 7, 0, 0, 0, time.UTC)
	w, err := DefaultWindow(now, 1, 50000)
	require.NoError(t, err)
	require.Equal(t, "2026-10-18", w.StartDate())
	require.Equal(t, "2026-10-19", w.EndDate())
	require.InDelta(t, 50000.0, w.MinValue, 0)

	_, err = DefaultWindow(now, -1, 0)
	require.Error(t, err)
}

func TestParseDate(t *testing.T) {
	t.Parallel()

	got, err := ParseDate("2026-03-04T10:11:12+02:00")
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), got)

	_, err = ParseDate("04.03.2026")
	require.Error(t, err)
	_, err = ParseDate("")
	require.Error(t, err)
}
