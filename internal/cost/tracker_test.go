package cost

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsLocalAndCloudSeparately(t *testing.T) {
	now := time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC)
	tr := NewTracker(now)

	tr.Record(now, true, 100, 50, 0, 0.01)
	tr.Record(now, false, 200, 100, 0.05, 0)

	daily, monthly := tr.Snapshot()
	require.Equal(t, int64(150), daily.LocalTokens)
	require.Equal(t, int64(300), daily.CloudTokens)
	require.InDelta(t, 0.05, daily.CloudCost, 0.0001)
	require.InDelta(t, 0.01, daily.SavedCost, 0.0001)
	require.Equal(t, int64(2), daily.Requests)
	require.Equal(t, int64(2), monthly.Requests)
	require.InDelta(t, 33.333, monthly.LocalRate, 0.01)
}

func TestTrackerRollsOverToNewDay(t *testing.T) {
	day1 := time.Date(2026, 8, 2, 23, 0, 0, 0, time.UTC)
	tr := NewTracker(day1)
	tr.Record(day1, true, 10, 10, 0, 0)

	day2 := day1.Add(2 * time.Hour)
	tr.Record(day2, true, 5, 5, 0, 0)

	daily, monthly := tr.Snapshot()
	require.Equal(t, "2026-08-03", daily.Date)
	require.Equal(t, int64(10), daily.LocalTokens)
	require.Equal(t, int64(2), monthly.Requests)
}
