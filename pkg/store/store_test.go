package store

import (
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markus-lassfolk/hifiwifi/pkg"
	"github.com/markus-lassfolk/hifiwifi/pkg/classifier"
	"github.com/markus-lassfolk/hifiwifi/pkg/logx"
	"github.com/markus-lassfolk/hifiwifi/pkg/quality"
	"github.com/markus-lassfolk/hifiwifi/pkg/recommend"
)

func openTestStore(t *testing.T, maxPerRoom int) *ResultStore {
	t.Helper()
	cfg := &Config{Path: filepath.Join(t.TempDir(), "results.db"), MaxPerRoom: maxPerRoom}
	s, err := Open(cfg, logx.NewLoggerWithOutput("error", "store", io.Discard))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func report(room string, ts time.Time, score float64) *pkg.RoomReport {
	return &pkg.RoomReport{
		Classification: classifier.Report{
			ID:                    room + ts.Format(time.RFC3339Nano),
			RoomID:                room,
			Room:                  room,
			Activity:              "general",
			OverallClassification: classifier.OverallLevel(score),
			PerMetric: quality.Classification{
				Signal: quality.Good, Latency: quality.Good, Bandwidth: quality.Good,
				Jitter: quality.Good, PacketLoss: quality.Good,
			},
			WeightedScore:      score,
			MostCriticalMetric: quality.Bandwidth,
			Recommendations:    []string{},
			CreatedAt:          ts,
		},
		Recommendation: recommend.Recommendation{Action: recommend.StayCurrent, ReasonCode: recommend.ReasonSufficientForActivity},
		Rule:           "default",
	}
}

func TestSaveAndHistory(t *testing.T) {
	s := openTestStore(t, 10)
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Save(report("kitchen", base.Add(time.Duration(i)*time.Minute), float64(2+i))))
	}
	require.NoError(t, s.Save(report("office", base, 4.8)))

	history, err := s.History("kitchen", 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, 4.0, history[0].Classification.WeightedScore)
	assert.Equal(t, 2.0, history[2].Classification.WeightedScore)

	limited, err := s.History("kitchen", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	latest, err := s.Latest("office")
	require.NoError(t, err)
	assert.Equal(t, quality.Excellent, latest.Classification.OverallClassification)
	assert.Equal(t, recommend.StayCurrent, latest.Recommendation.Action)
}

func TestHistoryDoesNotLeakAcrossRooms(t *testing.T) {
	s := openTestStore(t, 10)
	ts := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, s.Save(report("den", ts, 3)))
	require.NoError(t, s.Save(report("den2", ts, 4)))
	require.NoError(t, s.Save(report("de", ts, 5)))

	history, err := s.History("den", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "den", history[0].Room())
}

func TestEviction(t *testing.T) {
	s := openTestStore(t, 3)
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Save(report("hall", base.Add(time.Duration(i)*time.Second), float64(i%5)+1)))
	}

	history, err := s.History("hall", 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.True(t, history[2].Timestamp().Equal(base.Add(2*time.Second)))

	rooms, err := s.Rooms()
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, 3, rooms[0].Count)
	assert.Equal(t, "Excellent", rooms[0].LastOverall)
}

func TestEvictionMixesWholeAndFractionalSeconds(t *testing.T) {
	s := openTestStore(t, 1)
	whole := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	fractional := whole.Add(500 * time.Millisecond)

	require.NoError(t, s.Save(report("loft", whole, 2)))
	require.NoError(t, s.Save(report("loft", fractional, 4)))

	latest, err := s.Latest("loft")
	require.NoError(t, err)
	assert.True(t, latest.Timestamp().Equal(fractional), "got %s", latest.Timestamp())
}

func TestHistoryOrderAcrossSubSecondTimestamps(t *testing.T) {
	s := openTestStore(t, 10)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	times := []time.Time{
		base.Add(900 * time.Millisecond),
		base,
		base.Add(time.Second),
		base.Add(50 * time.Millisecond),
	}
	for i, ts := range times {
		require.NoError(t, s.Save(report("loft", ts, float64(i+1))))
	}

	history, err := s.History("loft", 0)
	require.NoError(t, err)
	require.Len(t, history, 4)
	for i := 1; i < len(history); i++ {
		assert.True(t, history[i-1].Timestamp().After(history[i].Timestamp()),
			"%s should be newer than %s", history[i-1].Timestamp(), history[i].Timestamp())
	}
}

func TestSameTimestampKeepsBothReports(t *testing.T) {
	s := openTestStore(t, 10)
	ts := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Save(report("loft", ts, 2)))
	require.NoError(t, s.Save(report("loft", ts, 4)))

	history, err := s.History("loft", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 4.0, history[0].Classification.WeightedScore)
}

func TestLatestNotFound(t *testing.T) {
	s := openTestStore(t, 3)
	_, err := s.Latest("nowhere")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDeleteRoom(t *testing.T) {
	s := openTestStore(t, 3)
	ts := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, s.Save(report("attic", ts, 2)))
	require.NoError(t, s.DeleteRoom("attic"))

	history, err := s.History("attic", 0)
	require.NoError(t, err)
	assert.Empty(t, history)

	rooms, err := s.Rooms()
	require.NoError(t, err)
	assert.Empty(t, rooms)
}

func TestSaveRequiresRoom(t *testing.T) {
	s := openTestStore(t, 3)
	assert.Error(t, s.Save(report("", time.Now(), 3)))
}
