package audit

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markus-lassfolk/hifiwifi/pkg"
	"github.com/markus-lassfolk/hifiwifi/pkg/logx"
)

func newTestLogger(t *testing.T, cfg *Config) *DecisionLogger {
	t.Helper()
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(t.TempDir(), "decisions.db")
	}
	dl, err := NewDecisionLogger(cfg, logx.NewLoggerWithOutput("error", "audit", io.Discard))
	require.NoError(t, err)
	t.Cleanup(func() { dl.Close() })
	return dl
}

func decision(id, room, action, reason string, ts time.Time, score float64, acceptable bool) *pkg.Decision {
	return &pkg.Decision{
		ID:            id,
		Timestamp:     ts,
		Room:          room,
		Activity:      "gaming",
		Action:        action,
		ReasonCode:    reason,
		Rule:          "test",
		Overall:       "Good",
		WeightedScore: score,
		Acceptable:    acceptable,
	}
}

func TestLogAndRecent(t *testing.T) {
	dl := newTestLogger(t, &Config{})
	ctx := context.Background()
	base := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, dl.LogDecision(ctx, decision("a", "den", "stay_current", "optimal_all_metrics", base, 5, true)))
	d := decision("b", "den", "move_location", "weak_signal", base.Add(time.Minute), 2, false)
	d.TargetLocation = "closer to router"
	require.NoError(t, dl.LogDecision(ctx, d))
	require.NoError(t, dl.LogDecision(ctx, decision("c", "office", "switch_band", "optimization_opportunity", base.Add(2*time.Minute), 4, true)))

	recent, err := dl.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].ID)
	assert.Equal(t, "b", recent[1].ID)
	assert.Equal(t, "closer to router", recent[1].TargetLocation)
	assert.True(t, recent[1].Timestamp.Equal(base.Add(time.Minute)))

	den, err := dl.ForRoom(ctx, "den", 0)
	require.NoError(t, err)
	assert.Len(t, den, 2)
}

func TestStats(t *testing.T) {
	dl := newTestLogger(t, &Config{})
	ctx := context.Background()
	base := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, dl.LogDecision(ctx, decision("old", "den", "stay_current", "x", base.Add(-time.Hour), 5, true)))
	require.NoError(t, dl.LogDecision(ctx, decision("1", "den", "move_location", "weak_signal", base.Add(time.Minute), 2, false)))
	require.NoError(t, dl.LogDecision(ctx, decision("2", "den", "move_location", "weak_signal", base.Add(2*time.Minute), 1, false)))
	require.NoError(t, dl.LogDecision(ctx, decision("3", "office", "stay_current", "sufficient_for_activity", base.Add(3*time.Minute), 4, true)))

	stats, err := dl.Stats(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Acceptable)
	assert.Equal(t, 2, stats.Actions["move_location"])
	assert.Equal(t, 2, stats.Reasons["weak_signal"])
	assert.Equal(t, 1, stats.Rooms["office"])
	assert.InDelta(t, 7.0/3, stats.AvgScore, 1e-9)
}

func TestCleanup(t *testing.T) {
	dl := newTestLogger(t, &Config{RetentionDays: 7, MaxRecords: 3})
	ctx := context.Background()
	now := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)

	require.NoError(t, dl.LogDecision(ctx, decision("stale", "den", "stay_current", "x", now.AddDate(0, 0, -10), 3, true)))
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("fresh-%d", i)
		require.NoError(t, dl.LogDecision(ctx, decision(id, "den", "stay_current", "x", now.Add(-time.Duration(i)*time.Hour), 3, true)))
	}

	deleted, err := dl.Cleanup(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	remaining, err := dl.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, remaining, 3)
	assert.Equal(t, "fresh-0", remaining[0].ID)
	assert.Equal(t, "fresh-2", remaining[2].ID)
}

func TestLogDecisionReplacesSameID(t *testing.T) {
	dl := newTestLogger(t, &Config{})
	ctx := context.Background()
	ts := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, dl.LogDecision(ctx, decision("same", "den", "stay_current", "x", ts, 3, true)))
	require.NoError(t, dl.LogDecision(ctx, decision("same", "den", "move_location", "weak_signal", ts, 2, false)))

	all, err := dl.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "move_location", all[0].Action)
}

func TestRecentOrdersSubSecondTimestamps(t *testing.T) {
	dl := newTestLogger(t, &Config{})
	ctx := context.Background()
	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, dl.LogDecision(ctx, decision("whole", "den", "stay_current", "x", base, 3, true)))
	require.NoError(t, dl.LogDecision(ctx, decision("half", "den", "stay_current", "x", base.Add(500*time.Millisecond), 3, true)))
	require.NoError(t, dl.LogDecision(ctx, decision("next", "den", "stay_current", "x", base.Add(time.Second), 3, true)))
	local := time.FixedZone("CEST", 2*60*60)
	require.NoError(t, dl.LogDecision(ctx, decision("nano", "den", "stay_current", "x", base.Add(time.Nanosecond).In(local), 3, true)))

	recent, err := dl.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recent, 4)
	assert.Equal(t, []string{"next", "half", "nano", "whole"},
		[]string{recent[0].ID, recent[1].ID, recent[2].ID, recent[3].ID})
	assert.True(t, recent[2].Timestamp.Equal(base.Add(time.Nanosecond)))
	assert.Equal(t, time.UTC, recent[2].Timestamp.Location())
}

func TestStatsAndCleanupBoundariesWithinSecond(t *testing.T) {
	dl := newTestLogger(t, &Config{RetentionDays: 1})
	ctx := context.Background()
	since := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, dl.LogDecision(ctx, decision("at", "den", "stay_current", "x", since, 3, true)))
	require.NoError(t, dl.LogDecision(ctx, decision("after", "den", "stay_current", "x", since.Add(250*time.Millisecond), 3, true)))

	stats, err := dl.Stats(ctx, since)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)

	// cutoff falls between the two decisions
	deleted, err := dl.Cleanup(ctx, since.AddDate(0, 0, 1).Add(100*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	remaining, err := dl.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "after", remaining[0].ID)
}
