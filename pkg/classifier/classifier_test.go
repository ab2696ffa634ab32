package classifier

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markus-lassfolk/hifiwifi/pkg/activity"
	"github.com/markus-lassfolk/hifiwifi/pkg/quality"
)

func newTestClassifier() *Classifier {
	c := NewDefault()
	c.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	c.newID = func() string { return "result-1" }
	return c
}

func allLevels(l quality.Level) quality.Classification {
	return quality.Classification{Signal: l, Latency: l, Bandwidth: l, Jitter: l, PacketLoss: l}
}

func TestClassify(t *testing.T) {
	c := newTestClassifier()
	cl := c.Classify(quality.Sample{SignalDBm: -60, LatencyMs: 120, BandwidthMbps: 30, JitterMs: 4, PacketLossPercent: 1.5})

	assert.Equal(t, quality.Okay, cl.Signal)
	assert.Equal(t, quality.Bad, cl.Latency)
	assert.Equal(t, quality.Okay, cl.Bandwidth)
	assert.Equal(t, quality.Excellent, cl.Jitter)
	assert.Equal(t, quality.Bad, cl.PacketLoss)
}

func TestWeightedScore(t *testing.T) {
	registry := activity.DefaultRegistry()

	score, err := WeightedScore(allLevels(quality.Good), registry.Lookup("gaming"))
	require.NoError(t, err)
	assert.InDelta(t, 4.0, score, 1e-9)

	cl := allLevels(quality.Excellent)
	cl.Latency = quality.Marginal
	score, err = WeightedScore(cl, registry.Lookup("gaming"))
	require.NoError(t, err)
	// (0.8*5 + 1.0*1 + 0.7*5 + 1.0*5 + 0.9*5) / 4.4
	assert.InDelta(t, 18.0/4.4, score, 1e-9)
}

func TestWeightedScoreZeroWeights(t *testing.T) {
	_, err := WeightedScore(allLevels(quality.Good), activity.Profile{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, quality.ErrInvalidInput))
}

func TestWeightedScoreScaleInvariant(t *testing.T) {
	base := activity.DefaultRegistry().Lookup("streaming").Weights()
	scaled := activity.Weights{
		Signal:     base.Signal * 7.5,
		Latency:    base.Latency * 7.5,
		Bandwidth:  base.Bandwidth * 7.5,
		Jitter:     base.Jitter * 7.5,
		PacketLoss: base.PacketLoss * 7.5,
	}
	p1, err := activity.NewProfile("a", base)
	require.NoError(t, err)
	p2, err := activity.NewProfile("b", scaled)
	require.NoError(t, err)

	cl := quality.Classification{
		Signal:     quality.Good,
		Latency:    quality.Marginal,
		Bandwidth:  quality.Okay,
		Jitter:     quality.Bad,
		PacketLoss: quality.Excellent,
	}
	s1, err := WeightedScore(cl, p1)
	require.NoError(t, err)
	s2, err := WeightedScore(cl, p2)
	require.NoError(t, err)
	assert.InDelta(t, s1, s2, 1e-9)
}

func TestWeightedScoreBoundedAndMonotonic(t *testing.T) {
	registry := activity.DefaultRegistry()
	for _, p := range registry.Profiles() {
		for _, l := range quality.Levels {
			base := allLevels(l)
			s, err := WeightedScore(base, p)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, s, 1.0)
			assert.LessOrEqual(t, s, 5.0)

			// raising any single metric never lowers the score
			for _, m := range quality.Metrics {
				better := raise(base, m)
				s2, err := WeightedScore(better, p)
				require.NoError(t, err)
				assert.GreaterOrEqual(t, s2, s, "%s %s %s", p.Activity(), l, m)
			}
		}
	}
}

func raise(cl quality.Classification, m quality.Metric) quality.Classification {
	up := func(l quality.Level) quality.Level {
		if l < quality.Excellent {
			return l + 1
		}
		return l
	}
	switch m {
	case quality.SignalStrength:
		cl.Signal = up(cl.Signal)
	case quality.Latency:
		cl.Latency = up(cl.Latency)
	case quality.Bandwidth:
		cl.Bandwidth = up(cl.Bandwidth)
	case quality.Jitter:
		cl.Jitter = up(cl.Jitter)
	case quality.PacketLoss:
		cl.PacketLoss = up(cl.PacketLoss)
	}
	return cl
}

func TestOverallLevel(t *testing.T) {
	tests := []struct {
		score float64
		want  quality.Level
	}{
		{5.0, quality.Excellent},
		{4.5, quality.Excellent},
		{4.49, quality.Good},
		{3.5, quality.Good},
		{3.49, quality.Okay},
		{2.5, quality.Okay},
		{2.49, quality.Bad},
		{1.5, quality.Bad},
		{1.49, quality.Marginal},
		{1.0, quality.Marginal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, OverallLevel(tt.score), "score %v", tt.score)
	}
}

func TestMostCriticalMetric(t *testing.T) {
	gaming := activity.DefaultRegistry().Lookup("gaming")

	cl := allLevels(quality.Excellent)
	cl.Latency = quality.Marginal
	m, below := MostCriticalMetric(cl, gaming)
	assert.Equal(t, quality.Latency, m)
	assert.True(t, below)

	// jitter ties latency at 1.0 but the fixed order keeps latency
	cl = allLevels(quality.Excellent)
	cl.Jitter = quality.Marginal
	m, below = MostCriticalMetric(cl, gaming)
	assert.Equal(t, quality.Latency, m)
	assert.False(t, below)
}

func TestEvaluateGamingExcellent(t *testing.T) {
	c := newTestClassifier()
	r, err := c.Evaluate(Measurement{
		RoomID:   "room-1",
		RoomName: "Den",
		Activity: "gaming",
		Sample:   quality.Sample{SignalDBm: -40, LatencyMs: 15, BandwidthMbps: 150, JitterMs: 3, PacketLossPercent: 0.05},
	})
	require.NoError(t, err)

	// -40 dBm is Good on the signal ladder; the rest are Excellent
	cl := r.Classification()
	assert.Equal(t, quality.Good, cl.Signal)
	assert.Equal(t, quality.Excellent, cl.Latency)
	assert.Equal(t, quality.Excellent, cl.Bandwidth)
	assert.Equal(t, quality.Excellent, cl.Jitter)
	assert.Equal(t, quality.Excellent, cl.PacketLoss)

	assert.InDelta(t, 21.2/4.4, r.WeightedScore(), 1e-9)
	assert.Equal(t, quality.Excellent, r.Overall())
	assert.True(t, r.IsAcceptableForActivity())
	assert.Empty(t, r.Recommendations())
	assert.Equal(t, "Excellent WiFi for gaming in Den: latency is excellent, and latency is very important for gaming", r.Reasoning())
}

func TestEvaluateAllExcellent(t *testing.T) {
	c := newTestClassifier()
	r, err := c.Evaluate(Measurement{
		RoomName: "Den",
		Activity: "gaming",
		Sample:   quality.Sample{SignalDBm: -30, LatencyMs: 15, BandwidthMbps: 150, JitterMs: 3, PacketLossPercent: 0.05},
	})
	require.NoError(t, err)

	assert.Equal(t, allLevels(quality.Excellent), r.Classification())
	assert.InDelta(t, 5.0, r.WeightedScore(), 1e-9)
	assert.Equal(t, quality.Excellent, r.Overall())
	m, below := r.MostCriticalMetric()
	assert.Equal(t, quality.Latency, m)
	assert.False(t, below)
}

func TestEvaluateGeneralMarginal(t *testing.T) {
	c := newTestClassifier()
	r, err := c.Evaluate(Measurement{
		RoomName: "Garage",
		Activity: "general",
		Sample:   quality.Sample{SignalDBm: -85, LatencyMs: 250, BandwidthMbps: 5, JitterMs: 60, PacketLossPercent: 3.0},
	})
	require.NoError(t, err)

	assert.Equal(t, allLevels(quality.Marginal), r.Classification())
	assert.Equal(t, quality.Marginal, r.Overall())
	assert.False(t, r.IsAcceptableForActivity())

	assert.Equal(t, []string{
		"Move closer to the router or consider a WiFi extender",
		"Check for physical obstructions between device and router",
		"Check for network congestion or switch to 5GHz band",
		"Consider using a wired connection for better latency",
		"Upgrade your internet plan or check for bandwidth limits",
		"Close unnecessary applications using bandwidth",
		"Check for network interference or switch to a less congested channel",
		"Consider using QoS settings on your router",
		"Check for network interference or hardware issues",
		"Try restarting your router and modem",
	}, r.Recommendations())
	assert.Equal(t, "Marginal WiFi for general in Garage: bandwidth is marginal", r.Reasoning())
}

func TestEvaluateActivityAdvice(t *testing.T) {
	c := newTestClassifier()
	// all Okay: no per-metric advice, overall 3 triggers activity advice
	sample := quality.Sample{SignalDBm: -60, LatencyMs: 80, BandwidthMbps: 30, JitterMs: 15, PacketLossPercent: 0.8}

	tests := []struct {
		activity string
		want     []string
	}{
		{"gaming", []string{
			"Consider using a gaming router with QoS features",
			"Use a wired connection for the best gaming experience",
		}},
		{"streaming", []string{
			"Lower video quality settings if available",
			"Schedule streaming during off-peak hours",
		}},
		{"video_call", []string{
			"Close other applications during video calls",
			"Use a wired connection for important meetings",
		}},
		{"work", []string{}},
		{"iot", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.activity, func(t *testing.T) {
			r, err := c.Evaluate(Measurement{RoomName: "Office", Activity: tt.activity, Sample: sample})
			require.NoError(t, err)
			assert.Equal(t, quality.Okay, r.Overall())
			assert.Equal(t, tt.want, r.Recommendations())
		})
	}
}

func TestReasoningEmphasis(t *testing.T) {
	c := newTestClassifier()
	sample := quality.Sample{SignalDBm: -60, LatencyMs: 80, BandwidthMbps: 30, JitterMs: 15, PacketLossPercent: 0.8}

	r, err := c.Evaluate(Measurement{RoomName: "Lounge", Activity: "Streaming", Sample: sample})
	require.NoError(t, err)
	assert.Equal(t, "Okay WiFi for streaming in Lounge: bandwidth is okay, and bandwidth is very important for streaming", r.Reasoning())

	// video_call's most important metric is latency, so no jitter clause
	r, err = c.Evaluate(Measurement{RoomName: "Lounge", Activity: "video_call", Sample: sample})
	require.NoError(t, err)
	assert.Equal(t, "Okay WiFi for video_call in Lounge: latency is okay", r.Reasoning())

	r, err = c.Evaluate(Measurement{RoomID: "r-9", Activity: "iot", Sample: sample})
	require.NoError(t, err)
	assert.Equal(t, "Okay WiFi for iot in r-9: signal strength is okay", r.Reasoning())
}

func TestAcceptability(t *testing.T) {
	assert.Equal(t, 4, MinimumScore("gaming"))
	assert.Equal(t, 4, MinimumScore("VIDEO_CALL"))
	assert.Equal(t, 3, MinimumScore("streaming"))
	assert.Equal(t, 2, MinimumScore("general"))
	assert.Equal(t, 3, MinimumScore("work"))
	assert.Equal(t, 3, MinimumScore("browsing"))

	c := newTestClassifier()
	okay := quality.Sample{SignalDBm: -60, LatencyMs: 80, BandwidthMbps: 30, JitterMs: 15, PacketLossPercent: 0.8}

	for activity, want := range map[string]bool{
		"gaming":     false,
		"video_call": false,
		"streaming":  true,
		"general":    true,
		"work":       true,
		"unknown":    true,
	} {
		r, err := c.Evaluate(Measurement{Activity: activity, Sample: okay})
		require.NoError(t, err)
		assert.Equal(t, want, r.IsAcceptableForActivity(), activity)
	}
}

func TestUnknownActivityUsesGeneralProfile(t *testing.T) {
	c := newTestClassifier()
	r, err := c.Evaluate(Measurement{Activity: "Browsing", Sample: quality.Sample{SignalDBm: -55}})
	require.NoError(t, err)
	assert.Equal(t, "browsing", r.Activity())
	assert.Equal(t, "general", r.Profile().Activity())
}

func TestMetricDetails(t *testing.T) {
	c := newTestClassifier()
	r, err := c.Evaluate(Measurement{
		RoomName: "Den",
		Activity: "gaming",
		Sample:   quality.Sample{SignalDBm: -70, LatencyMs: 250, BandwidthMbps: 150, JitterMs: 30, PacketLossPercent: 0.05},
	})
	require.NoError(t, err)

	d := r.MetricDetail(quality.Latency)
	assert.Equal(t, quality.Marginal, d.Level)
	assert.Equal(t, 1.0, d.Importance)
	assert.True(t, d.Critical())
	assert.True(t, d.PerformingPoorly())
	assert.Equal(t, "latency is marginal and is very important for gaming", d.Reasoning)
	assert.Equal(t, "LATENCY: Marginal (importance: 1.0)", d.Summary())

	bw := r.MetricDetail(quality.Bandwidth)
	assert.Equal(t, "bandwidth is excellent and is important for gaming", bw.Reasoning)
	assert.False(t, bw.Critical())
	assert.True(t, bw.PerformingWell())

	assert.Len(t, r.MetricDetails(), 5)
	assert.Equal(t, []quality.Metric{quality.Bandwidth, quality.PacketLoss}, r.WellPerformingMetrics())
	assert.Equal(t, []quality.Metric{quality.SignalStrength, quality.Latency, quality.Jitter}, r.PoorlyPerformingMetrics())

	m, ok := r.MostImportantPoorMetric()
	require.True(t, ok)
	assert.Equal(t, quality.Latency, m)
}

func TestMostImportantPoorMetricNone(t *testing.T) {
	c := newTestClassifier()
	r, err := c.Evaluate(Measurement{Activity: "gaming", Sample: quality.Sample{SignalDBm: -30, LatencyMs: 10, BandwidthMbps: 200}})
	require.NoError(t, err)
	_, ok := r.MostImportantPoorMetric()
	assert.False(t, ok)
}

func TestResultIsImmutable(t *testing.T) {
	c := newTestClassifier()
	r, err := c.Evaluate(Measurement{Activity: "general", Sample: quality.Sample{SignalDBm: -90, LatencyMs: 500}})
	require.NoError(t, err)

	recs := r.Recommendations()
	require.NotEmpty(t, recs)
	recs[0] = "changed"
	assert.NotEqual(t, "changed", r.Recommendations()[0])
}

func TestReportJSON(t *testing.T) {
	c := newTestClassifier()
	r, err := c.Evaluate(Measurement{
		RoomID:        "room-1",
		RoomName:      "Den",
		Activity:      "gaming",
		FrequencyBand: "5GHz",
		Sample:        quality.Sample{SignalDBm: -40, LatencyMs: 15, BandwidthMbps: 150, JitterMs: 3, PacketLossPercent: 0.05},
	})
	require.NoError(t, err)

	data, err := json.Marshal(r.Report())
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "Excellent", decoded["overall_classification"])
	assert.Equal(t, "latency", decoded["most_critical_metric"])
	assert.Equal(t, true, decoded["is_acceptable_for_activity"])
	assert.Equal(t, []interface{}{}, decoded["recommendations"])
	assert.Equal(t, "result-1", decoded["id"])

	perMetric, ok := decoded["per_metric"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Good", perMetric["signal"])
	assert.Equal(t, "Excellent", perMetric["packet_loss"])

	var back Report
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, r.Report(), back)
}

func TestSummary(t *testing.T) {
	c := newTestClassifier()
	r, err := c.Evaluate(Measurement{RoomName: "Den", Activity: "iot", Sample: quality.Sample{SignalDBm: -30}})
	require.NoError(t, err)
	assert.Contains(t, r.Summary(), "in Den for iot")
}
