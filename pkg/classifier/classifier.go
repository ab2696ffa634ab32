// Package classifier grades a measurement cycle for an activity: one level
// per metric, an activity-weighted overall level, the critical metric, and
// the human-facing reasoning and advice.
package classifier

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/markus-lassfolk/hifiwifi/pkg/activity"
	"github.com/markus-lassfolk/hifiwifi/pkg/quality"
)

// Measurement is one completed measurement cycle for a room
type Measurement struct {
	RoomID        string         `json:"room_id"`
	RoomName      string         `json:"room_name"`
	Activity      string         `json:"activity"`
	FrequencyBand string         `json:"frequency_band,omitempty"`
	Sample        quality.Sample `json:"sample"`
}

// Classifier combines threshold ladders with an activity registry. It holds
// no mutable state and is safe for concurrent use.
type Classifier struct {
	registry   *activity.Registry
	thresholds quality.Thresholds
	now        func() time.Time
	newID      func() string
}

// New creates a classifier. A nil registry means the built-in profiles.
func New(registry *activity.Registry, thresholds quality.Thresholds) *Classifier {
	if registry == nil {
		registry = activity.DefaultRegistry()
	}
	return &Classifier{
		registry:   registry,
		thresholds: thresholds,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// NewDefault creates a classifier with the built-in profiles and thresholds
func NewDefault() *Classifier {
	return New(activity.DefaultRegistry(), quality.DefaultThresholds())
}

// Registry returns the profile registry in use
func (c *Classifier) Registry() *activity.Registry {
	return c.registry
}

// Thresholds returns the threshold ladders in use
func (c *Classifier) Thresholds() quality.Thresholds {
	return c.thresholds
}

// Classify grades each metric of the sample
func (c *Classifier) Classify(s quality.Sample) quality.Classification {
	return quality.Classification{
		Signal:     c.thresholds.ClassifySignal(s.SignalDBm),
		Latency:    c.thresholds.ClassifyLatency(s.LatencyMs),
		Bandwidth:  c.thresholds.ClassifyBandwidth(s.BandwidthMbps),
		Jitter:     c.thresholds.ClassifyJitter(s.JitterMs),
		PacketLoss: c.thresholds.ClassifyPacketLoss(s.PacketLossPercent),
	}
}

// WeightedScore is sum(score * weight) / sum(weight). It fails with
// quality.ErrInvalidInput when the weights do not sum to a positive number.
func WeightedScore(cl quality.Classification, p activity.Profile) (float64, error) {
	var total, weights float64
	for _, m := range quality.Metrics {
		w := p.Weight(m)
		total += float64(cl.Level(m).Score()) * w
		weights += w
	}
	if !(weights > 0) {
		return 0, fmt.Errorf("%w: profile %q has no positive weight", quality.ErrInvalidInput, p.Activity())
	}
	return total / weights, nil
}

// OverallLevel buckets a weighted score
func OverallLevel(score float64) quality.Level {
	switch {
	case score >= 4.5:
		return quality.Excellent
	case score >= 3.5:
		return quality.Good
	case score >= 2.5:
		return quality.Okay
	case score >= 1.5:
		return quality.Bad
	default:
		return quality.Marginal
	}
}

// MostCriticalMetric returns the profile's most important metric and whether
// it is below Excellent. The metric is a property of the profile alone; ties
// are settled by the fixed metric order, never by the measured levels.
func MostCriticalMetric(cl quality.Classification, p activity.Profile) (quality.Metric, bool) {
	m := p.MostImportant()
	return m, cl.Level(m) < quality.Excellent
}

// Evaluate runs the whole pipeline for one measurement
func (c *Classifier) Evaluate(m Measurement) (*Result, error) {
	act := strings.ToLower(strings.TrimSpace(m.Activity))
	profile := c.registry.Lookup(act)
	cl := c.Classify(m.Sample)

	score, err := WeightedScore(cl, profile)
	if err != nil {
		return nil, fmt.Errorf("failed to score %s: %w", act, err)
	}

	critical, belowBest := MostCriticalMetric(cl, profile)

	return newResult(resultInput{
		id:             c.newID(),
		measurement:    m,
		activity:       act,
		profile:        profile,
		classification: cl,
		score:          score,
		overall:        OverallLevel(score),
		critical:       critical,
		criticalBelow:  belowBest,
		createdAt:      c.now(),
	}), nil
}
