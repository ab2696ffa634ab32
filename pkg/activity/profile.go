// Package activity holds the per-activity importance weights used to turn
// five metric levels into one overall verdict.
package activity

import (
	"fmt"
	"math"
	"strings"

	"github.com/markus-lassfolk/hifiwifi/pkg/quality"
)

// Canonical activity keys
const (
	Gaming    = "gaming"
	VideoCall = "video_call"
	Streaming = "streaming"
	General   = "general"
	Work      = "work"
	IoT       = "iot"
)

// Weights is one importance weight per metric, each in [0, 1] in practice
type Weights struct {
	Signal     float64 `json:"signal" yaml:"signal"`
	Latency    float64 `json:"latency" yaml:"latency"`
	Bandwidth  float64 `json:"bandwidth" yaml:"bandwidth"`
	Jitter     float64 `json:"jitter" yaml:"jitter"`
	PacketLoss float64 `json:"packet_loss" yaml:"packet_loss"`
}

// Get returns the weight of one metric
func (w Weights) Get(m quality.Metric) float64 {
	switch m {
	case quality.SignalStrength:
		return w.Signal
	case quality.Latency:
		return w.Latency
	case quality.Bandwidth:
		return w.Bandwidth
	case quality.Jitter:
		return w.Jitter
	case quality.PacketLoss:
		return w.PacketLoss
	default:
		return 0
	}
}

// Total returns the sum of all weights
func (w Weights) Total() float64 {
	var sum float64
	for _, m := range quality.Metrics {
		sum += w.Get(m)
	}
	return sum
}

// Profile is an immutable activity profile
type Profile struct {
	activity string
	weights  Weights
}

// NewProfile validates and builds a profile. Every weight must be a finite
// non-negative number and at least one must be positive.
func NewProfile(activity string, w Weights) (Profile, error) {
	key := normalize(activity)
	if key == "" {
		return Profile{}, fmt.Errorf("%w: activity name is empty", quality.ErrInvalidInput)
	}
	for _, m := range quality.Metrics {
		v := w.Get(m)
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return Profile{}, fmt.Errorf("%w: %s weight for %s is %v", quality.ErrInvalidInput, m, key, v)
		}
	}
	if !(w.Total() > 0) {
		return Profile{}, fmt.Errorf("%w: all weights for %s are zero", quality.ErrInvalidInput, key)
	}
	return Profile{activity: key, weights: w}, nil
}

// mustProfile is for the built-in table only
func mustProfile(activity string, w Weights) Profile {
	p, err := NewProfile(activity, w)
	if err != nil {
		panic(err)
	}
	return p
}

// Activity returns the lowercase activity key
func (p Profile) Activity() string {
	return p.activity
}

// Weights returns a copy of the weights
func (p Profile) Weights() Weights {
	return p.weights
}

// Weight returns the weight of one metric
func (p Profile) Weight(m quality.Metric) float64 {
	return p.weights.Get(m)
}

// TotalWeight returns the sum of all weights
func (p Profile) TotalWeight() float64 {
	return p.weights.Total()
}

// MostImportant returns the metric with the largest weight. Ties go to the
// earlier metric in quality.Metrics.
func (p Profile) MostImportant() quality.Metric {
	best := quality.Metrics[0]
	for _, m := range quality.Metrics[1:] {
		if p.Weight(m) > p.Weight(best) {
			best = m
		}
	}
	return best
}

// LeastImportant returns the metric with the smallest weight. Ties go to the
// later metric in quality.Metrics.
func (p Profile) LeastImportant() quality.Metric {
	last := len(quality.Metrics) - 1
	least := quality.Metrics[last]
	for i := last - 1; i >= 0; i-- {
		m := quality.Metrics[i]
		if p.Weight(m) < p.Weight(least) {
			least = m
		}
	}
	return least
}

// ImportanceLabel describes a weight in words
func ImportanceLabel(weight float64) string {
	switch {
	case weight >= 0.9:
		return "very important"
	case weight >= 0.7:
		return "important"
	case weight >= 0.5:
		return "moderately important"
	default:
		return "less important"
	}
}

// MarshalJSON exposes the profile as {"activity": ..., "weights": {...}}
func (p Profile) MarshalJSON() ([]byte, error) {
	return marshalProfile(p)
}

func normalize(activity string) string {
	return strings.ToLower(strings.TrimSpace(activity))
}
