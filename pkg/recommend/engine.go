// Package recommend decides whether the user should stay, move closer to
// the router or switch band. It is an ordered rule chain over bucketed
// readings, independent of the weighted classifier.
package recommend

import (
	"strings"
)

// Action is what the user is told to do
type Action string

const (
	StayCurrent  Action = "stay_current"
	MoveLocation Action = "move_location"
	SwitchBand   Action = "switch_band"
)

// Reason codes
const (
	ReasonOptimalAllMetrics       = "optimal_all_metrics"
	ReasonWeakSignal              = "weak_signal"
	ReasonOptimizationOpportunity = "optimization_opportunity"
	ReasonInsufficientForActivity = "insufficient_for_activity"
	ReasonSufficientForActivity   = "sufficient_for_activity"
)

// TargetCloserToRouter is the only location the rules suggest
const TargetCloserToRouter = "closer to router"

// Input is the bucketed state the rules look at
type Input struct {
	Signal    Bucket `json:"signal_strength"`
	Latency   Bucket `json:"latency"`
	Bandwidth Bucket `json:"bandwidth"`
	Band      string `json:"frequency"`
	Activity  string `json:"activity"`
}

// Recommendation is the engine's decision
type Recommendation struct {
	Action         Action `json:"action"`
	ReasonCode     string `json:"reason_code"`
	TargetLocation string `json:"target_location,omitempty"`
}

// Rule pairs a predicate with the recommendation it yields
type Rule struct {
	Name   string
	Match  func(Input) bool
	Result Recommendation
}

// Engine evaluates rules in order; the first match wins
type Engine struct {
	rules    []Rule
	fallback Recommendation
}

// NewEngine returns the standard rule chain
func NewEngine() *Engine {
	return &Engine{
		rules: DefaultRules(),
		fallback: Recommendation{
			Action:     StayCurrent,
			ReasonCode: ReasonSufficientForActivity,
		},
	}
}

// DefaultRules returns the standard rules, highest priority first
func DefaultRules() []Rule {
	return []Rule{
		{
			Name: "all_excellent",
			Match: func(in Input) bool {
				return in.Signal == BucketExcellent && in.Latency == BucketExcellent && in.Bandwidth == BucketExcellent
			},
			Result: Recommendation{Action: StayCurrent, ReasonCode: ReasonOptimalAllMetrics},
		},
		{
			Name:   "weak_signal",
			Match:  func(in Input) bool { return weakSignal(in.Signal) },
			Result: Recommendation{Action: MoveLocation, ReasonCode: ReasonWeakSignal, TargetLocation: TargetCloserToRouter},
		},
		{
			Name: "band_upgrade",
			Match: func(in Input) bool {
				return (in.Signal == BucketGood || in.Signal == BucketExcellent) &&
					in.Band == Band24GHz &&
					highBandwidthActivity(in.Activity)
			},
			Result: Recommendation{Action: SwitchBand, ReasonCode: ReasonOptimizationOpportunity},
		},
		{
			Name:   "insufficient",
			Match:  func(in Input) bool { return !sufficientForActivity(in) },
			Result: Recommendation{Action: MoveLocation, ReasonCode: ReasonInsufficientForActivity, TargetLocation: TargetCloserToRouter},
		},
	}
}

// Recommend runs the rule chain
func (e *Engine) Recommend(in Input) Recommendation {
	rec, _ := e.Explain(in)
	return rec
}

// Explain runs the rule chain and also returns the name of the rule that
// fired, or "default"
func (e *Engine) Explain(in Input) (Recommendation, string) {
	in = normalizeInput(in)
	for _, r := range e.rules {
		if r.Match(in) {
			return r.Result, r.Name
		}
	}
	return e.fallback, "default"
}

func normalizeInput(in Input) Input {
	if b, ok := ParseBucket(string(in.Signal)); ok {
		in.Signal = b
	}
	if b, ok := ParseBucket(string(in.Latency)); ok {
		in.Latency = b
	}
	if b, ok := ParseBucket(string(in.Bandwidth)); ok {
		in.Bandwidth = b
	}
	in.Activity = strings.ToLower(strings.TrimSpace(in.Activity))
	in.Band = normalizeBand(in.Band)
	return in
}

func normalizeBand(band string) string {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(band), " ", "")) {
	case "2.4ghz", "2.4":
		return Band24GHz
	case "5ghz", "5":
		return Band5GHz
	default:
		return band
	}
}

func weakSignal(b Bucket) bool {
	return b == BucketPoor || b == BucketVeryPoor
}

func highBandwidthActivity(activity string) bool {
	switch activity {
	case "streaming", "gaming", "video_call":
		return true
	}
	return false
}

func sufficientForActivity(in Input) bool {
	switch in.Activity {
	case "gaming", "video_call":
		return (in.Latency == BucketExcellent || in.Latency == BucketGood) && !weakSignal(in.Signal)
	case "streaming":
		return in.Bandwidth != BucketPoor
	case "browsing":
		return in.Signal != BucketVeryPoor
	default:
		return true
	}
}
