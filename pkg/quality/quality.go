// Package quality defines the shared vocabulary of the classifier: the
// five-level quality scale, the measured metrics and the threshold ladders
// that map raw measurements onto the scale.
package quality

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidInput is returned for inputs the computations cannot accept
// (an empty probe batch, a profile whose weights sum to zero).
var ErrInvalidInput = errors.New("invalid input")

// Level is an ordered quality level. The numeric value is the score.
type Level int

const (
	Marginal  Level = 1
	Bad       Level = 2
	Okay      Level = 3
	Good      Level = 4
	Excellent Level = 5
)

// Levels lists every level from best to worst
var Levels = []Level{Excellent, Good, Okay, Bad, Marginal}

// Score returns the numeric score (1..5)
func (l Level) Score() int {
	return int(l)
}

// String returns the display name
func (l Level) String() string {
	switch l {
	case Excellent:
		return "Excellent"
	case Good:
		return "Good"
	case Okay:
		return "Okay"
	case Bad:
		return "Bad"
	case Marginal:
		return "Marginal"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// Valid reports whether l is one of the five levels
func (l Level) Valid() bool {
	return l >= Marginal && l <= Excellent
}

// ParseLevel parses a display name, case-insensitively
func ParseLevel(s string) (Level, error) {
	for _, l := range Levels {
		if strings.EqualFold(strings.TrimSpace(s), l.String()) {
			return l, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown quality level %q", ErrInvalidInput, s)
}

func (l Level) MarshalJSON() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("cannot marshal %s", l)
	}
	return json.Marshal(l.String())
}

func (l *Level) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseLevel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Metric names one of the measured quantities
type Metric string

const (
	SignalStrength Metric = "signal_strength"
	Latency        Metric = "latency"
	Bandwidth      Metric = "bandwidth"
	Jitter         Metric = "jitter"
	PacketLoss     Metric = "packet_loss"
)

// Metrics is the fixed priority order used for tie-breaking and for
// ordering recommendations.
var Metrics = []Metric{SignalStrength, Latency, Bandwidth, Jitter, PacketLoss}

// DisplayName returns the metric name with spaces, e.g. "signal strength"
func (m Metric) DisplayName() string {
	return strings.ReplaceAll(string(m), "_", " ")
}

// Sample is one measurement cycle's raw values
type Sample struct {
	SignalDBm         int     `json:"signal_strength"`
	LatencyMs         int     `json:"latency"`
	BandwidthMbps     float64 `json:"bandwidth"`
	JitterMs          float64 `json:"jitter"`
	PacketLossPercent float64 `json:"packet_loss"`
}

// Classification holds one level per metric
type Classification struct {
	Signal     Level `json:"signal"`
	Latency    Level `json:"latency"`
	Bandwidth  Level `json:"bandwidth"`
	Jitter     Level `json:"jitter"`
	PacketLoss Level `json:"packet_loss"`
}

// Level returns the level for one metric
func (c Classification) Level(m Metric) Level {
	switch m {
	case SignalStrength:
		return c.Signal
	case Latency:
		return c.Latency
	case Bandwidth:
		return c.Bandwidth
	case Jitter:
		return c.Jitter
	case PacketLoss:
		return c.PacketLoss
	default:
		return 0
	}
}

// Worst returns the lowest level among the five metrics
func (c Classification) Worst() Level {
	worst := Excellent
	for _, m := range Metrics {
		if l := c.Level(m); l < worst {
			worst = l
		}
	}
	return worst
}

// Best returns the highest level among the five metrics
func (c Classification) Best() Level {
	best := Marginal
	for _, m := range Metrics {
		if l := c.Level(m); l > best {
			best = l
		}
	}
	return best
}

// Filter returns the metrics, in priority order, whose level satisfies keep
func (c Classification) Filter(keep func(Level) bool) []Metric {
	var out []Metric
	for _, m := range Metrics {
		if keep(c.Level(m)) {
			out = append(out, m)
		}
	}
	return out
}

// String renders "signal=Good latency=Okay ..."
func (c Classification) String() string {
	parts := make([]string, 0, len(Metrics))
	for _, m := range Metrics {
		parts = append(parts, fmt.Sprintf("%s=%s", m, c.Level(m)))
	}
	return strings.Join(parts, " ")
}
