package quality

import (
	"fmt"
	"math"
)

// Direction says which way is better for a metric
type Direction int

const (
	HigherIsBetter Direction = iota
	LowerIsBetter
)

// Ladder is the four cutoffs for Excellent, Good, Okay and Bad. Anything
// past the last cutoff is Marginal. Cutoffs are inclusive on the better side.
type Ladder struct {
	Direction Direction  `json:"-"`
	Cutoffs   [4]float64 `json:"cutoffs"`
}

// Classify maps a value onto the ladder. NaN is Marginal.
func (l Ladder) Classify(v float64) Level {
	if math.IsNaN(v) {
		return Marginal
	}
	for i, cut := range l.Cutoffs {
		if l.better(v, cut) {
			return Levels[i]
		}
	}
	return Marginal
}

func (l Ladder) better(v, cut float64) bool {
	if l.Direction == LowerIsBetter {
		return v <= cut
	}
	return v >= cut
}

func (l Ladder) validate() error {
	for i := 1; i < len(l.Cutoffs); i++ {
		prev, cur := l.Cutoffs[i-1], l.Cutoffs[i]
		if l.Direction == HigherIsBetter && cur > prev {
			return fmt.Errorf("cutoffs must decrease: %v", l.Cutoffs)
		}
		if l.Direction == LowerIsBetter && cur < prev {
			return fmt.Errorf("cutoffs must increase: %v", l.Cutoffs)
		}
	}
	return nil
}

// Thresholds holds one ladder per metric
type Thresholds struct {
	Signal     Ladder
	Latency    Ladder
	Bandwidth  Ladder
	Jitter     Ladder
	PacketLoss Ladder
}

// DefaultThresholds returns the standard ladders:
//
//	signal (dBm)      >= -30, -50, -65, -80
//	latency (ms)      <= 20, 50, 100, 200
//	bandwidth (Mbps)  >= 100, 50, 25, 10
//	jitter (ms)       <= 5, 10, 20, 50
//	packet loss (%)   <= 0.1, 0.5, 1.0, 2.0
func DefaultThresholds() Thresholds {
	return Thresholds{
		Signal:     Ladder{Direction: HigherIsBetter, Cutoffs: [4]float64{-30, -50, -65, -80}},
		Latency:    Ladder{Direction: LowerIsBetter, Cutoffs: [4]float64{20, 50, 100, 200}},
		Bandwidth:  Ladder{Direction: HigherIsBetter, Cutoffs: [4]float64{100, 50, 25, 10}},
		Jitter:     Ladder{Direction: LowerIsBetter, Cutoffs: [4]float64{5, 10, 20, 50}},
		PacketLoss: Ladder{Direction: LowerIsBetter, Cutoffs: [4]float64{0.1, 0.5, 1.0, 2.0}},
	}
}

// Validate checks that every ladder is monotonic
func (t Thresholds) Validate() error {
	for _, m := range Metrics {
		if err := t.Ladder(m).validate(); err != nil {
			return fmt.Errorf("%w: %s thresholds: %v", ErrInvalidInput, m, err)
		}
	}
	return nil
}

// Ladder returns the ladder for one metric
func (t Thresholds) Ladder(m Metric) Ladder {
	switch m {
	case SignalStrength:
		return t.Signal
	case Latency:
		return t.Latency
	case Bandwidth:
		return t.Bandwidth
	case Jitter:
		return t.Jitter
	default:
		return t.PacketLoss
	}
}

// ClassifySignal buckets an RSSI in dBm against t.Signal
func (t Thresholds) ClassifySignal(dBm int) Level {
	return t.Signal.Classify(float64(dBm))
}

// ClassifyLatency buckets a round trip in ms against t.Latency
func (t Thresholds) ClassifyLatency(ms int) Level {
	return t.Latency.Classify(float64(ms))
}

// ClassifyBandwidth buckets a throughput in Mbps against t.Bandwidth
func (t Thresholds) ClassifyBandwidth(mbps float64) Level {
	return t.Bandwidth.Classify(mbps)
}

// ClassifyJitter buckets jitter in ms against t.Jitter
func (t Thresholds) ClassifyJitter(ms float64) Level {
	return t.Jitter.Classify(ms)
}

// ClassifyPacketLoss buckets a loss percentage against t.PacketLoss
func (t Thresholds) ClassifyPacketLoss(percent float64) Level {
	return t.PacketLoss.Classify(percent)
}

var defaults = DefaultThresholds()

// ClassifySignal classifies with the default ladder
func ClassifySignal(dBm int) Level { return defaults.ClassifySignal(dBm) }

// ClassifyLatency classifies with the default ladder
func ClassifyLatency(ms int) Level { return defaults.ClassifyLatency(ms) }

// ClassifyBandwidth classifies with the default ladder
func ClassifyBandwidth(mbps float64) Level { return defaults.ClassifyBandwidth(mbps) }

// ClassifyJitter classifies with the default ladder
func ClassifyJitter(ms float64) Level { return defaults.ClassifyJitter(ms) }

// ClassifyPacketLoss classifies with the default ladder
func ClassifyPacketLoss(percent float64) Level { return defaults.ClassifyPacketLoss(percent) }
