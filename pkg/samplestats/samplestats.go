// Package samplestats turns raw probe outcomes into packet loss and
// outlier-resistant jitter figures.
package samplestats

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/markus-lassfolk/hifiwifi/pkg/quality"
)

const (
	// DefaultWindowSize is the number of successful latencies kept for jitter
	DefaultWindowSize = 10
	// DefaultLossBatchSize is the number of probes sent per loss measurement
	DefaultLossBatchSize = 25
	// OutlierFactor drops latencies above this multiple of the mean
	OutlierFactor = 3.0
)

// Probe is the outcome of a single round-trip probe
type Probe struct {
	LatencyMs float64 `json:"latency_ms"`
	Failed    bool    `json:"failed"`
}

// Summary aggregates a probe batch
type Summary struct {
	Total             int       `json:"total"`
	Failed            int       `json:"failed"`
	PacketLossPercent float64   `json:"packet_loss"`
	JitterMs          float64   `json:"jitter"`
	MeanLatencyMs     float64   `json:"mean_latency"`
	Latencies         []float64 `json:"latencies"`
}

// PacketLoss returns 100 * failed / total
func PacketLoss(probes []Probe) (float64, error) {
	if len(probes) == 0 {
		return 0, fmt.Errorf("%w: packet loss over zero probes", quality.ErrInvalidInput)
	}
	failed := 0
	for _, p := range probes {
		if p.Failed {
			failed++
		}
	}
	return 100 * float64(failed) / float64(len(probes)), nil
}

// RetainedLatencies returns the latencies of the last window successful
// probes, oldest first. A window <= 0 means DefaultWindowSize.
func RetainedLatencies(probes []Probe, window int) []float64 {
	if window <= 0 {
		window = DefaultWindowSize
	}
	out := make([]float64, 0, window)
	for _, p := range probes {
		if !p.Failed {
			out = append(out, p.LatencyMs)
		}
	}
	if len(out) > window {
		out = out[len(out)-window:]
	}
	return out
}

// FilterOutliers drops values greater than OutlierFactor times the mean of
// the input. If fewer than two values survive, the input is returned as is.
func FilterOutliers(latencies []float64) []float64 {
	if len(latencies) == 0 {
		return latencies
	}
	limit := OutlierFactor * stat.Mean(latencies, nil)

	kept := make([]float64, 0, len(latencies))
	for _, v := range latencies {
		if v <= limit {
			kept = append(kept, v)
		}
	}
	if len(kept) < 2 {
		return latencies
	}
	return kept
}

// Jitter is the population standard deviation of the outlier-filtered
// latencies, or 0 with fewer than two samples.
func Jitter(latencies []float64) float64 {
	if len(latencies) < 2 {
		return 0
	}
	_, std := stat.PopMeanStdDev(FilterOutliers(latencies), nil)
	return std
}

// Summarize computes loss over the whole batch and jitter over the retained window
func Summarize(probes []Probe, window int) (Summary, error) {
	loss, err := PacketLoss(probes)
	if err != nil {
		return Summary{}, err
	}

	retained := RetainedLatencies(probes, window)
	s := Summary{
		Total:             len(probes),
		PacketLossPercent: loss,
		JitterMs:          Jitter(retained),
		Latencies:         retained,
	}
	for _, p := range probes {
		if p.Failed {
			s.Failed++
		}
	}
	if len(retained) > 0 {
		s.MeanLatencyMs = stat.Mean(retained, nil)
	}
	return s, nil
}
