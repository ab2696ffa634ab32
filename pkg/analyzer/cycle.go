package analyzer

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/markus-lassfolk/hifiwifi/pkg"
	"github.com/markus-lassfolk/hifiwifi/pkg/classifier"
	"github.com/markus-lassfolk/hifiwifi/pkg/probe"
	"github.com/markus-lassfolk/hifiwifi/pkg/quality"
	"github.com/markus-lassfolk/hifiwifi/pkg/samplestats"
)

// Batcher sends one batch of probes
type Batcher interface {
	Batch(ctx context.Context) ([]samplestats.Probe, error)
}

// LinkSource reads the current link state of an interface
type LinkSource interface {
	Read(ctx context.Context, iface string) (probe.LinkInfo, error)
}

// Station describes the room this host measures from
type Station struct {
	RoomID    string
	RoomName  string
	Activity  string
	Interface string
}

// LocalCycle measures from this host: a probe batch feeds the latency
// window, the link is read, and the resulting sample is analysed.
type LocalCycle struct {
	analyzer *Analyzer
	prober   Batcher
	link     LinkSource
	window   *probe.Window
	station  Station
}

// NewLocalCycle creates a local measurement cycle
func NewLocalCycle(a *Analyzer, prober Batcher, link LinkSource, windowSize int, station Station) *LocalCycle {
	return &LocalCycle{
		analyzer: a,
		prober:   prober,
		link:     link,
		window:   probe.NewWindow(windowSize),
		station:  station,
	}
}

// Window exposes the latency window, mainly for status output
func (c *LocalCycle) Window() *probe.Window {
	return c.window
}

// Run performs one cycle
func (c *LocalCycle) Run(ctx context.Context) (*pkg.RoomReport, error) {
	timer := c.analyzer.perf.Start("probe_batch")
	probes, err := c.prober.Batch(ctx)
	timer.Done(err)
	if err != nil {
		return nil, fmt.Errorf("failed to probe: %w", err)
	}

	loss, err := samplestats.PacketLoss(probes)
	if err != nil {
		return nil, err
	}
	c.window.Add(probes)

	link, err := c.link.Read(ctx, c.station.Interface)
	if err != nil {
		return nil, err
	}
	if !link.Connected {
		return nil, fmt.Errorf("%w: %s is not associated", quality.ErrInvalidInput, c.station.Interface)
	}

	jitter := c.window.Jitter()
	if c.analyzer.metrics != nil {
		c.analyzer.metrics.ObserveProbe(loss, jitter)
	}

	latency := 0
	if values := c.window.Values(); len(values) > 0 {
		latency = int(math.Round(stat.Mean(values, nil)))
	}

	c.analyzer.logger.Debug("Local sample collected",
		"interface", c.station.Interface,
		"signal", link.SignalDBm,
		"latency", latency,
		"jitter", jitter,
		"loss", loss,
		"window", c.window.String(),
	)

	return c.analyzer.Analyze(ctx, Request{
		Measurement: classifier.Measurement{
			RoomID:        c.station.RoomID,
			RoomName:      c.station.RoomName,
			Activity:      c.station.Activity,
			FrequencyBand: link.Band(),
			Sample: quality.Sample{
				SignalDBm:         link.SignalDBm,
				LatencyMs:         latency,
				BandwidthMbps:     link.TxBitrateMbps,
				JitterMs:          jitter,
				PacketLossPercent: loss,
			},
		},
		LinkSpeedMbps: wholeMbps(link.TxBitrateMbps),
		FrequencyMHz:  link.FrequencyMHz,
	})
}
