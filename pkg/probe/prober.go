// Package probe collects the raw inputs of a measurement cycle: round-trip
// probes against a set of targets and the current WiFi link state.
package probe

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/markus-lassfolk/hifiwifi/pkg/logx"
	"github.com/markus-lassfolk/hifiwifi/pkg/samplestats"
)

// Config holds prober configuration
type Config struct {
	Targets   []string      `json:"targets"`
	Port      int           `json:"port"`
	Timeout   time.Duration `json:"timeout"`
	Interval  time.Duration `json:"interval"`
	BatchSize int           `json:"batch_size"`
}

// DefaultConfig returns default prober configuration
func DefaultConfig() *Config {
	return &Config{
		Targets:   []string{"1.1.1.1", "8.8.8.8"},
		Port:      80,
		Timeout:   2 * time.Second,
		Interval:  100 * time.Millisecond,
		BatchSize: samplestats.DefaultLossBatchSize,
	}
}

type dialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Prober times TCP connects. ICMP needs raw sockets, so a completed TCP
// handshake stands in for an echo reply.
type Prober struct {
	config *Config
	logger *logx.Logger
	dial   dialFunc
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewProber creates a prober
func NewProber(config *Config, logger *logx.Logger) *Prober {
	if config == nil {
		config = DefaultConfig()
	}
	if len(config.Targets) == 0 {
		config.Targets = DefaultConfig().Targets
	}
	if config.Port == 0 {
		config.Port = 80
	}
	if config.Timeout == 0 {
		config.Timeout = 2 * time.Second
	}
	if config.BatchSize <= 0 {
		config.BatchSize = samplestats.DefaultLossBatchSize
	}

	d := &net.Dialer{}
	return &Prober{
		config: config,
		logger: logger,
		dial:   d.DialContext,
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// Batch sends BatchSize probes, rotating through the targets
func (p *Prober) Batch(ctx context.Context) ([]samplestats.Probe, error) {
	return p.BatchN(ctx, p.config.BatchSize)
}

// BatchN sends n probes. It stops early, returning what it has, when ctx
// is cancelled.
func (p *Prober) BatchN(ctx context.Context, n int) ([]samplestats.Probe, error) {
	probes := make([]samplestats.Probe, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return probes, err
		}
		target := p.config.Targets[i%len(p.config.Targets)]
		probes = append(probes, p.probeOnce(ctx, target))

		if i < n-1 && p.config.Interval > 0 {
			if err := p.sleep(ctx, p.config.Interval); err != nil {
				return probes, err
			}
		}
	}

	failed := 0
	for _, pr := range probes {
		if pr.Failed {
			failed++
		}
	}
	p.logger.Debug("Probe batch complete", "probes", len(probes), "failed", failed)
	return probes, nil
}

func (p *Prober) probeOnce(ctx context.Context, target string) samplestats.Probe {
	dctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	start := p.now()
	conn, err := p.dial(dctx, "tcp", net.JoinHostPort(target, strconv.Itoa(p.config.Port)))
	if err != nil {
		p.logger.Debug("Probe failed", "target", target, "error", err)
		return samplestats.Probe{Failed: true}
	}
	elapsed := p.now().Sub(start)
	conn.Close()

	return samplestats.Probe{LatencyMs: float64(elapsed.Microseconds()) / 1000}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Window keeps the latencies of the last N successful probes across
// batches. Eviction of the oldest sample happens here, not in samplestats.
type Window struct {
	size   int
	values []float64
}

// NewWindow creates a window; size <= 0 means samplestats.DefaultWindowSize
func NewWindow(size int) *Window {
	if size <= 0 {
		size = samplestats.DefaultWindowSize
	}
	return &Window{size: size, values: make([]float64, 0, size)}
}

// Add appends the successful probes of a batch, evicting the oldest
func (w *Window) Add(probes []samplestats.Probe) {
	for _, pr := range probes {
		if pr.Failed {
			continue
		}
		w.values = append(w.values, pr.LatencyMs)
	}
	if len(w.values) > w.size {
		w.values = append(w.values[:0], w.values[len(w.values)-w.size:]...)
	}
}

// Values returns a copy of the retained latencies, oldest first
func (w *Window) Values() []float64 {
	out := make([]float64, len(w.values))
	copy(out, w.values)
	return out
}

// Len returns the number of retained latencies
func (w *Window) Len() int {
	return len(w.values)
}

// Jitter returns the outlier-filtered jitter of the window
func (w *Window) Jitter() float64 {
	return samplestats.Jitter(w.values)
}

// String is for logs
func (w *Window) String() string {
	return fmt.Sprintf("window(%d/%d)", len(w.values), w.size)
}
