package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/markus-lassfolk/hifiwifi/pkg/probe"
	"github.com/markus-lassfolk/hifiwifi/pkg/samplestats"
)

type statsOptions struct {
	window  int
	live    bool
	targets []string
	port    int
	count   int
	timeout time.Duration
}

func newStatsCommand(global *globalOptions) *cobra.Command {
	opts := &statsOptions{}
	cmd := &cobra.Command{
		Use:   "stats [latency-ms ...]",
		Short: "Summarize a probe batch",
		Long: `Summarize a probe batch: packet loss, jitter and mean latency.

Latencies are given in milliseconds; "x" or "timeout" marks a failed probe.
With --live a batch is sent to the targets instead.

  hifiwifictl stats 12.1 11.8 x 13.0 45.2
  hifiwifictl stats --live --target 192.168.1.1 --count 20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd, global, opts, args)
		},
	}

	f := cmd.Flags()
	f.IntVar(&opts.window, "window", 10, "Number of most recent successful latencies kept")
	f.BoolVar(&opts.live, "live", false, "Probe the targets instead of reading arguments")
	f.StringSliceVar(&opts.targets, "target", probe.DefaultConfig().Targets, "Probe target (repeatable)")
	f.IntVar(&opts.port, "port", probe.DefaultConfig().Port, "TCP port to probe")
	f.IntVar(&opts.count, "count", probe.DefaultConfig().BatchSize, "Probes per batch")
	f.DurationVar(&opts.timeout, "timeout", probe.DefaultConfig().Timeout, "Per-probe timeout")
	return cmd
}

func runStats(cmd *cobra.Command, global *globalOptions, opts *statsOptions, args []string) error {
	var probes []samplestats.Probe
	var err error
	if opts.live {
		cfg := probe.DefaultConfig()
		cfg.Targets = opts.targets
		cfg.Port = opts.port
		cfg.Timeout = opts.timeout
		cfg.BatchSize = opts.count
		probes, err = probe.NewProber(cfg, global.logger(cmd)).Batch(cmd.Context())
	} else {
		probes, err = parseProbes(args)
	}
	if err != nil {
		return err
	}

	summary, err := samplestats.Summarize(probes, opts.window)
	if err != nil {
		return err
	}

	return global.render(cmd.OutOrStdout(), summary, func(w io.Writer) {
		fmt.Fprintf(w, "Probes:       %d (%d failed)\n", summary.Total, summary.Failed)
		fmt.Fprintf(w, "Packet loss:  %.1f%%\n", summary.PacketLossPercent)
		fmt.Fprintf(w, "Mean latency: %.2f ms\n", summary.MeanLatencyMs)
		fmt.Fprintf(w, "Jitter:       %.2f ms\n", summary.JitterMs)
	})
}

func parseProbes(args []string) ([]samplestats.Probe, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("no latencies given; pass values or use --live")
	}
	probes := make([]samplestats.Probe, 0, len(args))
	for _, a := range args {
		switch strings.ToLower(a) {
		case "x", "timeout":
			probes = append(probes, samplestats.Probe{Failed: true})
			continue
		}
		v, err := strconv.ParseFloat(a, 64)
		if err != nil || v < 0 {
			return nil, fmt.Errorf("invalid latency %q", a)
		}
		probes = append(probes, samplestats.Probe{LatencyMs: v})
	}
	return probes, nil
}
