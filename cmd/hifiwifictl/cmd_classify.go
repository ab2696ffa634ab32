package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/markus-lassfolk/hifiwifi/pkg"
	"github.com/markus-lassfolk/hifiwifi/pkg/activity"
	"github.com/markus-lassfolk/hifiwifi/pkg/analyzer"
	"github.com/markus-lassfolk/hifiwifi/pkg/classifier"
	"github.com/markus-lassfolk/hifiwifi/pkg/quality"
)

type classifyOptions struct {
	room         string
	activity     string
	signal       int
	latency      int
	bandwidth    float64
	jitter       float64
	packetLoss   float64
	linkSpeed    int
	frequencyMHz int
	band         string
	strict       bool
}

func newClassifyCommand(global *globalOptions) *cobra.Command {
	opts := &classifyOptions{}
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify one measurement for an activity",
		Long: `Classify one measurement for an activity.

Each metric is graded on its own threshold ladder, the levels are combined
with the activity's weights, and the stay/move/switch rules are applied to
the same readings.

  hifiwifictl classify --room office --activity gaming \
    --signal -45 --latency 18 --bandwidth 320 --jitter 3 --packet-loss 0`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClassify(cmd, global, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.room, "room", "", "Room name (required)")
	f.StringVar(&opts.activity, "activity", activity.General, "Activity the room is used for")
	f.IntVar(&opts.signal, "signal", -60, "Signal strength in dBm")
	f.IntVar(&opts.latency, "latency", 30, "Latency in ms")
	f.Float64Var(&opts.bandwidth, "bandwidth", 50, "Bandwidth in Mbps")
	f.Float64Var(&opts.jitter, "jitter", 5, "Jitter in ms")
	f.Float64Var(&opts.packetLoss, "packet-loss", 0, "Packet loss in percent")
	f.IntVar(&opts.linkSpeed, "link-speed", 0, "Link speed in Mbps for the recommendation rules (default: bandwidth)")
	f.IntVar(&opts.frequencyMHz, "frequency", 0, "Channel frequency in MHz")
	f.StringVar(&opts.band, "band", "", "Frequency band when --frequency is not known (2.4GHz | 5GHz)")
	f.BoolVar(&opts.strict, "strict", false, "Exit with status 1 when the result is not acceptable for the activity")
	_ = cmd.MarkFlagRequired("room")
	return cmd
}

func runClassify(cmd *cobra.Command, global *globalOptions, opts *classifyOptions) error {
	registry, err := global.registry()
	if err != nil {
		return err
	}

	a := analyzer.New(classifier.New(registry, quality.DefaultThresholds()), nil, global.logger(cmd))
	report, err := a.Analyze(cmd.Context(), analyzer.Request{
		Measurement: classifier.Measurement{
			RoomName:      opts.room,
			Activity:      opts.activity,
			FrequencyBand: opts.band,
			Sample: quality.Sample{
				SignalDBm:         opts.signal,
				LatencyMs:         opts.latency,
				BandwidthMbps:     opts.bandwidth,
				JitterMs:          opts.jitter,
				PacketLossPercent: opts.packetLoss,
			},
		},
		LinkSpeedMbps: opts.linkSpeed,
		FrequencyMHz:  opts.frequencyMHz,
	})
	if err != nil {
		return err
	}

	if err := global.render(cmd.OutOrStdout(), report, func(w io.Writer) { printReport(w, report) }); err != nil {
		return err
	}
	if opts.strict && !report.Classification.IsAcceptable {
		return &checkFailedError{msg: fmt.Sprintf("%s is not acceptable for %s", report.Classification.Room, report.Classification.Activity)}
	}
	return nil
}

func printReport(w io.Writer, r *pkg.RoomReport) {
	c := r.Classification
	fmt.Fprintf(w, "Room:      %s\n", c.Room)
	fmt.Fprintf(w, "Activity:  %s\n", c.Activity)
	fmt.Fprintf(w, "Overall:   %s (score %.2f)\n", c.OverallClassification, c.WeightedScore)
	fmt.Fprintf(w, "Acceptable: %t\n\n", c.IsAcceptable)

	fmt.Fprintln(w, "Metrics:")
	for _, m := range quality.Metrics {
		marker := ""
		if m == c.MostCriticalMetric && c.CriticalBelowBest {
			marker = "  <- most critical"
		}
		fmt.Fprintf(w, "  %-16s %s%s\n", m.DisplayName(), c.PerMetric.Level(m), marker)
	}

	fmt.Fprintf(w, "\n%s\n", c.Reasoning)
	if len(c.Recommendations) > 0 {
		fmt.Fprintln(w, "\nAdvice:")
		for _, rec := range c.Recommendations {
			fmt.Fprintf(w, "  - %s\n", rec)
		}
	}
	printRecommendation(w, r.Recommendation.Action, r.Recommendation.ReasonCode, r.Recommendation.TargetLocation, r.Rule)
}
