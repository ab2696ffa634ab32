package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/markus-lassfolk/hifiwifi/pkg/activity"
	"github.com/markus-lassfolk/hifiwifi/pkg/recommend"
)

type recommendOptions struct {
	location     string
	activity     string
	signal       int
	latency      int
	linkSpeed    int
	frequencyMHz int

	signalBucket    string
	latencyBucket   string
	bandwidthBucket string
	band            string
}

type recommendOutput struct {
	Input          recommend.Input          `json:"input"`
	Recommendation recommend.Recommendation `json:"recommendation"`
	Rule           string                   `json:"rule"`
}

func newRecommendCommand(global *globalOptions) *cobra.Command {
	opts := &recommendOptions{}
	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Run the stay/move/switch rules",
		Long: `Run the stay/move/switch rules on raw readings or on buckets.

Raw readings are bucketed first. Any --*-bucket flag overrides the bucket
derived from the matching reading.

  hifiwifictl recommend --signal -55 --latency 25 --link-speed 144 --frequency 2437 --activity streaming
  hifiwifictl recommend --signal-bucket poor --latency-bucket good --bandwidth-bucket fair --band 5GHz`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecommend(cmd, global, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.location, "location", "", "Location label")
	f.StringVar(&opts.activity, "activity", activity.General, "Activity")
	f.IntVar(&opts.signal, "signal", -60, "Signal strength in dBm")
	f.IntVar(&opts.latency, "latency", 30, "Latency in ms")
	f.IntVar(&opts.linkSpeed, "link-speed", 100, "Link speed in Mbps")
	f.IntVar(&opts.frequencyMHz, "frequency", 5180, "Channel frequency in MHz")
	f.StringVar(&opts.signalBucket, "signal-bucket", "", "Signal bucket (excellent|good|fair|poor|very_poor)")
	f.StringVar(&opts.latencyBucket, "latency-bucket", "", "Latency bucket")
	f.StringVar(&opts.bandwidthBucket, "bandwidth-bucket", "", "Bandwidth bucket")
	f.StringVar(&opts.band, "band", "", "Frequency band (2.4GHz | 5GHz)")
	return cmd
}

func runRecommend(cmd *cobra.Command, global *globalOptions, opts *recommendOptions) error {
	in := recommend.Classify(opts.location, opts.activity, opts.signal, opts.latency, opts.linkSpeed, opts.frequencyMHz).Input()

	overrides := []struct {
		flag  string
		value string
		dst   *recommend.Bucket
	}{
		{"signal-bucket", opts.signalBucket, &in.Signal},
		{"latency-bucket", opts.latencyBucket, &in.Latency},
		{"bandwidth-bucket", opts.bandwidthBucket, &in.Bandwidth},
	}
	for _, o := range overrides {
		if o.value == "" {
			continue
		}
		b, ok := recommend.ParseBucket(o.value)
		if !ok {
			return fmt.Errorf("invalid --%s %q", o.flag, o.value)
		}
		*o.dst = b
	}
	if opts.band != "" {
		in.Band = opts.band
	}

	rec, rule := recommend.NewEngine().Explain(in)
	out := recommendOutput{Input: in, Recommendation: rec, Rule: rule}

	return global.render(cmd.OutOrStdout(), out, func(w io.Writer) {
		fmt.Fprintf(w, "Signal:    %s\n", in.Signal)
		fmt.Fprintf(w, "Latency:   %s\n", in.Latency)
		fmt.Fprintf(w, "Bandwidth: %s\n", in.Bandwidth)
		fmt.Fprintf(w, "Band:      %s\n", in.Band)
		printRecommendation(w, rec.Action, rec.ReasonCode, rec.TargetLocation, rule)
	})
}

func printRecommendation(w io.Writer, action recommend.Action, reason, target, rule string) {
	fmt.Fprintf(w, "\nRecommendation: %s (%s, rule %s)\n", action, reason, rule)
	if target != "" {
		fmt.Fprintf(w, "Target:         %s\n", target)
	}
}
