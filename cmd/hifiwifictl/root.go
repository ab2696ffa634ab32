package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/markus-lassfolk/hifiwifi/pkg/activity"
	"github.com/markus-lassfolk/hifiwifi/pkg/logx"
)

var version = "1.0.0"

// globalOptions are the persistent flags shared by every subcommand
type globalOptions struct {
	profiles string
	format   string
	logLevel string
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:   "hifiwifictl",
		Short: "hifiwifictl - classify and explain WiFi measurements",
		Long: `hifiwifictl grades WiFi measurements for an activity and explains what
to do about them.

It runs the same classifier and recommendation rules as hifiwifid, without
the daemon or any of its storage and publishing sinks.`,
		Version:      version,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.profiles, "profiles", "", "YAML file with extra activity profiles")
	cmd.PersistentFlags().StringVar(&opts.format, "format", "text", "Output format: text | json")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "error", "Log level (debug|info|warn|error)")
	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if opts.format != "text" && opts.format != "json" {
			return fmt.Errorf("unknown format %q: must be text or json", opts.format)
		}
		return nil
	}

	cmd.AddCommand(newClassifyCommand(opts))
	cmd.AddCommand(newRecommendCommand(opts))
	cmd.AddCommand(newStatsCommand(opts))
	cmd.AddCommand(newProfilesCommand(opts))
	cmd.AddCommand(newConfigCommand(opts))

	return cmd
}

func execute() error {
	return newRootCommand().Execute()
}

func (o *globalOptions) logger(cmd *cobra.Command) *logx.Logger {
	return logx.NewLoggerWithOutput(o.logLevel, "hifiwifictl", cmd.ErrOrStderr())
}

// registry returns the built-in profiles plus any loaded from --profiles
func (o *globalOptions) registry() (*activity.Registry, error) {
	if o.profiles == "" {
		return activity.DefaultRegistry(), nil
	}
	profiles, err := activity.LoadProfiles(o.profiles)
	if err != nil {
		return nil, fmt.Errorf("loading profiles: %w", err)
	}
	return activity.NewRegistry(profiles...), nil
}

// render writes v as indented JSON or through the text printer
func (o *globalOptions) render(w io.Writer, v interface{}, text func(io.Writer)) error {
	if o.format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}
