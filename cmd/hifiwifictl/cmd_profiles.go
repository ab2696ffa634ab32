package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/markus-lassfolk/hifiwifi/pkg/activity"
	"github.com/markus-lassfolk/hifiwifi/pkg/classifier"
	"github.com/markus-lassfolk/hifiwifi/pkg/quality"
)

func newProfilesCommand(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles [activity]",
		Short: "List activity profiles and their metric weights",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := global.registry()
			if err != nil {
				return err
			}

			profiles := registry.Profiles()
			if len(args) == 1 {
				profiles = []activity.Profile{registry.Lookup(args[0])}
			}

			return global.render(cmd.OutOrStdout(), profiles, func(w io.Writer) {
				for i, p := range profiles {
					if i > 0 {
						fmt.Fprintln(w)
					}
					printProfile(w, p)
				}
			})
		},
	}
}

func printProfile(w io.Writer, p activity.Profile) {
	fmt.Fprintf(w, "%s (minimum score %d, most important: %s)\n",
		p.Activity(), classifier.MinimumScore(p.Activity()), p.MostImportant().DisplayName())
	for _, m := range quality.Metrics {
		weight := p.Weight(m)
		fmt.Fprintf(w, "  %-16s %.2f  %s\n", m.DisplayName(), weight, activity.ImportanceLabel(weight))
	}
}
