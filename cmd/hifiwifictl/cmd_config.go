package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/markus-lassfolk/hifiwifi/pkg/uci"
)

func newConfigCommand(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the daemon configuration",
	}
	cmd.AddCommand(newConfigValidateCommand(global))
	return cmd
}

func newConfigValidateCommand(global *globalOptions) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the UCI configuration",
		Long: `Validate the UCI configuration and report every error and warning.

With the default path the live UCI store is read when the uci binary is
available, otherwise the file is parsed directly.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := uci.LoadConfig(path)
			if err != nil {
				return &checkFailedError{msg: err.Error()}
			}
			registry, err := global.registry()
			if err != nil {
				return err
			}

			result := uci.NewConfigValidator(global.logger(cmd), registry).ValidateConfiguration(cfg)
			if err := global.render(cmd.OutOrStdout(), result, func(w io.Writer) { printValidation(w, result) }); err != nil {
				return err
			}
			if !result.Valid {
				return &checkFailedError{msg: fmt.Sprintf("configuration has %d error(s)", result.Summary.TotalErrors)}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "config", uci.DefaultPath, "Path to UCI configuration file")
	return cmd
}

func printValidation(w io.Writer, r uci.ValidationResult) {
	status := "valid"
	if !r.Valid {
		status = "invalid"
	}
	fmt.Fprintf(w, "Configuration is %s (%d/%d options valid)\n",
		status, r.Summary.ValidOptions, r.Summary.TotalOptions)
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  ERROR   %s.%s: %s\n", e.Section, e.Option, e.Message)
	}
	for _, warn := range r.Warnings {
		fmt.Fprintf(w, "  WARNING %s.%s: %s\n", warn.Section, warn.Option, warn.Message)
	}
}
