package main

import (
	"github.com/spf13/cobra"

	"actuarial_valuation/pkg/core/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	EnvFile    string
	Verbose    bool
}

func (o *RootOptions) settings() (*config.Settings, error) {
	return config.Load(o.ConfigPath, o.EnvFile)
}

// NewRootCommand creates the root command for the projector CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "projector",
		Short: "Actuarial projection and valuation engine",
		Long: `Projects monthly cashflows and decrements for a portfolio of life
insurance model points and values them (BEL, risk adjustment, reinsurance)
against an assumption bundle.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "projector.yaml", "run settings file")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file applied before the settings")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}
