package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"actuarial_valuation/pkg/core/config"
	"actuarial_valuation/pkg/core/ingest"
	"actuarial_valuation/pkg/core/validate"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	ValuationDate string
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate [model-point-file...]",
		Short: "Check model point files before a run",
		Long: `Checks model point files for missing fields, duplicate policy ids,
out-of-range values and inconsistent dates. Without arguments the files of
the settings are checked; with arguments and --valuation-date no settings
file is needed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.ValuationDate, "valuation-date", "", "valuation date (YYYY-MM-DD), overrides the settings")
	return cmd
}

func runValidate(opts *ValidateOptions, args []string, out io.Writer) error {
	files := make(map[string]string, len(args))
	for _, a := range args {
		files[a] = a
	}

	var valDate time.Time
	if opts.ValuationDate != "" && len(args) > 0 {
		d, err := time.Parse(config.DateLayout, opts.ValuationDate)
		if err != nil {
			return fmt.Errorf("valuation date: %w", err)
		}
		valDate = d
	} else {
		s, err := opts.settings()
		if err != nil {
			return err
		}
		if valDate, err = s.Date(); err != nil {
			return err
		}
		if len(args) == 0 {
			files = s.ModelPoints
		}
	}

	failed := 0
	for _, name := range sortedKeys(files) {
		policies, err := ingest.LoadModelPoints(files[name])
		if err != nil {
			fmt.Fprintf(out, "%s: %v\n", name, err)
			failed++
			continue
		}
		rep := validate.ModelPoints(policies, valDate)
		fmt.Fprintf(out, "%s: %d policies, %d issues\n", name, rep.Checked, len(rep.Issues))
		for _, issue := range rep.Issues {
			fmt.Fprintf(out, "  %s\n", issue)
		}
		if !rep.OK() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d model point file(s) failed validation", failed)
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
