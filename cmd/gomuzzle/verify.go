package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var verifyFlags struct {
	directives []string
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Assert every module against the configured library class paths",
	Long: `Collect the references of every instrumentation module and check them
against the class path of each directive. A directive with assert_pass: true
fails when a module does not match; one with assert_pass: false fails when a
module matches.

Examples:
  # Run every directive
  gomuzzle verify -c muzzle.yaml

  # Run selected directives
  gomuzzle verify -c muzzle.yaml --directive h2-pass --directive h2-fail`,
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().StringSliceVar(&verifyFlags.directives, "directive", nil, "directive to run (repeatable, default all)")
}

func runVerify(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	reports, err := s.runner.Verify(cmd.Context(), verifyFlags.directives...)
	for _, report := range reports {
		for _, result := range report.Results {
			status := "PASSED"
			if !result.Passed {
				status = fmt.Sprintf("FAILED (%d mismatches)", len(result.Mismatches))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s (expected pass: %t)\n",
				report.Loader, result.Module, status, report.AssertPass)
		}
	}
	return err
}
