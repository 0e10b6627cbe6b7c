package main

import (
	"github.com/spf13/cobra"
)

var printReferencesFlags struct {
	modules []string
}

var printReferencesCmd = &cobra.Command{
	Use:   "print-references",
	Short: "Print the references collected from instrumentation modules",
	Long: `Print the library classes, fields and methods each module references,
together with the helper classes it injects in injection order.

Examples:
  gomuzzle print-references -c muzzle.yaml
  gomuzzle print-references -c muzzle.yaml --module jdbc`,
	RunE: runPrintReferences,
}

func init() {
	rootCmd.AddCommand(printReferencesCmd)

	printReferencesCmd.Flags().StringSliceVar(&printReferencesFlags.modules, "module", nil, "module to print (repeatable, default all)")
}

func runPrintReferences(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	return s.runner.PrintReferences(cmd.OutOrStdout(), printReferencesFlags.modules...)
}
