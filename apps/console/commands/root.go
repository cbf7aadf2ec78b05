package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:                   "remedy [command]",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Short:                 "Remedy builds remediation packages from accessibility scan findings.",
	Long: `Remedy classifies accessibility scan findings, groups them by fix route
and produces a remediation package of widget activations, code patches and
manual guides. The wizard command walks a package through the guided
remediation workflow.`,
}

// Execute runs the console command tree.
func Execute() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newBuildCmd())
	rootCmd.AddCommand(newWizardCmd())
}
