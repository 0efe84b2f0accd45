// quorum is the CLI for the search and consensus engine.
//
// Usage:
//
//	quorum search "what is 17 * 23?" [--controller beam] [--config engine.yaml]
//	quorum decide "what is 17 * 23?" [--confidence 0.8]
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "quorum",
	Short: "Verification-guided search and consensus over LLM generations",
	Long: "quorum samples multiple candidate answers, verifies them, and\n" +
		"aggregates a consensus, with calibrated answer-or-abstain routing.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(decideCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
