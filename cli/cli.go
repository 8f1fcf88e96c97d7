// Package cli implements the merklecache command line surface: a thin
// cobra root command plus one subcommand per domain operation
// (build-reference, paint, verify, stat, simulate).
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const Version = "0.1.0"

var version bool

var rootCmd = &cobra.Command{
	Use:   "merklecache",
	Short: "merklecache is a content-addressed, chunk-granular download cache",
	Long:  `merklecache verifies and caches remote artifacts chunk by chunk against a Merkle reference tree, with range-coalesced fetching and an event-driven scheduler simulator.`,
	Run: func(cmd *cobra.Command, args []string) {
		if version {
			fmt.Printf("merklecache version %s\n", Version)
			os.Exit(0)
		}
		cmd.Help()
	},
}

// Execute runs the root command, exiting the process with status 1 on
// any command error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolVar(&version, "version", false, "print the merklecache version")

	rootCmd.AddCommand(buildReferenceCmd)
	rootCmd.AddCommand(paintCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(statCmd)
	rootCmd.AddCommand(simulateCmd)
}
