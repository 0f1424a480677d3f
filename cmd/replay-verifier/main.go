// replay-verifier records HTTP sessions against a baseline service and
// replays them against a new version or a contract-derived template engine,
// reporting field-level compatibility.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "replay-verifier",
	Short:         "Session replay verification for HTTP services",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func main() {
	rootCmd.AddCommand(replayCmd, recordCmd, tagCmd, sessionCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
