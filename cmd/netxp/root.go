package main

import (
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
)

// rootCmd is the base command for netxp.
var rootCmd = &cobra.Command{
	Use:   "netxp",
	Short: "Run discrete-event network experiments and report flow goodput",
	Long: `netxp lays out one of a set of experiment scenarios (star, csma, wifi,
dumbbell, twodest), simulates its flows over store-and-forward links, writes
congestion window traces for bulk flows and reports the goodput each flow
and group of flows achieved.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// progressLogger returns the logger progress messages go to
func progressLogger() *log.Logger {
	if !verbose {
		return log.New(io.Discard, "", 0)
	}
	return log.New(os.Stderr, "netxp: ", log.Lmsgprefix)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log progress to stderr")
}
