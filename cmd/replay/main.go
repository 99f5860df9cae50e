package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "replay",
		Short:         "Replay: deterministic fixture cache for chat model calls",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "replay.yaml", "path to config file")
	root.PersistentFlags().StringVar(&opts.cacheFile, "cache-file", "", "fixture file (overrides cache_file)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (overrides log_level)")

	root.AddCommand(
		newAskCmd(opts),
		newShowCmd(opts),
		newStatsCmd(opts),
		newVerifyCmd(opts),
		newCostCmd(opts),
	)
	return root
}
