package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pario-ai/replay/pkg/cache/fixture"
	"github.com/pario-ai/replay/pkg/replay"
)

func newStatsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show fixture file statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			store := fixture.New(cfg.CacheFile)
			entries, err := replay.Entries(store)
			if err != nil {
				return err
			}

			var messages, malformed int
			for _, e := range entries {
				if e.Err != nil {
					malformed++
					continue
				}
				messages += len(e.Result)
			}
			var size int64
			if fi, err := os.Stat(store.Path()); err == nil {
				size = fi.Size()
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "FILE\t%s\n", store.Path())
			fmt.Fprintf(w, "SIZE\t%d bytes\n", size)
			fmt.Fprintf(w, "ENTRIES\t%d\n", len(entries))
			fmt.Fprintf(w, "MESSAGES\t%d\n", messages)
			fmt.Fprintf(w, "MALFORMED\t%d\n", malformed)
			return w.Flush()
		},
	}
}
