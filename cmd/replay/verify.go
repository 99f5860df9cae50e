package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/pario-ai/replay/pkg/cache/fixture"
	"github.com/pario-ai/replay/pkg/replay"
)

func newVerifyCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check every fixture entry can be replayed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			issues, err := replay.Verify(fixture.New(cfg.CacheFile))
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(issues) == 0 {
				fmt.Fprintln(w, "All entries OK.")
				return nil
			}
			for _, is := range issues {
				fmt.Fprintf(w, "%s\n  %s\n", is.Key, is.Reason)
			}
			return errors.Errorf("%d malformed entries", len(issues))
		},
	}
}
