package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pario-ai/replay/pkg/cache/fixture"
	"github.com/pario-ai/replay/pkg/models"
	"github.com/pario-ai/replay/pkg/replay"
)

func newShowCmd(opts *globalOptions) *cobra.Command {
	var keyOnly bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "List fixture entries as transcripts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			entries, err := replay.Entries(fixture.New(cfg.CacheFile))
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(w, "No cached entries found.")
				return nil
			}
			for i, e := range entries {
				if i > 0 {
					fmt.Fprintln(w)
				}
				printEntry(w, i+1, e, keyOnly)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&keyOnly, "key-only", false, "print raw keys only")
	return cmd
}

func printEntry(w io.Writer, n int, e replay.Entry, keyOnly bool) {
	if keyOnly {
		fmt.Fprintln(w, e.Key)
		return
	}
	fmt.Fprintf(w, "#%d\n", n)
	if e.Err != nil {
		fmt.Fprintf(w, "  MALFORMED: %v\n", e.Err)
		return
	}
	for _, m := range e.Result {
		fmt.Fprintf(w, "  %-9s %s\n", string(m.Role)+":", transcriptLine(m.Content))
	}
}

func transcriptLine(c models.Content) string {
	if !c.IsParts() {
		return c.Text
	}
	line := c.PlainText()
	for _, p := range c.Parts {
		if p.Type == models.PartImageURL && p.ImageURL != nil {
			line += fmt.Sprintf(" [image %s]", abbreviateURL(p.ImageURL.URL))
		}
	}
	return line
}

func abbreviateURL(u string) string {
	const limit = 60
	if len(u) <= limit {
		return u
	}
	return u[:limit] + "..."
}
