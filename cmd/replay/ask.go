package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/pario-ai/replay/pkg/models"
	"github.com/pario-ai/replay/pkg/prompt"
	"github.com/pario-ai/replay/pkg/serializer"
)

func newAskCmd(opts *globalOptions) *cobra.Command {
	var (
		system    string
		images    []string
		stepName  string
		cacheOnly bool
		history   string
		out       string
		quiet     bool
	)

	cmd := &cobra.Command{
		Use:   "ask [prompt]",
		Short: "Advance a conversation by one step",
		Long: `Ask sends one prompt through the replay cache. The reply is served from the
fixture file when this exact conversation was seen before and recorded from the
backend otherwise.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			logger := newLogger(cmd.ErrOrStderr(), cfg.LogLevel)

			var conv models.Conversation
			if history != "" {
				data, err := os.ReadFile(history)
				if err != nil {
					return errors.Wrap(err, "reading history")
				}
				conv, err = serializer.Deserialize(strings.TrimSpace(string(data)))
				if err != nil {
					return errors.Wrapf(err, "history %s", history)
				}
			}
			if system != "" {
				conv = append(models.Conversation{models.System(system)}, conv...)
			}

			var p prompt.Renderer
			if len(args) == 1 {
				p = prompt.New(args[0], images...)
			} else if len(images) > 0 {
				return errors.New("--image requires a prompt")
			}

			s, err := openSession(cfg, logger, cacheOnly)
			if err != nil {
				return err
			}
			defer s.Close()

			result, err := s.cache.Advance(cmd.Context(), conv, p, stepName)
			if err != nil {
				return err
			}

			if out != "" {
				data, err := serializer.Serialize(result)
				if err != nil {
					return err
				}
				if err := os.WriteFile(out, []byte(data+"\n"), 0o644); err != nil {
					return errors.Wrap(err, "writing conversation")
				}
			}

			reply, _ := result.Last()
			fmt.Fprintln(cmd.OutOrStdout(), reply.Content.PlainText())
			if quiet {
				return nil
			}
			return s.printSummary(cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&system, "system", "", "system message prepended to the conversation")
	cmd.Flags().StringArrayVar(&images, "image", nil, "image URL attached to the prompt (repeatable)")
	cmd.Flags().StringVar(&stepName, "step", "ask", "step name used for usage accounting")
	cmd.Flags().BoolVar(&cacheOnly, "cache-only", false, "never call the backend")
	cmd.Flags().StringVar(&history, "history", "", "file holding a serialized conversation to continue")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the resulting conversation to this file")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "print only the reply")
	return cmd
}
