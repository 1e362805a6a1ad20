package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"npprobes/internal/preflight"
	"npprobes/internal/services"
)

func newPreflightCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "preflight <session>",
		Short: "Check that a session and the environment are ready for packaging",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, s, err := ctx.resolveSession(args[0])
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg, s)
			failed := preflight.Failed(results)

			if ctx.jsonOutput() {
				if err := writeJSON(cmd, results); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				fmt.Fprintf(out, "Preflight for %s\n", s.ID)
				for _, r := range results {
					kind := statusOK
					switch {
					case !r.Passed && r.Optional:
						kind = statusWarn
					case !r.Passed:
						kind = statusError
					}
					fmt.Fprintln(out, renderStatusLine(r.Name, kind, r.Detail, colorize))
				}
			}

			if len(failed) > 0 {
				return services.Wrap(services.ErrNotReady, "cli", "preflight",
					fmt.Sprintf("%d required check(s) failed", len(failed)), nil)
			}
			return nil
		},
	}
}
