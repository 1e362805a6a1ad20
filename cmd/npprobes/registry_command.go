package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"npprobes/internal/registry"
)

func newRegistryCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Inspect the identifier registry",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the last issued identifier per kind",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			reg, err := registry.Open(cfg, ctx.loggerValue())
			if err != nil {
				return err
			}
			defer reg.Close()

			state, err := reg.Describe(cmd.Context())
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, state)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Mode:     %s\n", state.Mode)
			if state.Location != "" {
				fmt.Fprintf(out, "Location: %s\n", state.Location)
			}
			rows := make([][]string, 0, len(registry.Kinds))
			for _, kind := range registry.Kinds {
				last, ok := state.Last[kind]
				value := "-"
				if ok && last >= 0 {
					value = strconv.FormatInt(last, 10)
				}
				rows = append(rows, []string{string(kind), value})
			}
			fmt.Fprintln(out, renderTable(out, []string{"Kind", "Last ID"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	})
	return cmd
}
