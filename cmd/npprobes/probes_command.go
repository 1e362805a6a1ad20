package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

type probeRow struct {
	Name        string `json:"name"`
	MetricsPath string `json:"metrics_path"`
	TestExport  bool   `json:"test_export"`
}

func newProbesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "probes <session>",
		Short: "List the probes discovered for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, s, probes, err := ctx.sessionProbes(args[0], nil)
			if err != nil {
				return err
			}

			rows := make([]probeRow, 0, len(probes))
			for _, probe := range probes {
				rows = append(rows, probeRow{
					Name:        probe.Name(),
					MetricsPath: probe.MetricsPath,
					TestExport:  probe.IsTestMetrics(),
				})
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, rows)
			}

			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintf(out, "No probes found under %s\n", s.Root)
				return nil
			}
			tableRows := make([][]string, 0, len(rows))
			for _, row := range rows {
				tableRows = append(tableRows, []string{row.Name, yesNo(row.TestExport), row.MetricsPath})
			}
			fmt.Fprintln(out, renderTable(out, []string{"Probe", "Test Export", "Metrics"}, tableRows, nil))
			return nil
		},
	}
}
