package main

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"npprobes/internal/alignment"
	"npprobes/internal/layout"
	"npprobes/internal/lfp"
	"npprobes/internal/logging"
	"npprobes/internal/services"
)

func newAlignCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool
	var probes []string

	cmd := &cobra.Command{
		Use:   "align <session>",
		Short: "Build the aligner request and run the timestamp aligner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, s, selected, err := ctx.sessionProbes(args[0], probes)
			if err != nil {
				return err
			}
			if len(selected) == 0 {
				return services.Wrap(services.ErrRequiredFile, "cli", "align", "No probes selected for alignment", nil)
			}
			logger := ctx.loggerValue()
			runCtx := services.WithSessionID(cmd.Context(), s.ID)

			resolver, err := layout.NewResolver(cfg.Alignment)
			if err != nil {
				return err
			}
			req, skipped, err := alignment.NewBuilder(cfg, resolver, logger).Build(runCtx, s, selected)
			if err != nil {
				return err
			}
			for name, reason := range skipped {
				logging.WarnWithContext(logger, "probe left out of aligner request", "alignment_probe_skipped",
					logging.String(logging.FieldProbe, name),
					logging.Error(reason),
					logging.String(logging.FieldImpact, "probe will not be aligned"),
				)
			}
			if dryRun {
				return writeJSON(cmd, req)
			}

			runner := &alignment.Runner{
				Command:  cfg.Alignment.Command,
				Timeout:  time.Duration(cfg.Alignment.TimeoutSeconds) * time.Second,
				Executor: ctx.executor,
				Logger:   logger,
			}
			out, err := runner.Run(runCtx, req, cfg.OutputDir(s.Root))
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, out)
			}

			w := cmd.OutOrStdout()
			rows := make([][]string, 0, len(out.ProbeOutputs))
			for _, po := range out.ProbeOutputs {
				rows = append(rows, []string{
					po.Name,
					fmt.Sprintf("%.4f", float64(po.GlobalProbeSamplingRate)),
					fmt.Sprintf("%.4f", float64(po.GlobalProbeLFPSamplingRate)),
				})
			}
			fmt.Fprintln(w, renderTable(w, []string{"Probe", "AP Rate", "LFP Rate"}, rows, []columnAlignment{alignLeft, alignRight, alignRight}))
			printSkipped(cmd, skipped)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the aligner request without running the aligner")
	cmd.Flags().StringSliceVarP(&probes, "probes", "p", nil, "Probe letters to align (default: all)")
	return cmd
}

func newLFPRequestCommand(ctx *commandContext) *cobra.Command {
	var probes []string

	cmd := &cobra.Command{
		Use:   "lfp-request <session>",
		Short: "Write the LFP subsampling request for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, s, selected, err := ctx.sessionProbes(args[0], probes)
			if err != nil {
				return err
			}
			runCtx := services.WithSessionID(cmd.Context(), s.ID)
			req, skipped, err := lfp.NewBuilder(cfg, ctx.loggerValue()).Build(runCtx, s, selected)
			if err != nil {
				if errors.Is(err, services.ErrNotReady) {
					return fmt.Errorf("session %s is not ready for LFP subsampling: %w", s.ID, err)
				}
				return err
			}
			path, err := lfp.Write(req, cfg.OutputDir(s.Root))
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, map[string]any{"path": path, "request": req})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote LFP request for %d probe(s) to %s\n", len(req.Probes), path)
			printSkipped(cmd, skipped)
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&probes, "probes", "p", nil, "Probe letters to include (default: all)")
	return cmd
}

func printSkipped(cmd *cobra.Command, skipped map[string]error) {
	if len(skipped) == 0 {
		return
	}
	names := make([]string, 0, len(skipped))
	for name := range skipped {
		names = append(names, name)
	}
	sort.Strings(names)
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Skipped:")
	for _, name := range names {
		fmt.Fprintf(out, "  %s: %v\n", name, skipped[name])
	}
}
