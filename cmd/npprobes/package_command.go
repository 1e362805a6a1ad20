package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"npprobes/internal/metrics"
	"npprobes/internal/packager"
	"npprobes/internal/publish"
	"npprobes/internal/registry"
	"npprobes/internal/services"
)

func newPackageCommand(ctx *commandContext) *cobra.Command {
	var opts packager.Options

	cmd := &cobra.Command{
		Use:   "package <session>",
		Short: "Align, assign identifiers and write the probe container for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, s, err := ctx.resolveSession(args[0])
			if err != nil {
				return err
			}
			logger := ctx.loggerValue()
			runCtx := services.WithSessionID(cmd.Context(), s.ID)

			reg, err := registry.Open(cfg, logger)
			if err != nil {
				return err
			}
			defer reg.Close()

			var publisher *publish.Publisher
			if !opts.SkipPublish {
				publisher, err = publish.Open(runCtx, cfg, logger)
				if err != nil {
					return err
				}
			}

			pkg := packager.New(cfg, packager.Dependencies{
				Registry:  reg,
				Publisher: publisher,
				Metrics:   metrics.New(),
				Executor:  ctx.executor,
			}, logger)

			opts.Probes = normalizeLetters(opts.Probes)
			result, err := pkg.Package(runCtx, s, opts)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, result)
			}
			renderPackageResult(cmd, result)
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&opts.Probes, "probes", "p", nil, "Probe letters to package (default: all)")
	cmd.Flags().BoolVar(&opts.Realign, "realign", false, "Run the aligner even when an aligner output exists")
	cmd.Flags().StringVarP(&opts.OutputDir, "output", "o", "", "Directory for the manifest and container (default: session output directory)")
	cmd.Flags().BoolVar(&opts.SkipPublish, "no-publish", false, "Leave artifacts local even when publishing is configured")
	return cmd
}

func renderPackageResult(cmd *cobra.Command, result *packager.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Session %s packaged in %s\n", result.SessionID, result.Elapsed.Round(time.Millisecond))

	rows := make([][]string, 0, len(result.Probes))
	for _, probe := range result.Probes {
		rows = append(rows, []string{
			probe.Name,
			strconv.FormatInt(probe.ID, 10),
			strconv.Itoa(probe.Channels),
			strconv.Itoa(probe.Units),
			yesNo(probe.CCF),
			yesNo(probe.LFP),
		})
	}
	fmt.Fprintln(out, renderTable(out,
		[]string{"Probe", "ID", "Channels", "Units", "CCF", "LFP"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignLeft, alignLeft},
	))

	fmt.Fprintf(out, "Manifest:  %s\n", result.ManifestPath)
	fmt.Fprintf(out, "Container: %s\n", result.ContainerPath)
	if result.NWBPath != "" {
		fmt.Fprintf(out, "NWB:       %s\n", result.NWBPath)
	}
	for _, info := range result.Published {
		fmt.Fprintf(out, "Published: %s (%s)\n", info.Key, humanize.IBytes(uint64(info.Size)))
	}
	for _, skipped := range result.Skipped {
		fmt.Fprintf(out, "Skipped %s: %s\n", skipped.Name, skipped.Reason)
	}
}
