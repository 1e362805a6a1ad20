package alignment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"npprobes/internal/fileutil"
	"npprobes/internal/logging"
	"npprobes/internal/services"
)

// File names written to the output directory.
const (
	InputFile  = "align_timestamps_input.json"
	OutputFile = "align_timestamps_output.json"
)

// Rate decodes a sampling rate reported either as a number or as a
// one-element list.
type Rate float64

func (r *Rate) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var list []float64
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		if len(list) == 0 {
			return fmt.Errorf("empty sampling rate list")
		}
		*r = Rate(list[0])
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*r = Rate(v)
	return nil
}

// ProbeOutput is the aligner's per-probe result.
type ProbeOutput struct {
	Name                       string            `json:"name"`
	GlobalProbeSamplingRate    Rate              `json:"global_probe_sampling_rate"`
	GlobalProbeLFPSamplingRate Rate              `json:"global_probe_lfp_sampling_rate"`
	TotalTimeShift             float64           `json:"total_time_shift,omitempty"`
	OutputPaths                map[string]string `json:"output_paths,omitempty"`
}

// Output is the aligner's output document.
type Output struct {
	ProbeOutputs []ProbeOutput `json:"probe_outputs"`
}

// Probe finds a probe's result by name.
func (o *Output) Probe(name string) (ProbeOutput, bool) {
	if o == nil {
		return ProbeOutput{}, false
	}
	for _, p := range o.ProbeOutputs {
		if p.Name == name {
			return p, true
		}
	}
	return ProbeOutput{}, false
}

// ReadOutput decodes an aligner output file.
func ReadOutput(path string) (*Output, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out Output
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "alignment", "decode output", filepath.Base(path), err)
	}
	return &out, nil
}

// Runner executes the external aligner.
type Runner struct {
	Command  []string
	Timeout  time.Duration
	Executor services.Executor
	Logger   *slog.Logger
}

// Run writes the request into outputDir, runs the aligner and decodes its
// output.
func (r *Runner) Run(ctx context.Context, req *Request, outputDir string) (*Output, error) {
	logger := logging.WithContext(ctx, logging.NewComponentLogger(r.Logger, "alignment"))

	inputPath := filepath.Join(outputDir, InputFile)
	outputPath := filepath.Join(outputDir, OutputFile)
	if err := fileutil.WriteJSONAtomic(inputPath, req); err != nil {
		return nil, err
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	started := time.Now()
	logger.Info("running timestamp aligner",
		logging.String("input_json", inputPath),
		logging.Int("probes", len(req.Probes)),
	)
	if err := services.RunTool(ctx, r.Executor, "alignment", r.Command, "--input_json", inputPath, "--output_json", outputPath); err != nil {
		return nil, err
	}

	out, err := ReadOutput(outputPath)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "alignment", "read output", "Aligner produced no readable output", err)
	}
	logger.Info("timestamp alignment complete",
		logging.Duration("elapsed", time.Since(started)),
		logging.Int("probe_outputs", len(out.ProbeOutputs)),
	)
	return out, nil
}
