package testsupport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"npprobes/internal/arrays"
)

// FakeAligner stands in for the external timestamp aligner. It converts each
// mappable file's sample numbers to seconds at 30 kHz and reports nominal
// sampling rates as one-element lists.
type FakeAligner struct {
	mu    sync.Mutex
	Calls [][]string
	Err   error
}

func (f *FakeAligner) Run(_ context.Context, binary string, args []string, _, stderr io.Writer) error {
	f.mu.Lock()
	f.Calls = append(f.Calls, append([]string{binary}, args...))
	f.mu.Unlock()
	if f.Err != nil {
		fmt.Fprintln(stderr, "aligner exploded")
		return f.Err
	}

	var inputPath, outputPath string
	for i := 0; i+1 < len(args); i++ {
		switch args[i] {
		case "--input_json":
			inputPath = args[i+1]
		case "--output_json":
			outputPath = args[i+1]
		}
	}
	if inputPath == "" || outputPath == "" {
		return errors.New("missing --input_json/--output_json")
	}

	data, err := os.ReadFile(inputPath)
	if err != nil {
		return err
	}
	var req struct {
		Probes []struct {
			Name      string `json:"name"`
			Mappables []struct {
				InputPath  string `json:"input_path"`
				OutputPath string `json:"output_path"`
			} `json:"mappable_timestamp_files"`
		} `json:"probes"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return err
	}

	type probeOutput struct {
		Name        string    `json:"name"`
		Sampling    []float64 `json:"global_probe_sampling_rate"`
		LFPSampling []float64 `json:"global_probe_lfp_sampling_rate"`
	}
	var out struct {
		ProbeOutputs []probeOutput `json:"probe_outputs"`
	}
	for _, p := range req.Probes {
		for _, m := range p.Mappables {
			arr, err := arrays.ReadFloat64(m.InputPath)
			if err != nil {
				return err
			}
			seconds := make([]float64, len(arr.Data))
			for i, v := range arr.Data {
				seconds[i] = v / 30000.0
			}
			if err := arrays.WriteFloat64(m.OutputPath, seconds); err != nil {
				return err
			}
		}
		out.ProbeOutputs = append(out.ProbeOutputs, probeOutput{
			Name:        p.Name,
			Sampling:    []float64{29999.9},
			LFPSampling: []float64{2499.99},
		})
	}
	encoded, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return os.WriteFile(outputPath, encoded, 0o644)
}

// CallCount returns how many times the aligner ran.
func (f *FakeAligner) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}
