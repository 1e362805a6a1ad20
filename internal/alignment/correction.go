package alignment

import (
	"fmt"
	"path/filepath"

	"npprobes/internal/arrays"
	"npprobes/internal/services"
)

type correctedInputs struct {
	barcodeTimestamps string
	lfpTimestamps     string
}

// correctOffsets rebases legacy sample numbers on the first AP sample S0.
// Barcode sample numbers become x-S0; LFP sample numbers become (x-S0)/divisor.
func correctOffsets(firstSamplePath, barcodePath, lfpPath string, divisor int, outputDir, letter string, dryRun bool) (correctedInputs, error) {
	out := correctedInputs{
		barcodeTimestamps: filepath.Join(outputDir, fmt.Sprintf("barcode_timestamps_%s_corrected.npy", letter)),
		lfpTimestamps:     filepath.Join(outputDir, fmt.Sprintf("lfp_timestamps_%s_corrected.npy", letter)),
	}
	if dryRun {
		return out, nil
	}
	if divisor <= 0 {
		divisor = 1
	}

	first, err := arrays.ReadInt64(firstSamplePath)
	if err != nil {
		return out, services.Wrap(services.ErrRequiredFile, "alignment", "offset correction", "Unreadable first-sample array", err)
	}
	if len(first) == 0 {
		return out, services.Wrap(services.ErrValidation, "alignment", "offset correction",
			fmt.Sprintf("%s is empty", filepath.Base(firstSamplePath)), nil)
	}
	s0 := first[0]

	barcodes, err := arrays.ReadInt64(barcodePath)
	if err != nil {
		return out, services.Wrap(services.ErrRequiredFile, "alignment", "offset correction", "Unreadable barcode timestamps", err)
	}
	shifted := make([]int64, len(barcodes))
	for i, v := range barcodes {
		shifted[i] = v - s0
	}
	if err := arrays.WriteInt64(out.barcodeTimestamps, shifted); err != nil {
		return out, fmt.Errorf("write corrected barcode timestamps: %w", err)
	}

	lfp, err := arrays.ReadInt64(lfpPath)
	if err != nil {
		return out, services.Wrap(services.ErrRequiredFile, "alignment", "offset correction", "Unreadable LFP timestamps", err)
	}
	rescaled := make([]float64, len(lfp))
	for i, v := range lfp {
		rescaled[i] = float64(v-s0) / float64(divisor)
	}
	if err := arrays.WriteFloat64(out.lfpTimestamps, rescaled); err != nil {
		return out, fmt.Errorf("write corrected lfp timestamps: %w", err)
	}
	return out, nil
}
