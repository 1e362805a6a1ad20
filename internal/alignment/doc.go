// Package alignment builds barcode timestamp alignment requests and runs the
// external aligner.
//
// A Request lists, per probe, the barcode state and timestamp arrays recorded
// on the probe's digital line plus the sample-number arrays to map onto the
// master clock. Input locations come from the session's layout; legacy
// layouts get offset-corrected copies written next to the aligned outputs.
// The Runner persists the request, invokes the configured command with
// --input_json/--output_json and decodes the per-probe sampling rates it
// reports.
package alignment
