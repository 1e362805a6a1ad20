// Package metadata builds the per-probe channel and unit records.
//
// Channels come from the probe's warped CCF table when one exists (anatomy
// from the annotation volume, positions from the electrode zig-zag) and from
// 384 sentinel records otherwise. Units come from the cluster metrics table
// with every metric normalized to a finite number. Identifiers are drawn from
// a registry allocation only after the inputs have been validated, so a
// rejected probe never consumes ids.
package metadata
