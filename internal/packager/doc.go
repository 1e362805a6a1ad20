// Package packager turns a sorted, synchronized session into its probes
// manifest and session container.
//
// Package runs the whole chain for one session: probe discovery, timestamp
// alignment (or reuse of an earlier aligner output), CCF channel anatomy,
// unit metrics and the per-unit spike series. Every probe is read and
// validated before any identifier is drawn, so a probe skipped for a missing
// or malformed input never consumes registry ids. Identifiers are committed
// once, after which the manifest (probes_input.json), the sqlite container
// (<session>.probes.sqlite) and, when configured, the external NWB writer's
// output are produced and optionally published.
package packager
