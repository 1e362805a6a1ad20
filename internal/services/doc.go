// Package services defines shared utilities consumed by the pipeline
// components and their external tool integrations.
//
// Key responsibilities:
//   - Context helpers that stamp session ids, probe names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper. Markers separate a
//     missing required input (skip the probe) from a missing optional input
//     (substitute defaults) and from a session that is not ready yet.
//   - The Executor abstraction that makes external aligner and NWB writer
//     invocations testable.
package services
