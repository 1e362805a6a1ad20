// Package main hosts the npprobes CLI entrypoint and command graph.
//
// The Cobra-based command tree resolves a session by id or path and drives
// the internal packages: probe discovery, timestamp alignment, LFP request
// generation, packaging, registry inspection and preflight checks. It
// centralizes configuration loading and logger construction so subcommands
// only translate flags into calls and render results as tables or JSON.
//
// Keep this package lean: new behavior belongs in internal/ first and is
// surfaced here through a dedicated command or flag.
package main
