// Package preflight checks that a session and the local environment are ready
// for packaging.
//
// The CLI "npprobes preflight" command prints every result; the package
// command runs the same checks first and refuses to start when a required
// check fails, so a missing aligner or an unwritable output directory is
// reported before any identifiers are drawn.
package preflight
