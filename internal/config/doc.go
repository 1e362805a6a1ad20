// Package config loads, normalizes, and validates npprobes configuration data.
//
// It supplies repository defaults (the lab's storage roots, the 30 kHz / 2.5
// kHz sampling rates, the LFP subsampling factor), expands user paths
// including tilde shortcuts, reads TOML files, and honours environment
// fallbacks such as NPPROBES_REGISTRY_DSN. Per-session alignment layout rules
// live here as plain records; the layout package turns them into a resolver.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths and clear validation errors.
package config
