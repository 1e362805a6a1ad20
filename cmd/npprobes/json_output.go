package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

// writeJSON prints v as the --json result of cmd on its stdout. Session paths
// and probe names are emitted verbatim, without HTML escaping.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
