// Package deps reports whether the external tools npprobes shells out to are
// installed.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"npprobes/internal/config"
)

// Requirement defines an external program invoked by the pipeline.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a requirement.
type Status struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Path        string `json:"path,omitempty"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// Requirements lists the programs the configuration will invoke: the
// timestamp aligner and, when configured, the NWB writer.
func Requirements(cfg *config.Config) []Requirement {
	reqs := []Requirement{{
		Name:        "Aligner",
		Command:     firstArg(cfg.Alignment.Command),
		Description: describe("Required for barcode timestamp alignment", cfg.Alignment.Command),
	}}
	if len(cfg.Packaging.NWBCommand) > 0 {
		reqs = append(reqs, Requirement{
			Name:        "NWB writer",
			Command:     firstArg(cfg.Packaging.NWBCommand),
			Description: describe("Writes the NWB file from the probe manifest", cfg.Packaging.NWBCommand),
			Optional:    true,
		})
	}
	return reqs
}

// CheckBinaries resolves each requirement on PATH.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		status := Status{
			Name:        req.Name,
			Command:     strings.TrimSpace(req.Command),
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		switch path, err := exec.LookPath(status.Command); {
		case status.Command == "":
			status.Detail = "command not configured"
		case err != nil:
			status.Detail = fmt.Sprintf("binary %q not found", status.Command)
		default:
			status.Available = true
			status.Path = path
		}
		results = append(results, status)
	}
	return results
}

// Missing returns the unavailable required binaries.
func Missing(statuses []Status) []Status {
	var missing []Status
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			missing = append(missing, s)
		}
	}
	return missing
}

func firstArg(argv []string) string {
	if len(argv) == 0 {
		return ""
	}
	return argv[0]
}

// describe appends the python module name for "python -m module" commands.
func describe(base string, argv []string) string {
	if len(argv) >= 3 && argv[1] == "-m" {
		return fmt.Sprintf("%s (module %s)", base, argv[2])
	}
	return base
}
