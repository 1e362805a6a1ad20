package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRequiredFile marks a missing input without which the current probe
	// (or session, for session-wide inputs) cannot be processed.
	ErrRequiredFile = errors.New("required file not found")
	// ErrOptionalFile marks a missing input that is replaced by defaults.
	ErrOptionalFile = errors.New("optional file not found")
	// ErrNotReady marks a session whose acquisition outputs are incomplete
	// (no sync file yet). Callers treat it as "try again later".
	ErrNotReady      = errors.New("session not ready")
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
)

// Outcome classifies an error for the packaging loop.
type Outcome string

const (
	OutcomeOK        Outcome = "ok"
	OutcomeDefaulted Outcome = "defaulted"
	OutcomeSkipProbe Outcome = "skip_probe"
	OutcomeNotReady  Outcome = "not_ready"
	OutcomeFatal     Outcome = "fatal"
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrExternalTool
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// MissingFile reports that nothing matched pattern.
func MissingFile(marker error, component, pattern string) error {
	return Wrap(marker, component, "locate", fmt.Sprintf("no match for %s", pattern), nil)
}

// Classify maps an error to the action the packaging loop takes.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrOptionalFile):
		return OutcomeDefaulted
	case errors.Is(err, ErrNotReady):
		return OutcomeNotReady
	case errors.Is(err, ErrRequiredFile), errors.Is(err, ErrValidation):
		return OutcomeSkipProbe
	default:
		return OutcomeFatal
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
