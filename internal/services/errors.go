package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks a request rejected before any state was created.
	ErrValidation = errors.New("validation error")
	// ErrConflict marks a request refused because the target is busy or terminal.
	ErrConflict = errors.New("conflict")
	// ErrNotFound marks lookups against unknown identifiers.
	ErrNotFound = errors.New("not found")
	// ErrStage marks a stage function failure recorded against the session.
	ErrStage = errors.New("stage failure")
	// ErrTimeout marks a per-stage deadline overrun.
	ErrTimeout = errors.New("timeout")
	// ErrExternalTool marks failures of subprocesses a stage shells out to.
	ErrExternalTool = errors.New("external tool error")
	// ErrConfiguration marks unusable configuration discovered at runtime.
	ErrConfiguration = errors.New("configuration error")
	// ErrTransient marks retryable noise inside stage bodies.
	ErrTransient = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify returns a short token naming the sentinel an error carries, used
// for log hints and API error codes.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrStage):
		return "stage"
	case errors.Is(err, ErrExternalTool):
		return "external_tool"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrTransient):
		return "transient"
	default:
		return "unknown"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
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
