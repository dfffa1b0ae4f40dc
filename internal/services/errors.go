package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrClone         = errors.New("clone failure")
	ErrTransform     = errors.New("transform failure")
	ErrTimeout       = errors.New("timeout")
	ErrCleanup       = errors.New("cleanup failure")
	ErrQueueState    = errors.New("queue state error")
	ErrConfiguration = errors.New("configuration error")
	ErrExternalTool  = errors.New("external tool error")
)

// Category identifiers persisted on finished items for machine consumption.
const (
	CategoryClone         = "clone_failure"
	CategoryTransform     = "transform_failure"
	CategoryTimeout       = "timeout"
	CategoryCleanup       = "cleanup_failure"
	CategoryQueueState    = "queue_state"
	CategoryConfiguration = "configuration"
	CategoryUnknown       = "unknown"
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later category classification. The marker should
// be one of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrExternalTool
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Category maps an error to the machine-readable category stored on the item
// result that produced it.
func Category(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout):
		return CategoryTimeout
	case errors.Is(err, ErrClone):
		return CategoryClone
	case errors.Is(err, ErrTransform):
		return CategoryTransform
	case errors.Is(err, ErrCleanup):
		return CategoryCleanup
	case errors.Is(err, ErrQueueState):
		return CategoryQueueState
	case errors.Is(err, ErrConfiguration):
		return CategoryConfiguration
	default:
		return CategoryUnknown
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
