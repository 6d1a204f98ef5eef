package mapping

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateMapping is returned when a dispatch key already has a handler.
	ErrDuplicateMapping = errors.New("duplicate handler mapping")
	// ErrDuplicateParameter is returned when a parameter value is reused across modes.
	ErrDuplicateParameter = errors.New("duplicate parameter across modes")
	// ErrInvalidConfig is returned for missing or malformed mapping configuration.
	ErrInvalidConfig = errors.New("invalid mapping configuration")
	// ErrBuilderClosed is returned when a builder is used after Build.
	ErrBuilderClosed = errors.New("mapping builder already built")
)

// ConflictError reports a second handler for an already mapped key.
// Parameter is empty for mode-level mappings.
type ConflictError struct {
	Mode      Mode
	Parameter string
	Handler   string
	Existing  string
}

func (e *ConflictError) Error() string {
	if e.Parameter == "" {
		return fmt.Sprintf("cannot map handler [%s] to mode [%s]: handler [%s] is already mapped",
			e.Handler, e.Mode, e.Existing)
	}
	return fmt.Sprintf("cannot map handler [%s] to parameter [%s] in mode [%s]: handler [%s] is already mapped",
		e.Handler, e.Parameter, e.Mode, e.Existing)
}

func (e *ConflictError) Unwrap() error { return ErrDuplicateMapping }

// DuplicateParameterError reports a parameter value used under two modes.
type DuplicateParameterError struct {
	Parameter    string
	Mode         Mode
	ExistingMode Mode
}

func (e *DuplicateParameterError) Error() string {
	return fmt.Sprintf("parameter [%s] in mode [%s] is already mapped in mode [%s]",
		e.Parameter, e.Mode, e.ExistingMode)
}

func (e *DuplicateParameterError) Unwrap() error { return ErrDuplicateParameter }

func invalidConfig(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// IsConflict reports whether err is a registration conflict of either kind.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateMapping) || errors.Is(err, ErrDuplicateParameter)
}
