package attendance

import (
	"fmt"

	"github.com/waqasmani/hris-autoclock/internal/shared/errors"
)

var (
	ErrWindowSpansMidnight = errors.New(errors.ErrCodeConfig, "Clock-out window end is before its start; windows spanning midnight are not supported")
	ErrNoAgents            = errors.New(errors.ErrCodeConfig, "No agents to schedule")
)

// TickPanicError wraps a value recovered from a panicking tick.
func TickPanicError(employeeNumber string, recovered any) *errors.AppError {
	return errors.WithDetails(
		errors.ErrCodeInternal,
		fmt.Sprintf("Tick for %s panicked: %v", employeeNumber, recovered),
		map[string]string{"employee_number": employeeNumber},
	)
}
