package governance

import (
	"errors"
	"fmt"
)

// ErrDivisionByZero is returned when an impact percentage is requested for a
// population whose total gross value is zero.
var ErrDivisionByZero = errors.New("governance: impact delta undefined for zero gross value")

// MissingMetricError reports a weighted or compared metric absent from a record.
type MissingMetricError struct {
	MerchantID string
	Metric     string
}

func (e *MissingMetricError) Error() string {
	return fmt.Sprintf("merchant %q: missing metric %q", e.MerchantID, e.Metric)
}

// InvalidConfigurationError reports a policy that cannot be evaluated.
type InvalidConfigurationError struct {
	Field  string
	Reason string
}

func (e *InvalidConfigurationError) Error() string {
	return fmt.Sprintf("invalid policy configuration: %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &InvalidConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
