package device

import "fmt"

// Binding operation names carried by BindingError.
const (
	OpSwitchRuntime = "switch runtime"
	OpSwitchDriver  = "switch driver"
	OpQueryDevice   = "query device"
	OpConfirmDriver = "confirm driver"
)

// BindingError reports a failed device-switch or device-query primitive
// during binding. It is fatal: a wrong or unavailable device invalidates the
// whole session, so nothing retries it. Device is -1 when the failure was
// the query itself.
type BindingError struct {
	Op     string
	Device Device
	Err    error
}

func (e *BindingError) Error() string {
	if e.Device < 0 {
		return fmt.Sprintf("device binding: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("device binding: %s (%s): %v", e.Op, e.Device, e.Err)
}

func (e *BindingError) Unwrap() error { return e.Err }
