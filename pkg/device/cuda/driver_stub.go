//go:build !cuda

package cuda

import "github.com/trellisml/trellis/pkg/device"

func NewDriver() (device.Driver, error) { return nil, ErrUnavailable }

// Available reports whether this build carries the CUDA bindings.
func Available() bool { return false }

// DeviceCount reports the number of visible CUDA devices.
func DeviceCount() (int, error) { return 0, ErrUnavailable }
