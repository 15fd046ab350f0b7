//go:build cuda

package cuda

/*
#cgo LDFLAGS: -lcudart

// Minimal CUDA runtime forward declarations to avoid requiring headers at compile time.
// Linker will still require libcudart when building with the cuda tag.
typedef int cudaError_t;

extern const char* cudaGetErrorString(cudaError_t err);
extern cudaError_t cudaGetDeviceCount(int* count);
extern cudaError_t cudaSetDevice(int device);
extern cudaError_t cudaGetDevice(int* device);

static const char* trellisCudaGetErrorString(cudaError_t err) {
	return cudaGetErrorString(err);
}

static int trellisCudaGetDeviceCount(int* out) {
	cudaError_t err = cudaGetDeviceCount(out);
	return (int)err;
}

static int trellisCudaSetDevice(int device) {
	cudaError_t err = cudaSetDevice(device);
	return (int)err;
}

static int trellisCudaGetDevice(int* out) {
	cudaError_t err = cudaGetDevice(out);
	return (int)err;
}
*/
import "C"

import (
	"fmt"

	"github.com/trellisml/trellis/pkg/device"
)

// Driver switches the process-level CUDA driver context. Stateless; every
// call goes straight to the CUDA runtime API.
type Driver struct{}

// NewDriver probes the driver and fails when no device is visible.
func NewDriver() (device.Driver, error) {
	n, err := DeviceCount()
	if err != nil {
		return nil, err
	}
	if n < 1 {
		return nil, fmt.Errorf("cuda: no visible devices")
	}
	return Driver{}, nil
}

func (Driver) SetDevice(dev device.Device) error {
	if err := cudaErr(C.trellisCudaSetDevice(C.int(dev))); err != nil {
		return fmt.Errorf("cuda: set device %d: %w", int(dev), err)
	}
	return nil
}

// CurrentDevice reports the driver-context device, useful for confirming
// agreement with an externally managed runtime.
func (Driver) CurrentDevice() (device.Device, error) {
	var d C.int
	if err := cudaErr(C.trellisCudaGetDevice(&d)); err != nil {
		return 0, fmt.Errorf("cuda: get device: %w", err)
	}
	return device.Device(d), nil
}

// Available reports whether this build carries the CUDA bindings.
func Available() bool { return true }

// DeviceCount reports the number of visible CUDA devices.
func DeviceCount() (int, error) {
	var n C.int
	if err := cudaErr(C.trellisCudaGetDeviceCount(&n)); err != nil {
		return 0, err
	}
	return int(n), nil
}

func cudaErr(code C.int) error {
	if code == 0 {
		return nil
	}
	msg := C.GoString(C.trellisCudaGetErrorString(C.cudaError_t(code)))
	return fmt.Errorf("cuda runtime error %d: %s", int(code), msg)
}
