// Package device defines the accelerator abstractions the runtime binds
// against: the high-level tensor runtime layer, the low-level driver context
// layer, and the Binder that decides which physical device a rank targets.
//
// The two layers are deliberately separate. Every self-managed device switch
// is issued to both so they agree on the active device; under external
// management the high-level runtime is authoritative and the driver context
// is confirmed to it.
package device

import (
	"context"
	"fmt"

	"github.com/trellisml/trellis/pkg/wordlist"
)

// Device identifies a physical accelerator by local index.
type Device int

func (d Device) String() string {
	return fmt.Sprintf("device %d", int(d))
}

// Stream is an asynchronous execution queue tied to one device. Work on a
// stream is FIFO; completion requires an explicit Synchronize.
type Stream interface {
	Synchronize() error
	Close() error
}

// ExecRequest is the input to one inference launch. The word-list fields are
// canonical-only at this boundary: normalization has already happened by the
// time an ExecRequest exists.
type ExecRequest struct {
	InputIDs     [][]int32
	MaxNewTokens int
	EndID        int32
	PadID        int32

	Temperature       float32
	TopK              int32
	TopP              float32
	RepetitionPenalty float32
	Seed              uint64
	BeamWidth         int32

	StopWords *wordlist.Array
	BadWords  *wordlist.Array
}

// ExecResult holds the generated token ids per input sequence, prompt
// excluded.
type ExecResult struct {
	OutputIDs [][]int32
}

// Executable is a deserialized artifact ready to launch on its device.
type Executable interface {
	Device() Device
	// Execute enqueues one generation on stream and blocks until the result
	// is host-visible.
	Execute(ctx context.Context, stream Stream, req ExecRequest) (*ExecResult, error)
	Close() error
}

// Runtime is the high-level tensor runtime layer: device control, stream
// creation, and artifact deserialization against an active device.
type Runtime interface {
	DeviceCount() (int, error)
	CurrentDevice() (Device, error)
	SetDevice(Device) error
	NewStream(Device) (Stream, error)
	Deserialize(blob []byte, dev Device) (Executable, error)
}

// Driver is the low-level driver context layer. It only ever follows: the
// Binder either switches it in lockstep with the Runtime or confirms it to
// the Runtime's externally-set device.
type Driver interface {
	SetDevice(Device) error
}
