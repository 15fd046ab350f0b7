// Package sim is an in-process accelerator fabric. It stands in for a real
// driver/runtime pair in tests, benchmarks, and the self-contained worker:
// the two layers are held as distinct active-device states so binding
// invariants stay observable, and generation is deterministic so callers can
// assert exact token sequences end to end.
package sim

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/trellisml/trellis/pkg/device"
	"github.com/trellisml/trellis/pkg/wordlist"
)

var (
	ErrBadDevice        = errors.New("sim: device out of range")
	ErrDeviceNotActive  = errors.New("sim: device not runtime-active")
	ErrEmptyArtifact    = errors.New("sim: empty engine artifact")
	ErrStreamClosed     = errors.New("sim: stream closed")
	ErrExecutableClosed = errors.New("sim: executable closed")
)

// Fabric models a node with a fixed number of devices. The runtime layer and
// the driver layer each track their own active device; a well-behaved binder
// keeps them in agreement, and the counters let tests prove it did.
type Fabric struct {
	mu      sync.Mutex
	devices int

	runtimeActive device.Device
	driverActive  device.Device

	runtimeSwitches int
	driverSwitches  int
	queries         int

	lastExec   *Executable
	lastStream *Stream
}

// New builds a fabric with the given device count, minimum one.
func New(devices int) *Fabric {
	if devices < 1 {
		devices = 1
	}
	return &Fabric{devices: devices}
}

// Runtime returns the high-level layer view of the fabric.
func (f *Fabric) Runtime() device.Runtime { return runtimeView{f} }

// Driver returns the low-level layer view of the fabric.
func (f *Fabric) Driver() device.Driver { return driverView{f} }

// Activate pre-positions the runtime-active device without counting a
// switch, standing in for an outer framework that manages devices itself.
func (f *Fabric) Activate(dev device.Device) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(dev); err != nil {
		return err
	}
	f.runtimeActive = dev
	return nil
}

// RuntimeActive reports the runtime layer's active device.
func (f *Fabric) RuntimeActive() device.Device {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runtimeActive
}

// DriverActive reports the driver layer's active device.
func (f *Fabric) DriverActive() device.Device {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.driverActive
}

// RuntimeSwitches counts runtime-layer device switches.
func (f *Fabric) RuntimeSwitches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runtimeSwitches
}

// DriverSwitches counts driver-layer device switches.
func (f *Fabric) DriverSwitches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.driverSwitches
}

// Queries counts CurrentDevice calls.
func (f *Fabric) Queries() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries
}

// LastExecutable returns the most recently deserialized executable, nil
// before the first Deserialize.
func (f *Fabric) LastExecutable() *Executable {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastExec
}

// LastStream returns the most recently created stream, nil before the first
// NewStream.
func (f *Fabric) LastStream() *Stream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastStream
}

func (f *Fabric) check(dev device.Device) error {
	if int(dev) < 0 || int(dev) >= f.devices {
		return fmt.Errorf("%w: device %d, fabric has %d", ErrBadDevice, int(dev), f.devices)
	}
	return nil
}

type runtimeView struct{ f *Fabric }

func (v runtimeView) DeviceCount() (int, error) {
	return v.f.devices, nil
}

func (v runtimeView) CurrentDevice() (device.Device, error) {
	f := v.f
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	return f.runtimeActive, nil
}

func (v runtimeView) SetDevice(dev device.Device) error {
	f := v.f
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(dev); err != nil {
		return err
	}
	f.runtimeSwitches++
	f.runtimeActive = dev
	return nil
}

func (v runtimeView) NewStream(dev device.Device) (device.Stream, error) {
	f := v.f
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(dev); err != nil {
		return nil, err
	}
	st := &Stream{dev: dev}
	f.lastStream = st
	return st, nil
}

// Deserialize accepts only a non-empty blob against the runtime-active
// device. Binding must have happened first; that ordering is the point.
func (v runtimeView) Deserialize(blob []byte, dev device.Device) (device.Executable, error) {
	f := v.f
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(blob) == 0 {
		return nil, ErrEmptyArtifact
	}
	if err := f.check(dev); err != nil {
		return nil, err
	}
	if dev != f.runtimeActive {
		return nil, fmt.Errorf("%w: device %d, active is %d", ErrDeviceNotActive, int(dev), int(f.runtimeActive))
	}
	ex := &Executable{dev: dev, size: len(blob)}
	f.lastExec = ex
	return ex, nil
}

type driverView struct{ f *Fabric }

func (v driverView) SetDevice(dev device.Device) error {
	f := v.f
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(dev); err != nil {
		return err
	}
	f.driverSwitches++
	f.driverActive = dev
	return nil
}

// Stream is a FIFO queue on one simulated device. It counts Synchronize
// calls and refuses use after Close.
type Stream struct {
	mu     sync.Mutex
	dev    device.Device
	syncs  int
	closed bool
}

func (s *Stream) Synchronize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	s.syncs++
	return nil
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Synchronizations counts completed Synchronize calls.
func (s *Stream) Synchronizations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncs
}

// Closed reports whether Close has been called.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Stream) Device() device.Device { return s.dev }

// Executable deterministically derives tokens from the prompt and seed, so
// the same request always yields the same sequences. It honors MaxNewTokens,
// EndID, stop-word suffix truncation, and bad-word avoidance, and records
// the last request for assertions.
type Executable struct {
	mu     sync.Mutex
	dev    device.Device
	size   int
	execs  int
	last   *device.ExecRequest
	closed bool
}

func (e *Executable) Device() device.Device { return e.dev }

// Size reports the deserialized blob length.
func (e *Executable) Size() int { return e.size }

// Execs counts Execute calls.
func (e *Executable) Execs() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.execs
}

// LastExec returns the most recent request, nil before the first Execute.
func (e *Executable) LastExec() *device.ExecRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

func (e *Executable) Execute(ctx context.Context, stream device.Stream, req device.ExecRequest) (*device.ExecResult, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrExecutableClosed
	}
	e.execs++
	recorded := req
	e.last = &recorded
	e.mu.Unlock()

	out := make([][]int32, len(req.InputIDs))
	for i, prompt := range req.InputIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = generate(prompt, req)
	}
	if stream != nil {
		if err := stream.Synchronize(); err != nil {
			return nil, err
		}
	}
	return &device.ExecResult{OutputIDs: out}, nil
}

func (e *Executable) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

const tokenRange = 31999 // emitted ids fall in [1, 32000): zero stays free for pad/end defaults

func generate(prompt []int32, req device.ExecRequest) []int32 {
	state := req.Seed
	if state == 0 {
		state = 0x9e3779b97f4a7c15
	}
	for _, id := range prompt {
		state = state*31 + uint64(uint32(id)) + 1
	}

	out := make([]int32, 0, req.MaxNewTokens)
	hist := slices.Clone(prompt)
	for len(out) < req.MaxNewTokens {
		state = advance(state)
		tok := tokenFrom(state)
		// Bad-word avoidance: walk to the nearest id that does not complete
		// a banned word. Bounded by the id range, so it always terminates.
		for i := 0; i < tokenRange && completesWord(hist, tok, req.BadWords); i++ {
			tok = tok%tokenRange + 1
		}
		if tok == req.EndID {
			break
		}
		out = append(out, tok)
		hist = append(hist, tok)
		if n := suffixWordLen(hist, req.StopWords); n > 0 {
			out = out[:len(out)-min(n, len(out))]
			break
		}
	}
	return out
}

func advance(state uint64) uint64 {
	return state*6364136223846793005 + 1442695040888963407
}

func tokenFrom(state uint64) int32 {
	return int32(1 + (state>>33)%tokenRange)
}

// suffixWordLen reports the length of an encoded word ending seq, 0 if none.
func suffixWordLen(seq []int32, arr *wordlist.Array) int {
	if arr == nil {
		return 0
	}
	for i := 0; i < arr.Words(); i++ {
		w := arr.Word(i)
		if len(w) == 0 || len(w) > len(seq) {
			continue
		}
		if slices.Equal(seq[len(seq)-len(w):], w) {
			return len(w)
		}
	}
	return 0
}

// completesWord reports whether appending tok to seq would end an encoded
// word.
func completesWord(seq []int32, tok int32, arr *wordlist.Array) bool {
	if arr == nil {
		return false
	}
	for i := 0; i < arr.Words(); i++ {
		w := arr.Word(i)
		n := len(w)
		if n == 0 || n > len(seq)+1 || w[n-1] != tok {
			continue
		}
		if slices.Equal(seq[len(seq)-(n-1):], w[:n-1]) {
			return true
		}
	}
	return false
}
