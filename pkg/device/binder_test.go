package device

import (
	"errors"
	"testing"
)

// fakeRuntime records device-control traffic on the high-level layer.
type fakeRuntime struct {
	current   Device
	switches  int
	queries   int
	switchErr error
	queryErr  error
}

func (f *fakeRuntime) DeviceCount() (int, error) { return 8, nil }

func (f *fakeRuntime) CurrentDevice() (Device, error) {
	f.queries++
	if f.queryErr != nil {
		return 0, f.queryErr
	}
	return f.current, nil
}

func (f *fakeRuntime) SetDevice(d Device) error {
	f.switches++
	if f.switchErr != nil {
		return f.switchErr
	}
	f.current = d
	return nil
}

func (f *fakeRuntime) NewStream(Device) (Stream, error) {
	return nil, errors.New("fakeRuntime: no streams")
}

func (f *fakeRuntime) Deserialize([]byte, Device) (Executable, error) {
	return nil, errors.New("fakeRuntime: no deserializer")
}

type fakeDriver struct {
	current  Device
	switches int
	err      error
}

func (f *fakeDriver) SetDevice(d Device) error {
	f.switches++
	if f.err != nil {
		return f.err
	}
	f.current = d
	return nil
}

var _ Runtime = (*fakeRuntime)(nil)
var _ Driver = (*fakeDriver)(nil)

func TestBindSelfManagedModulo(t *testing.T) {
	t.Parallel()

	cases := []struct {
		rank, gpusPerNode int
		want              Device
	}{
		{5, 4, 1},
		{3, 4, 3},
		{0, 4, 0},
		{4, 4, 0},
		{7, 2, 1},
	}

	for _, tc := range cases {
		rt := &fakeRuntime{}
		drv := &fakeDriver{}
		b := NewBinder(SelfManaged, rt, drv, nil)

		dev, err := b.Bind(tc.rank, tc.gpusPerNode)
		if err != nil {
			t.Fatalf("bind(%d, %d): %v", tc.rank, tc.gpusPerNode, err)
		}
		if dev != tc.want {
			t.Fatalf("bind(%d, %d): got %v want %v", tc.rank, tc.gpusPerNode, dev, tc.want)
		}
		if rt.current != tc.want || drv.current != tc.want {
			t.Fatalf("layers disagree after bind: runtime %v driver %v", rt.current, drv.current)
		}
		if rt.switches != 1 || drv.switches != 1 {
			t.Fatalf("expected exactly one switch per layer, got runtime %d driver %d", rt.switches, drv.switches)
		}
	}
}

func TestBindExternalNeverSwitchesRuntime(t *testing.T) {
	t.Parallel()

	rt := &fakeRuntime{current: 2}
	drv := &fakeDriver{current: 0}
	b := NewBinder(ExternallyManaged, rt, drv, nil)

	dev, err := b.Bind(5, 4)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	if dev != 2 {
		t.Fatalf("expected externally-set device 2, got %v", dev)
	}
	if rt.switches != 0 {
		t.Fatalf("runtime switch attempted under external management (%d times)", rt.switches)
	}
	if rt.queries != 1 {
		t.Fatalf("expected one device query, got %d", rt.queries)
	}
	if drv.current != 2 || drv.switches != 1 {
		t.Fatalf("driver not confirmed to external device: current %v switches %d", drv.current, drv.switches)
	}
}

func TestBindExternalIgnoresRankDerivedIndex(t *testing.T) {
	t.Parallel()

	// Rank 3 of 4 would self-select device 3; the external owner picked 1.
	rt := &fakeRuntime{current: 1}
	b := NewBinder(ExternallyManaged, rt, &fakeDriver{}, nil)

	dev, err := b.Bind(3, 4)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	if dev != 1 {
		t.Fatalf("got %v, want externally-set device 1", dev)
	}
}

func TestBindQueryFailure(t *testing.T) {
	t.Parallel()

	cause := errors.New("driver shim not initialized")
	rt := &fakeRuntime{queryErr: cause}
	b := NewBinder(ExternallyManaged, rt, &fakeDriver{}, nil)

	_, err := b.Bind(0, 1)
	var berr *BindingError
	if !errors.As(err, &berr) {
		t.Fatalf("expected BindingError, got %v", err)
	}
	if berr.Op != OpQueryDevice {
		t.Fatalf("op: got %q want %q", berr.Op, OpQueryDevice)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause not wrapped: %v", err)
	}
}

func TestBindSwitchFailure(t *testing.T) {
	t.Parallel()

	cause := errors.New("invalid device ordinal")
	rt := &fakeRuntime{switchErr: cause}
	b := NewBinder(SelfManaged, rt, &fakeDriver{}, nil)

	_, err := b.Bind(6, 4)
	var berr *BindingError
	if !errors.As(err, &berr) {
		t.Fatalf("expected BindingError, got %v", err)
	}
	if berr.Op != OpSwitchRuntime {
		t.Fatalf("op: got %q want %q", berr.Op, OpSwitchRuntime)
	}
	if berr.Device != 2 {
		t.Fatalf("device: got %v want 2", berr.Device)
	}
}

func TestBindDriverFailureAfterRuntimeSwitch(t *testing.T) {
	t.Parallel()

	cause := errors.New("context unavailable")
	drv := &fakeDriver{err: cause}
	b := NewBinder(SelfManaged, &fakeRuntime{}, drv, nil)

	_, err := b.Bind(1, 4)
	var berr *BindingError
	if !errors.As(err, &berr) {
		t.Fatalf("expected BindingError, got %v", err)
	}
	if berr.Op != OpSwitchDriver {
		t.Fatalf("op: got %q want %q", berr.Op, OpSwitchDriver)
	}
}

func TestBindRejectsBadTopology(t *testing.T) {
	t.Parallel()

	b := NewBinder(SelfManaged, &fakeRuntime{}, &fakeDriver{}, nil)
	_, err := b.Bind(0, 0)
	if err == nil {
		t.Fatalf("expected error for zero gpus per node")
	}
	var berr *BindingError
	if errors.As(err, &berr) {
		t.Fatalf("caller error should not be a BindingError: %v", err)
	}
}
