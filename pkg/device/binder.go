package device

import (
	"fmt"

	"github.com/trellisml/trellis/internal/logger"
	"github.com/trellisml/trellis/internal/metrics"
)

// Binder decides which physical device the current process targets for a
// given logical rank, and whether to actively switch the active device or
// defer to an externally-set one. The mode is injected at construction and
// never re-read; one binder serves one process.
type Binder struct {
	mode Mode
	rt   Runtime
	drv  Driver
	log  logger.Logger
}

// NewBinder pairs the high-level runtime layer with the low-level driver
// context under the given mode. A nil log falls back to the default logger.
func NewBinder(mode Mode, rt Runtime, drv Driver, log logger.Logger) *Binder {
	if log == nil {
		log = logger.Default()
	}
	return &Binder{mode: mode, rt: rt, drv: drv, log: log.With("component", "binder", "mode", mode.String())}
}

// Mode reports the binding mode this binder was constructed with.
func (b *Binder) Mode() Mode { return b.mode }

// Runtime exposes the high-level layer for consumers that deserialize
// artifacts or acquire streams against the bound device.
func (b *Binder) Runtime() Runtime { return b.rt }

// Bind selects the device for rank and makes both layers agree on it.
//
// Self-managed: the device is rank % gpusPerNode and both layers are
// actively switched to it. Externally managed: no switch is ever issued to
// the runtime; the externally-set device is queried from it (the runtime is
// authoritative) and the driver context is confirmed to the same index.
//
// Primitive failures surface as *BindingError and abort session
// construction; they are never retried.
func (b *Binder) Bind(rank, gpusPerNode int) (Device, error) {
	if b.mode == ExternallyManaged {
		dev, err := b.rt.CurrentDevice()
		if err != nil {
			metrics.RecordBindFailure(b.mode.String())
			return 0, &BindingError{Op: OpQueryDevice, Device: -1, Err: err}
		}
		if err := b.drv.SetDevice(dev); err != nil {
			metrics.RecordBindFailure(b.mode.String())
			return 0, &BindingError{Op: OpConfirmDriver, Device: dev, Err: err}
		}
		b.log.Debug("adopted external device", "rank", rank, "device", int(dev))
		metrics.RecordBind(b.mode.String())
		return dev, nil
	}

	if gpusPerNode < 1 {
		return 0, fmt.Errorf("bind rank %d: gpus per node must be at least 1, got %d", rank, gpusPerNode)
	}
	dev := Device(rank % gpusPerNode)
	if err := b.rt.SetDevice(dev); err != nil {
		metrics.RecordBindFailure(b.mode.String())
		return 0, &BindingError{Op: OpSwitchRuntime, Device: dev, Err: err}
	}
	if err := b.drv.SetDevice(dev); err != nil {
		metrics.RecordBindFailure(b.mode.String())
		return 0, &BindingError{Op: OpSwitchDriver, Device: dev, Err: err}
	}
	b.log.Debug("bound device", "rank", rank, "gpus_per_node", gpusPerNode, "device", int(dev))
	metrics.RecordBind(b.mode.String())
	return dev, nil
}
