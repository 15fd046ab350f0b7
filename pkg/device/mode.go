package device

import (
	"os"
	"strconv"
	"sync"
)

// EnvExternalDevice is the boolean-like environment toggle that switches
// device binding to external management. Unset means self-managed.
const EnvExternalDevice = "TRELLIS_EXTERNAL_DEVICE"

// Mode selects who owns device assignment for this process.
type Mode int

const (
	// SelfManaged: the runtime computes rank % gpus_per_node and actively
	// switches both layers to that device. The default.
	SelfManaged Mode = iota
	// ExternallyManaged: an outer framework has already assigned the
	// device; the runtime only queries it and confirms the driver context.
	ExternallyManaged
)

func (m Mode) String() string {
	if m == ExternallyManaged {
		return "external"
	}
	return "self"
}

// ParseMode interprets a boolean-like toggle value. Empty, unparsable, and
// false values all mean SelfManaged.
func ParseMode(value string) Mode {
	on, err := strconv.ParseBool(value)
	if err == nil && on {
		return ExternallyManaged
	}
	return SelfManaged
}

var envMode = sync.OnceValue(func() Mode {
	return ParseMode(os.Getenv(EnvExternalDevice))
})

// ModeFromEnv reads EnvExternalDevice exactly once per process and returns
// the same answer for the process lifetime. Binders take the mode as an
// explicit constructor argument; this is the conventional producer for it.
func ModeFromEnv() Mode {
	return envMode()
}
