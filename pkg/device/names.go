package device

import (
	"fmt"
	"strings"
)

// Backend names accepted by tooling that selects a fabric.
const (
	Sim  = "sim"
	CUDA = "cuda"
	Auto = "auto"
)

// Normalize canonicalizes a backend name. Empty means Auto.
func Normalize(name string) (string, error) {
	backend := strings.ToLower(strings.TrimSpace(name))
	if backend == "" {
		return Auto, nil
	}
	switch backend {
	case Sim, CUDA, Auto:
		return backend, nil
	default:
		return "", fmt.Errorf("unknown backend %q (expected auto, sim, or cuda)", backend)
	}
}
