package engine

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"
	"golang.org/x/sys/unix"
)

// ConfigFileName is the shared configuration file within an engine directory.
const ConfigFileName = "config.json"

// ArtifactFileName returns the per-rank artifact file name within an engine
// directory.
func ArtifactFileName(rank int) string {
	return fmt.Sprintf("rank%d.engine", rank)
}

// Engine owns a compiled inference artifact together with its parsed
// configuration. The buffer is owned exclusively until handed to a
// deserializer; rank is set on the config before construction returns.
type Engine struct {
	Config *Config

	buf     []byte
	mmapped bool
	weights map[string][]byte
}

// LoadFromFiles reads the shared config file and this rank's artifact from
// an engine directory, assigns the rank on the loaded config, and returns
// the Engine. Missing files fail with NotFoundError. The artifact is mapped
// read-only where mmap is available; Close releases the mapping.
func LoadFromFiles(dir string, rank int) (*Engine, error) {
	cfg, err := LoadConfigFile(filepath.Join(dir, ConfigFileName))
	if err != nil {
		return nil, err
	}
	cfg.SetRank(rank)

	artifact := filepath.Join(dir, ArtifactFileName(rank))
	buf, mmapped, err := mapFile(artifact)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{Path: artifact, Err: err}
		}
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return &Engine{Config: cfg, buf: buf, mmapped: mmapped}, nil
}

// FromBuffer constructs an Engine from an in-memory artifact and a raw JSON
// configuration string, without touching the filesystem. The config is
// parsed via ParseConfig and rank is applied before the buffer is bound, so
// the result is indistinguishable from the file-based path given equivalent
// inputs. Pass rank 0 for single-process callers. The buffer is adopted, not
// copied; the caller must not mutate it afterwards.
func FromBuffer(buf []byte, configJSON string, rank int) (*Engine, error) {
	cfg, err := ParseConfig([]byte(configJSON))
	if err != nil {
		return nil, err
	}
	cfg.SetRank(rank)
	return &Engine{Config: cfg, buf: buf}, nil
}

// Rank reports the rank assigned on the configuration.
func (e *Engine) Rank() int {
	return e.Config.Pretrained.Rank
}

// Buffer returns the artifact bytes. The slice is invalid after Close.
func (e *Engine) Buffer() []byte {
	return e.buf
}

// SetManagedWeights attaches externally-supplied weight blobs keyed by
// tensor name. The engine does not interpret them; they travel with the
// artifact to whichever deserializer understands them.
func (e *Engine) SetManagedWeights(w map[string][]byte) {
	e.weights = w
}

// ManagedWeights returns the attached external weights, if any.
func (e *Engine) ManagedWeights() map[string][]byte {
	return e.weights
}

// Save writes the engine directory layout for this rank: the shared config
// file (with the current rank recorded) and the per-rank artifact. Inverse
// of LoadFromFiles for a single rank.
func (e *Engine) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create engine dir: %w", err)
	}
	data, err := json.MarshalIndent(e.Config, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ArtifactFileName(e.Rank())), e.buf, 0o644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}

// Close releases the artifact buffer and any mmap backing it. Safe to call
// more than once.
func (e *Engine) Close() error {
	if e == nil || e.buf == nil {
		return nil
	}
	var err error
	if e.mmapped {
		err = unix.Munmap(e.buf)
	}
	e.buf = nil
	e.mmapped = false
	return err
}

// mapFile loads path read-only, preferring mmap for zero-copy access and
// falling back to a plain read where mapping is unavailable. Empty files
// yield an empty unmapped slice.
func mapFile(path string) ([]byte, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, false, err
	}
	size64 := stat.Size()
	if size64 == 0 {
		return []byte{}, false, nil
	}
	if size64 > int64(int(^uint(0)>>1)) {
		return nil, false, fmt.Errorf("artifact too large to map: %d bytes", size64)
	}
	size := int(size64)

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err == nil {
		return data, true, nil
	}

	data, err = readAllAt(f, size)
	if err != nil {
		return nil, false, err
	}
	return data, false, nil
}

func readAllAt(r io.ReaderAt, size int) ([]byte, error) {
	out := make([]byte, size)
	var off int64
	for off < int64(size) {
		n, err := r.ReadAt(out[off:], off)
		off += int64(n)
		if err == nil {
			continue
		}
		if err == io.EOF && off == int64(size) {
			break
		}
		return nil, err
	}
	return out, nil
}
