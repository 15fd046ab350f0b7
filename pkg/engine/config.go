// Package engine loads compiled inference-engine artifacts and their JSON
// configuration, either from an engine directory or from in-memory buffers.
//
// An engine directory holds one shared config.json and one artifact file per
// rank (rank0.engine, rank1.engine, ...). The artifact bytes are opaque at
// this layer; they are validated only by the device runtime that
// deserializes them.
package engine

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	json "github.com/goccy/go-json"
)

// Config is the engine configuration document. All three top-level keys are
// required; Version governs compatibility of Build fields across format
// revisions. A Config is immutable after parse except for SetRank.
type Config struct {
	Pretrained PretrainedConfig `json:"pretrained_config"`
	Build      BuildConfig      `json:"build_config"`
	Version    string           `json:"version"`
}

// PretrainedConfig carries model architecture, quantization, and parallel
// topology metadata. Rank is assigned at bootstrap via Config.SetRank, not
// trusted from the document.
type PretrainedConfig struct {
	Architecture      string       `json:"architecture"`
	DType             string       `json:"dtype,omitempty"`
	VocabSize         int          `json:"vocab_size,omitempty"`
	HiddenSize        int          `json:"hidden_size,omitempty"`
	NumHiddenLayers   int          `json:"num_hidden_layers,omitempty"`
	NumAttentionHeads int          `json:"num_attention_heads,omitempty"`
	NumKeyValueHeads  int          `json:"num_key_value_heads,omitempty"`
	HeadSize          int          `json:"head_size,omitempty"`
	WorldSize         int          `json:"world_size,omitempty"`
	TPSize            int          `json:"tp_size,omitempty"`
	PPSize            int          `json:"pp_size,omitempty"`
	Rank              int          `json:"rank"`
	Quantization      *QuantConfig `json:"quantization,omitempty"`
}

// QuantConfig describes the quantization scheme the artifact was built with.
type QuantConfig struct {
	QuantAlgo        string `json:"quant_algo,omitempty"`
	KVCacheQuantAlgo string `json:"kv_cache_quant_algo,omitempty"`
	GroupSize        int    `json:"group_size,omitempty"`
}

// BuildConfig carries the compile-time limits the artifact was built for.
// PluginConfig round-trips untouched.
type BuildConfig struct {
	MaxInputLen   int            `json:"max_input_len,omitempty"`
	MaxSeqLen     int            `json:"max_seq_len,omitempty"`
	MaxBatchSize  int            `json:"max_batch_size,omitempty"`
	MaxBeamWidth  int            `json:"max_beam_width,omitempty"`
	MaxNumTokens  int            `json:"max_num_tokens,omitempty"`
	StronglyTyped bool           `json:"strongly_typed,omitempty"`
	PluginConfig  map[string]any `json:"plugin_config,omitempty"`
}

// buildConfigJSON additionally captures the pre-0.9.0 max_output_len key.
type buildConfigJSON struct {
	BuildConfig
	MaxOutputLen *int `json:"max_output_len,omitempty"`
}

// maxSeqLenVersion is the format revision that replaced max_output_len with
// max_seq_len in build_config.
const maxSeqLenVersion = "0.9.0"

// ParseConfig deserializes a configuration document. The top-level keys
// pretrained_config, build_config, and version must all be present; a
// missing or null key fails with FormatError(MissingField), malformed JSON
// with FormatError(ParseFailure). This is the single parsing path: file and
// buffer entry points both delegate here.
func ParseConfig(data []byte) (*Config, error) {
	var raw struct {
		Pretrained json.RawMessage `json:"pretrained_config"`
		Build      json.RawMessage `json:"build_config"`
		Version    json.RawMessage `json:"version"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &FormatError{Kind: ParseFailure, Err: err}
	}
	for _, key := range []struct {
		name string
		raw  json.RawMessage
	}{
		{"pretrained_config", raw.Pretrained},
		{"build_config", raw.Build},
		{"version", raw.Version},
	} {
		if keyAbsent(key.raw) {
			return nil, &FormatError{Kind: MissingField, Field: key.name}
		}
	}

	cfg := &Config{}
	if err := json.Unmarshal(raw.Version, &cfg.Version); err != nil {
		return nil, &FormatError{Kind: ParseFailure, Err: fmt.Errorf("version: %w", err)}
	}
	if err := json.Unmarshal(raw.Pretrained, &cfg.Pretrained); err != nil {
		return nil, &FormatError{Kind: ParseFailure, Err: fmt.Errorf("pretrained_config: %w", err)}
	}
	var build buildConfigJSON
	if err := json.Unmarshal(raw.Build, &build); err != nil {
		return nil, &FormatError{Kind: ParseFailure, Err: fmt.Errorf("build_config: %w", err)}
	}
	cfg.Build = build.BuildConfig

	// Engines built before the max_seq_len rename declare max_output_len
	// instead; derive the new field so consumers see one shape.
	if build.MaxOutputLen != nil && cfg.Build.MaxSeqLen == 0 && versionBefore(cfg.Version, maxSeqLenVersion) {
		cfg.Build.MaxSeqLen = cfg.Build.MaxInputLen + *build.MaxOutputLen
	}
	return cfg, nil
}

// LoadConfigFile reads path and delegates to ParseConfig. A missing file
// fails with NotFoundError.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{Path: path, Err: err}
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}

// Serialize is the inverse of ParseConfig for the declared fields:
// ParseConfig(c.Serialize()) reproduces an equivalent Config.
func (c *Config) Serialize() ([]byte, error) {
	return json.Marshal(c)
}

// SetRank assigns the process rank on the pretrained section. It must be
// called before any device-dependent consumer reads the rank. Bounds are the
// caller's topology knowledge; none are checked here.
func (c *Config) SetRank(rank int) {
	c.Pretrained.Rank = rank
}

// Validate applies sanity checks beyond structural parsing. Parse does not
// call it; inspection tooling does.
func (c *Config) Validate() error {
	if c.Pretrained.Architecture == "" {
		return fmt.Errorf("pretrained_config: architecture is empty")
	}
	for _, lim := range []struct {
		name  string
		value int
	}{
		{"max_input_len", c.Build.MaxInputLen},
		{"max_seq_len", c.Build.MaxSeqLen},
		{"max_batch_size", c.Build.MaxBatchSize},
		{"max_beam_width", c.Build.MaxBeamWidth},
		{"max_num_tokens", c.Build.MaxNumTokens},
	} {
		if lim.value < 0 {
			return fmt.Errorf("build_config: %s is negative", lim.name)
		}
	}
	if c.Build.MaxSeqLen > 0 && c.Build.MaxInputLen > c.Build.MaxSeqLen {
		return fmt.Errorf("build_config: max_input_len %d exceeds max_seq_len %d", c.Build.MaxInputLen, c.Build.MaxSeqLen)
	}
	if c.Pretrained.TPSize > 0 && c.Pretrained.PPSize > 0 && c.Pretrained.WorldSize > 0 {
		if c.Pretrained.TPSize*c.Pretrained.PPSize != c.Pretrained.WorldSize {
			return fmt.Errorf("pretrained_config: tp_size %d * pp_size %d != world_size %d",
				c.Pretrained.TPSize, c.Pretrained.PPSize, c.Pretrained.WorldSize)
		}
	}
	return nil
}

func keyAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func versionBefore(v, ref string) bool {
	return compareVersions(v, ref) < 0
}

// compareVersions orders dotted numeric version strings. Non-numeric suffixes
// within a component are ignored; missing components compare as zero.
func compareVersions(a, b string) int {
	for len(a) > 0 || len(b) > 0 {
		var ai, bi int
		ai, a = nextComponent(a)
		bi, b = nextComponent(b)
		if ai != bi {
			if ai < bi {
				return -1
			}
			return 1
		}
	}
	return 0
}

func nextComponent(v string) (int, string) {
	n := 0
	i := 0
	for i < len(v) && v[i] >= '0' && v[i] <= '9' {
		n = n*10 + int(v[i]-'0')
		i++
	}
	for i < len(v) && v[i] != '.' {
		i++
	}
	if i < len(v) {
		i++
	}
	return n, v[i:]
}
