package engine

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

const testConfigJSON = `{
	"pretrained_config": {
		"architecture": "LlamaForCausalLM",
		"dtype": "float16",
		"vocab_size": 32000,
		"hidden_size": 4096,
		"num_hidden_layers": 32,
		"num_attention_heads": 32,
		"num_key_value_heads": 8,
		"world_size": 4,
		"tp_size": 4,
		"pp_size": 1,
		"quantization": {"quant_algo": "W8A16", "group_size": 128}
	},
	"build_config": {
		"max_input_len": 2048,
		"max_seq_len": 4096,
		"max_batch_size": 8,
		"max_beam_width": 2,
		"strongly_typed": true,
		"plugin_config": {"gemm_plugin": "float16", "paged_kv_cache": true}
	},
	"version": "0.11.0"
}`

func TestParseConfigRoundTrip(t *testing.T) {
	t.Parallel()

	cfg, err := ParseConfig([]byte(testConfigJSON))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Pretrained.Architecture != "LlamaForCausalLM" {
		t.Fatalf("architecture: got %q", cfg.Pretrained.Architecture)
	}
	if cfg.Build.MaxSeqLen != 4096 {
		t.Fatalf("max_seq_len: got %d", cfg.Build.MaxSeqLen)
	}
	if cfg.Pretrained.Quantization == nil || cfg.Pretrained.Quantization.QuantAlgo != "W8A16" {
		t.Fatalf("quantization not preserved: %+v", cfg.Pretrained.Quantization)
	}

	data, err := cfg.Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	again, err := ParseConfig(data)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if !reflect.DeepEqual(cfg, again) {
		t.Fatalf("round trip mismatch:\n first %+v\nsecond %+v", cfg, again)
	}
}

func TestParseConfigMissingField(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		doc   string
		field string
	}{
		{
			name:  "no build_config",
			doc:   `{"pretrained_config": {}, "version": "1"}`,
			field: "build_config",
		},
		{
			name:  "no pretrained_config",
			doc:   `{"build_config": {}, "version": "1"}`,
			field: "pretrained_config",
		},
		{
			name:  "no version",
			doc:   `{"pretrained_config": {}, "build_config": {}}`,
			field: "version",
		},
		{
			name:  "null counts as missing",
			doc:   `{"pretrained_config": {}, "build_config": null, "version": "1"}`,
			field: "build_config",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseConfig([]byte(tc.doc))
			var ferr *FormatError
			if !errors.As(err, &ferr) {
				t.Fatalf("expected FormatError, got %v", err)
			}
			if ferr.Kind != MissingField {
				t.Fatalf("kind: got %v want %v", ferr.Kind, MissingField)
			}
			if ferr.Field != tc.field {
				t.Fatalf("field: got %q want %q", ferr.Field, tc.field)
			}
		})
	}
}

func TestParseConfigMalformed(t *testing.T) {
	t.Parallel()

	cases := []string{
		`{`,
		`not json`,
		`{"pretrained_config": 7, "build_config": {}, "version": "1"}`,
		`{"pretrained_config": {}, "build_config": {}, "version": {}}`,
	}
	for _, doc := range cases {
		_, err := ParseConfig([]byte(doc))
		var ferr *FormatError
		if !errors.As(err, &ferr) {
			t.Fatalf("doc %q: expected FormatError, got %v", doc, err)
		}
		if ferr.Kind != ParseFailure {
			t.Fatalf("doc %q: kind got %v want %v", doc, ferr.Kind, ParseFailure)
		}
	}
}

func TestParseConfigLegacyMaxOutputLen(t *testing.T) {
	t.Parallel()

	legacy := `{
		"pretrained_config": {"architecture": "GPTForCausalLM"},
		"build_config": {"max_input_len": 1024, "max_output_len": 512},
		"version": "0.8.0"
	}`
	cfg, err := ParseConfig([]byte(legacy))
	if err != nil {
		t.Fatalf("parse legacy: %v", err)
	}
	if cfg.Build.MaxSeqLen != 1536 {
		t.Fatalf("derived max_seq_len: got %d want 1536", cfg.Build.MaxSeqLen)
	}

	// Post-rename formats do not honor the old key.
	modern := `{
		"pretrained_config": {"architecture": "GPTForCausalLM"},
		"build_config": {"max_input_len": 1024, "max_output_len": 512},
		"version": "0.9.0"
	}`
	cfg, err = ParseConfig([]byte(modern))
	if err != nil {
		t.Fatalf("parse modern: %v", err)
	}
	if cfg.Build.MaxSeqLen != 0 {
		t.Fatalf("max_seq_len should stay unset, got %d", cfg.Build.MaxSeqLen)
	}
}

func TestLoadConfigFileDelegatesToParse(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(testConfigJSON), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	fromFile, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	fromString, err := ParseConfig([]byte(testConfigJSON))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !reflect.DeepEqual(fromFile, fromString) {
		t.Fatalf("file and string paths disagree")
	}
}

func TestLoadConfigFileMissing(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")
	_, err := LoadConfigFile(path)
	var nferr *NotFoundError
	if !errors.As(err, &nferr) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if nferr.Path != path {
		t.Fatalf("path: got %q want %q", nferr.Path, path)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("should wrap fs.ErrNotExist, got %v", err)
	}
}

func TestSetRank(t *testing.T) {
	t.Parallel()

	cfg, err := ParseConfig([]byte(testConfigJSON))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	cfg.SetRank(3)
	if cfg.Pretrained.Rank != 3 {
		t.Fatalf("rank: got %d want 3", cfg.Pretrained.Rank)
	}
}

func TestCompareVersions(t *testing.T) {
	t.Parallel()

	cases := []struct {
		a, b string
		want int
	}{
		{"0.8.0", "0.9.0", -1},
		{"0.9.0", "0.9.0", 0},
		{"0.10.0", "0.9.0", 1},
		{"1", "0.9.0", 1},
		{"0.9", "0.9.0", 0},
		{"0.9.0.dev2024", "0.9.0", 0},
		{"", "0.9.0", -1},
	}
	for _, tc := range cases {
		if got := compareVersions(tc.a, tc.b); got != tc.want {
			t.Fatalf("compare(%q, %q): got %d want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	good, err := ParseConfig([]byte(testConfigJSON))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("validate good config: %v", err)
	}

	bad := *good
	bad.Build.MaxInputLen = 8192
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for max_input_len > max_seq_len")
	}

	bad = *good
	bad.Pretrained.Architecture = ""
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for empty architecture")
	}

	bad = *good
	bad.Pretrained.TPSize = 3
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for tp*pp != world")
	}
}
