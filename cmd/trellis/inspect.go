package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/trellisml/trellis/pkg/engine"
)

func inspectCmd() *cli.Command {
	var (
		path         string
		showJSON     bool
		artifactRank int64
	)

	return &cli.Command{
		Name:  "inspect",
		Usage: "Inspect an engine directory or config.json",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "engine-dir",
				Aliases:     []string{"e", "dir"},
				Usage:       "path to an engine directory or a config.json file",
				Destination: &path,
				Required:    true,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print the re-serialized config instead of a summary",
				Destination: &showJSON,
			},
			&cli.Int64Flag{
				Name:        "rank",
				Aliases:     []string{"r"},
				Usage:       "also stat the per-rank engine artifact",
				Destination: &artifactRank,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			_ = ctx

			stat, err := os.Stat(path)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: stat %q: %v", path, err), 1)
			}
			cfgPath := path
			dir := filepath.Dir(path)
			if stat.IsDir() {
				cfgPath = filepath.Join(path, engine.ConfigFileName)
				dir = path
			}

			cfg, err := engine.LoadConfigFile(cfgPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: parse config: %v", err), 1)
			}

			if showJSON {
				data, err := cfg.Serialize()
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: serialize config: %v", err), 1)
				}
				fmt.Println(string(data))
				return nil
			}

			fmt.Printf("Engine Inspect: %s\n", cfgPath)
			printEngineSummary(cfg)

			if err := cfg.Validate(); err != nil {
				row("validation", fmt.Sprintf("FAILED (%v)", err))
			} else {
				row("validation", "ok")
			}

			if c.IsSet("rank") {
				name := engine.ArtifactFileName(int(artifactRank))
				section("Artifact")
				astat, err := os.Stat(filepath.Join(dir, name))
				if err != nil {
					row(name, fmt.Sprintf("missing (%v)", err))
				} else {
					row(name, formatBytes(uint64(astat.Size())))
				}
			}

			return nil
		},
	}
}

func printEngineSummary(cfg *engine.Config) {
	p := cfg.Pretrained
	b := cfg.Build

	section("Model")
	row("architecture", p.Architecture)
	row("dtype", p.DType)
	row("version", cfg.Version)
	rowInt("vocab_size", p.VocabSize)
	rowInt("hidden_size", p.HiddenSize)
	rowInt("num_hidden_layers", p.NumHiddenLayers)
	rowInt("num_attention_heads", p.NumAttentionHeads)
	rowInt("num_key_value_heads", p.NumKeyValueHeads)
	rowInt("head_size", p.HeadSize)

	section("Topology")
	rowInt("world_size", p.WorldSize)
	rowInt("tp_size", p.TPSize)
	rowInt("pp_size", p.PPSize)
	row("rank", fmt.Sprintf("%d", p.Rank))

	section("Build Limits")
	rowInt("max_input_len", b.MaxInputLen)
	rowInt("max_seq_len", b.MaxSeqLen)
	rowInt("max_batch_size", b.MaxBatchSize)
	rowInt("max_beam_width", b.MaxBeamWidth)
	rowInt("max_num_tokens", b.MaxNumTokens)
	if b.StronglyTyped {
		row("strongly_typed", "true")
	}
	if len(b.PluginConfig) > 0 {
		rowInt("plugin_config_keys", len(b.PluginConfig))
	}

	if q := p.Quantization; q != nil {
		section("Quantization")
		row("quant_algo", q.QuantAlgo)
		row("kv_cache_quant_algo", q.KVCacheQuantAlgo)
		rowInt("group_size", q.GroupSize)
	}

	section("Status")
}

func section(title string) {
	line := strings.Repeat("-", len(title)+8)
	fmt.Printf("\n%s\n--- %s ---\n%s\n", line, title, line)
}

func row(label, value string) {
	if value == "" {
		return
	}
	fmt.Printf("%-24s %s\n", label+":", value)
}

func rowInt(label string, v int) {
	if v == 0 {
		return
	}
	row(label, fmt.Sprintf("%d", v))
}

func formatBytes(b uint64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
		tb = 1024 * gb
	)
	switch {
	case b >= tb:
		return fmt.Sprintf("%.2f TiB", float64(b)/float64(tb))
	case b >= gb:
		return fmt.Sprintf("%.2f GiB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.2f MiB", float64(b)/float64(mb))
	case b >= kb:
		return fmt.Sprintf("%.2f KiB", float64(b)/float64(kb))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
