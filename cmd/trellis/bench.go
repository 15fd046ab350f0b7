package main

import (
	"context"
	"fmt"
	goruntime "runtime"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/trellisml/trellis/pkg/engine"
	"github.com/trellisml/trellis/pkg/runtime"
)

const benchConfigJSON = `{
	"pretrained_config": {"architecture": "LlamaForCausalLM", "dtype": "float16", "world_size": 1},
	"build_config": {"max_input_len": 2048, "max_seq_len": 4096, "max_batch_size": 64},
	"version": "0.11.0"
}`

func benchCmd() *cli.Command {
	var (
		warmupRuns int64
		benchRuns  int64
		steps      int64
		batch      int64
		promptLen  int64
		seed       int64
	)

	flags := append([]cli.Flag{}, commonEngineFlags()...)
	flags = append(flags, topologyFlags()...)
	flags = append(flags, loggingFlags()...)
	flags = append(flags,
		&cli.Int64Flag{
			Name:        "warmup",
			Usage:       "number of warmup runs",
			Value:       1,
			Destination: &warmupRuns,
		},
		&cli.Int64Flag{
			Name:        "runs",
			Usage:       "number of benchmark runs",
			Value:       3,
			Destination: &benchRuns,
		},
		&cli.Int64Flag{
			Name:        "steps",
			Aliases:     []string{"n"},
			Usage:       "number of tokens to generate per sequence",
			Value:       128,
			Destination: &steps,
		},
		&cli.Int64Flag{
			Name:        "batch",
			Aliases:     []string{"b"},
			Usage:       "sequences per generate call",
			Value:       1,
			Destination: &batch,
		},
		&cli.Int64Flag{
			Name:        "prompt-len",
			Usage:       "prompt tokens per sequence",
			Value:       32,
			Destination: &promptLen,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "sampling seed",
			Value:       42,
			Destination: &seed,
		},
	)

	return &cli.Command{
		Name:  "bench",
		Usage: "Run standardized generation benchmarks against the sim fabric",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := LoadConfig()
			applyEngineConfig(cmd, cfg)
			applyLoggingConfig(cmd, cfg)

			log, err := buildLogger()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			var (
				eng    *engine.Engine
				source string
			)
			if engineDir != "" {
				eng, err = engine.LoadFromFiles(engineDir, int(engineRank))
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: load engine: %v", err), 1)
				}
				source = engineDir
			} else {
				eng, err = engine.FromBuffer(make([]byte, 1<<20), benchConfigJSON, int(engineRank))
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: synthesize engine: %v", err), 1)
				}
				source = "synthetic"
			}
			defer func() { _ = eng.Close() }()

			binder, err := buildBinder(log)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			m := runtime.Mapping{
				WorldSize:   int(worldSize),
				Rank:        int(engineRank),
				GPUsPerNode: int(gpusPerNode),
				TPSize:      int(tpSize),
				PPSize:      int(ppSize),
			}
			session, err := runtime.NewSession(binder, eng, m, runtime.WithLogger(log))
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: open session: %v", err), 1)
			}
			defer func() { _ = session.Close() }()

			req := benchRequest(int(batch), int(promptLen), int(steps), uint64(seed))

			fmt.Println("=== Trellis Benchmark ===")
			fmt.Printf("Engine:   %s (%s)\n", source, formatBytes(uint64(len(eng.Buffer()))))
			fmt.Printf("Device:   %d (%s)\n", int(session.Device()), session.Mode())
			fmt.Printf("CPUs:     %d\n", goruntime.NumCPU())
			fmt.Printf("GOMAXPROCS: %d\n", goruntime.GOMAXPROCS(0))
			fmt.Printf("Steps:    %d tokens x %d sequences\n", steps, batch)
			fmt.Printf("Warmup:   %d runs\n", warmupRuns)
			fmt.Printf("Runs:     %d\n", benchRuns)
			fmt.Println()

			for i := range int(warmupRuns) {
				log.Info("warmup run", "run", i+1)
				if _, err := session.Generate(ctx, req); err != nil {
					return cli.Exit(fmt.Sprintf("error: warmup run %d: %v", i+1, err), 1)
				}
			}

			type runResult struct {
				TPS      float64
				Duration time.Duration
				Tokens   int
			}
			results := make([]runResult, 0, benchRuns)

			for i := range int(benchRuns) {
				log.Info("benchmark run", "run", i+1)
				start := time.Now()
				res, err := session.Generate(ctx, req)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: benchmark run %d: %v", i+1, err), 1)
				}
				dur := time.Since(start)
				tps := 0.0
				if dur > 0 {
					tps = float64(res.CompletionTokens) / dur.Seconds()
				}
				results = append(results, runResult{TPS: tps, Duration: dur, Tokens: res.CompletionTokens})
			}

			fmt.Println("=== Results ===")
			fmt.Printf("%-6s %12s %12s %8s\n", "Run", "Gen tps", "Duration", "Tokens")

			var sumTPS float64
			for i, r := range results {
				fmt.Printf("%-6d %12.2f %12s %8d\n",
					i+1, r.TPS, r.Duration.Round(time.Microsecond), r.Tokens)
				sumTPS += r.TPS
			}

			if n := float64(len(results)); n > 0 {
				fmt.Printf("\n%-6s %12.2f\n", "Avg", sumTPS/n)
			}

			var mem goruntime.MemStats
			goruntime.ReadMemStats(&mem)
			fmt.Printf("\nMemory: %.1f MB alloc, %.1f MB sys\n",
				float64(mem.Alloc)/(1024*1024),
				float64(mem.Sys)/(1024*1024))

			return nil
		},
	}
}

// benchRequest builds a deterministic batch so repeat runs compare like for
// like.
func benchRequest(batch, promptLen, steps int, seed uint64) runtime.GenerationRequest {
	inputs := make([][]int32, batch)
	for i := range inputs {
		seq := make([]int32, promptLen)
		for j := range seq {
			seq[j] = int32(1 + (i*promptLen+j)%31999)
		}
		inputs[i] = seq
	}
	return runtime.GenerationRequest{
		InputIDs: inputs,
		Sampling: runtime.SamplingConfig{
			MaxNewTokens: steps,
			Seed:         seed,
		},
	}
}
