package main

import (
	"os"

	"github.com/urfave/cli/v3"

	"github.com/trellisml/trellis/internal/logger"
)

var (
	engineDir   string
	engineRank  int64
	backend     string
	simDevices  int64
	worldSize   int64
	gpusPerNode int64
	tpSize      int64
	ppSize      int64
	logLevel    string
	logFormat   string
	debug       bool
)

func commonEngineFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "engine-dir",
			Aliases:     []string{"e", "dir"},
			Usage:       "path to directory containing config.json and rank<N>.engine",
			Destination: &engineDir,
		},
		&cli.Int64Flag{
			Name:        "rank",
			Aliases:     []string{"r"},
			Usage:       "rank of this worker in the parallel topology",
			Destination: &engineRank,
		},
		&cli.StringFlag{
			Name:        "backend",
			Usage:       "device backend (auto, sim, cuda)",
			Value:       "auto",
			Destination: &backend,
		},
		&cli.Int64Flag{
			Name:        "sim-devices",
			Usage:       "device count for the sim backend (0 = gpus-per-node)",
			Destination: &simDevices,
		},
	}
}

func topologyFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "world-size",
			Aliases:     []string{"world"},
			Usage:       "total ranks in the topology",
			Value:       1,
			Destination: &worldSize,
		},
		&cli.Int64Flag{
			Name:        "gpus-per-node",
			Aliases:     []string{"gpn"},
			Usage:       "devices per node, used for rank-to-device placement",
			Value:       1,
			Destination: &gpusPerNode,
		},
		&cli.Int64Flag{
			Name:        "tp-size",
			Aliases:     []string{"tp"},
			Usage:       "tensor parallel size (0 = world size)",
			Destination: &tpSize,
		},
		&cli.Int64Flag{
			Name:        "pp-size",
			Aliases:     []string{"pp"},
			Usage:       "pipeline parallel size (0 = 1)",
			Destination: &ppSize,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func buildLogger() (logger.Logger, error) {
	level := logLevel
	if debug {
		level = "debug"
	}
	return logger.Setup(os.Stderr, logFormat, level)
}
