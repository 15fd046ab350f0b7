package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/trellisml/trellis/internal/api"
	"github.com/trellisml/trellis/internal/logger"
	"github.com/trellisml/trellis/pkg/device"
	"github.com/trellisml/trellis/pkg/device/cuda"
	"github.com/trellisml/trellis/pkg/device/sim"
	"github.com/trellisml/trellis/pkg/engine"
	"github.com/trellisml/trellis/pkg/runtime"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
	)

	flags := append([]cli.Flag{}, commonEngineFlags()...)
	flags = append(flags, topologyFlags()...)
	flags = append(flags, loggingFlags()...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "listen address",
			Value:       "127.0.0.1:8080",
			Destination: &addr,
		},
		&cli.DurationFlag{
			Name:        "read-timeout",
			Usage:       "read header timeout",
			Value:       30 * time.Second,
			Destination: &readTimeout,
		},
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve one engine rank over HTTP",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := LoadConfig()
			applyEngineConfig(cmd, cfg)
			applyLoggingConfig(cmd, cfg)
			applyServeConfig(cmd, cfg, &addr)

			log, err := buildLogger()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			if engineDir == "" {
				return cli.Exit("error: --engine-dir is required", 1)
			}

			eng, err := engine.LoadFromFiles(engineDir, int(engineRank))
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load engine: %v", err), 1)
			}
			defer func() { _ = eng.Close() }()
			log.Info("engine loaded",
				"dir", engineDir,
				"rank", engineRank,
				"architecture", eng.Config.Pretrained.Architecture,
				"version", eng.Config.Version,
				"bytes", len(eng.Buffer()))

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

			server := api.NewServer(session, log)
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			log.Info("starting server",
				"address", addr,
				"device", int(session.Device()),
				"mode", session.Mode().String())
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(logger.WithContext(ctx, log), e)
		},
	}
}

// buildBinder assembles the device binder for the standalone worker. The
// worker always drives the sim fabric; the cuda package is a driver layer for
// embedding frameworks that bring their own runtime.
func buildBinder(log logger.Logger) (*device.Binder, error) {
	name, err := device.Normalize(backend)
	if err != nil {
		return nil, err
	}
	if name == device.CUDA {
		if !cuda.Available() {
			return nil, errors.New("binary built without cuda support (rebuild with -tags cuda)")
		}
		return nil, errors.New("cuda backend needs an embedding runtime; the standalone worker serves the sim fabric")
	}

	devices := int(simDevices)
	if devices <= 0 {
		devices = int(gpusPerNode)
	}
	fabric := sim.New(devices)
	mode := device.ModeFromEnv()
	log.Info("fabric ready", "backend", device.Sim, "devices", devices, "mode", mode.String())
	return device.NewBinder(mode, fabric.Runtime(), fabric.Driver(), log), nil
}
