package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"arlayout/internal/config"
)

func main() {
	var (
		configPath string
		frames     int
		stdout     bool
	)
	flag.StringVar(&configPath, "config", "./arlayout.yaml", "Path to YAML config")
	flag.IntVar(&frames, "frames", 0, "Stop after this many frames (0 runs until interrupted)")
	flag.BoolVar(&stdout, "stdout", false, "Write each frame as a JSON line to stdout")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("config load failed")
	}
	lvl, _ := zerolog.ParseLevel(cfg.Log.Level)
	log = log.Level(lvl)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var out io.Writer
	if stdout {
		out = os.Stdout
	}
	rt, err := newLiveRuntime(ctx, cfg, out, log)
	if err != nil {
		log.Fatal().Err(err).Msg("runtime init failed")
	}
	defer rt.Close()

	log.Info().Str("config", configPath).Int("fps", cfg.Output.FPS).Str("dest", cfg.Output.Dest).Msg("arlayout starting")
	if err := rt.Run(ctx, frames); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("runtime stopped")
		return
	}
	log.Info().Msg("arlayout stopping")
}
