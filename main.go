package main

import (
	"flag"
	"os"

	"github.com/rs/zerolog"

	"tkremote/internal/config"
	"tkremote/internal/server"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	log.Info().Str("version", version).
		Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).
		Int("interval_seconds", cfg.Worker.IntervalSeconds).
		Msg("tkremote starting")

	if err := server.Start(cfg, version, log); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}
