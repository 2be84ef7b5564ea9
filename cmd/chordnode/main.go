package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/zde37/chordring/internal/config"
	"github.com/zde37/chordring/pkg"
)

var Build = "head"

func main() {
	if err := newCLI().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "chordnode: %v\n", err)
		os.Exit(1)
	}
}

func newCLI() *cli.App {
	return &cli.App{
		Name:            "chordnode",
		Usage:           "run a member of a Chord ring",
		Version:         Build,
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "YAML configuration file", EnvVars: []string{"CHORD_CONFIG"}},
			&cli.StringFlag{Name: "host", Usage: "IP address to bind to", EnvVars: []string{"CHORD_HOST"}},
			&cli.IntFlag{Name: "port", Usage: "port of the peer gRPC service, 0 picks one", EnvVars: []string{"CHORD_PORT"}},
			&cli.IntFlag{Name: "http-port", Usage: "port of the HTTP admin API, 0 disables it", EnvVars: []string{"CHORD_HTTP_PORT"}},
			&cli.StringFlag{Name: "bootstrap", Usage: "host:port of a ring member to join through", EnvVars: []string{"CHORD_BOOTSTRAP"}},
			&cli.UintFlag{Name: "join-attempts", Usage: "how often to try the bootstrap peer", EnvVars: []string{"CHORD_JOIN_ATTEMPTS"}},
			&cli.StringFlag{Name: "node-id", Usage: "explicit identifier instead of the address hash", EnvVars: []string{"CHORD_NODE_ID"}},
			&cli.IntFlag{Name: "m", Usage: "identifier bits", EnvVars: []string{"CHORD_M"}},
			&cli.IntFlag{Name: "successor-list-size", Usage: "successor list length r", EnvVars: []string{"CHORD_SUCCESSOR_LIST_SIZE"}},
			&cli.StringFlag{Name: "log-level", Usage: "trace, debug, info, warn, error", EnvVars: []string{"CHORD_LOG_LEVEL"}},
			&cli.StringFlag{Name: "log-format", Usage: "json, console", EnvVars: []string{"CHORD_LOG_FORMAT"}},
			&cli.StringFlag{Name: "log-file", Usage: "also write rotated logs to this file", EnvVars: []string{"CHORD_LOG_FILE"}},
		},
		Action: run,
	}
}

// loadConfig layers defaults, the config file and explicitly set flags.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if c.IsSet("host") {
		cfg.Host = c.String("host")
	}
	if c.IsSet("port") {
		cfg.Port = c.Int("port")
	}
	if c.IsSet("http-port") {
		cfg.HTTPPort = c.Int("http-port")
	}
	if c.IsSet("bootstrap") {
		cfg.Bootstrap = c.String("bootstrap")
	}
	if c.IsSet("join-attempts") {
		cfg.JoinAttempts = c.Uint("join-attempts")
	}
	if c.IsSet("node-id") {
		cfg.NodeID = c.String("node-id")
	}
	if c.IsSet("m") {
		cfg.M = c.Int("m")
	}
	if c.IsSet("successor-list-size") {
		cfg.SuccessorListSize = c.Int("successor-list-size")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.LogFormat = c.String("log-format")
	}
	if c.IsSet("log-file") {
		cfg.LogFile = c.String("log-file")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*pkg.Logger, error) {
	loggerConfig := pkg.DefaultConfig()
	loggerConfig.Level = cfg.LogLevel
	loggerConfig.Format = cfg.LogFormat
	if cfg.LogFile != "" {
		loggerConfig.File.Enable = true
		loggerConfig.File.Path = cfg.LogFile
	}
	return pkg.New(loggerConfig)
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Close()

	app := newApp(cfg, logger)

	startCtx, cancel := context.WithTimeout(c.Context, app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to start node")
		return err
	}

	sig := <-app.Wait()
	logger.Info().
		Str("signal", sig.String()).
		Msg("Received shutdown signal")

	stopCtx, cancel := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancel()
	if err := app.Stop(stopCtx); err != nil {
		logger.Error().Err(err).Msg("Error during shutdown")
		return err
	}

	logger.Info().Msg("Chord node shutdown complete")
	return nil
}
