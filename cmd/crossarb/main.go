// Command crossarb runs the cross-broker arbitrage engine. It loads and
// validates the configuration, sets up logging and signal handling, and runs
// until interrupted or until a cycle fails fatally.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alanyoungcy/crossarb/internal/app"
	"github.com/alanyoungcy/crossarb/internal/config"
	"github.com/alanyoungcy/crossarb/internal/logging"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	flag.Parse()

	os.Exit(run(*configPath))
}

func run(configPath string) int {
	bootLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load(configPath)
	if err != nil {
		bootLogger.Error("failed to load config",
			slog.String("path", configPath),
			slog.String("error", err.Error()),
		)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		bootLogger.Error("invalid configuration", slog.String("error", err.Error()))
		return 1
	}

	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		bootLogger.Error("failed to open log file", slog.String("error", err.Error()))
		return 1
	}
	defer closeLog()
	slog.SetDefault(logger)

	logger.Info("crossarb starting",
		slog.String("config", configPath),
		slog.Any("settings", config.RedactedConfig(cfg)),
	)

	application := app.New(configPath, cfg, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = application.Run(ctx)
	if err == nil || errors.Is(err, context.Canceled) {
		logger.Info("crossarb stopped")
		return 0
	}

	logger.Error("engine stopped on fatal error", slog.String("error", err.Error()))
	fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
	if cfg.Engine.AckOnFatal {
		fmt.Fprintln(os.Stderr, "press enter to exit")
		_, _ = bufio.NewReader(os.Stdin).ReadString('\n')
	}
	return 1
}
