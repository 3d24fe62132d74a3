// Command brancard is the terminal client for the hospital transport
// backend: realtime notifications, chat and typing indicators.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/nhle/brancard/internal/app"
	"github.com/nhle/brancard/internal/client"
	"github.com/nhle/brancard/internal/credential"
	"github.com/nhle/brancard/internal/model"
	"github.com/nhle/brancard/internal/ui/tray"
)

var (
	configPath = flag.String("config", model.DefaultConfigPath(), "config file path")
	debug      = flag.Bool("debug", false, "log at debug level")
	initConfig = flag.Bool("init", false, "write the effective configuration to -config and exit")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "brancard:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if *initConfig {
		if err := model.SaveConfig(*configPath, cfg); err != nil {
			return err
		}
		fmt.Println("configuration written to", *configPath)
		return nil
	}

	logFile, err := openLog(cfg.Storage.LogPath)
	if err != nil {
		return err
	}
	defer logFile.Close()

	// stdout belongs to the UI.
	logger := zerolog.New(logFile).With().Timestamp().Logger().Level(zerolog.InfoLevel)
	if *debug {
		logger = logger.Level(zerolog.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	creds, err := credential.Open(model.ConfigDir())
	if err != nil {
		return fmt.Errorf("opening credential store: %w", err)
	}

	tr := tray.New(tray.DefaultBuffer, logger)
	c, err := client.New(client.Options{
		Config:      cfg,
		Credentials: creds,
		Notifier:    tr,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	logger.Info().Str("api", cfg.API.BaseURL).Str("platform", cfg.Platform).Msg("starting")

	p := tea.NewProgram(
		app.New(ctx, c, tr, logger),
		tea.WithAltScreen(),
		tea.WithReportFocus(),
		tea.WithContext(ctx),
	)
	final, runErr := p.Run()

	stop()
	if err := c.Close(); err != nil {
		logger.Warn().Err(err).Msg("closing client")
	}

	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return runErr
	}
	if m, ok := final.(app.Model); ok && m.Err() != nil {
		return m.Err()
	}
	logger.Info().Msg("stopped")
	return nil
}

func openLog(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, nil
}
