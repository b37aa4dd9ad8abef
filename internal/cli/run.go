package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ledgerline/inappkit/internal/bus"
	"github.com/ledgerline/inappkit/internal/config"
	"github.com/ledgerline/inappkit/internal/engine"
	"github.com/ledgerline/inappkit/internal/history"
	"github.com/ledgerline/inappkit/internal/store"
)

// NewRunCommand creates the run command: the long-lived engine process.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the personalization engine until interrupted",
		Long: `Load configuration, restore the durable proposition cache, and run the
engine's event loop until SIGINT/SIGTERM.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(rootOpts, configPath, cmd)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to config file (optional)")
	return cmd
}

func runEngine(opts *RootOptions, configPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	cfg, err := config.Load(configPath)
	if err != nil {
		formatter.Error("E001", fmt.Sprintf("configuration: %v", err), nil)
		return NewExitError(ExitCommandError, "bad configuration")
	}

	level, _ := config.ParseLevel(cfg.LogLevel)
	log := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	cacheStore, err := store.Open(cfg.CachePath)
	if err != nil {
		formatter.Error("E002", fmt.Sprintf("proposition cache: %v", err), nil)
		return NewExitError(ExitCommandError, "cache not openable")
	}
	defer cacheStore.Close()

	historyStore, err := history.Open(cfg.HistoryPath)
	if err != nil {
		formatter.Error("E002", fmt.Sprintf("event history: %v", err), nil)
		return NewExitError(ExitCommandError, "history not openable")
	}
	defer historyStore.Close()

	dispatcher := bus.NewMemory()
	e := engine.New(
		store.NewPropositionCache(cacheStore),
		historyStore,
		dispatcher,
		cfg.AppID,
		engine.WithLogger(log),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := e.Bootstrap(ctx); err != nil {
		log.Warn("cache restore failed, starting empty", "error", err)
	}

	if err := e.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "engine stopped", err)
	}
	return nil
}
