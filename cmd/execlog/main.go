package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mpataki/execlog/internal/config"
	"github.com/mpataki/execlog/internal/logging"
	"github.com/mpataki/execlog/internal/runner"
	"github.com/mpataki/execlog/internal/storage"
	"github.com/mpataki/execlog/internal/tui"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "execlog",
		Short: "Execution command recorder",
		Long:  "Execlog runs commands, tracks them through their lifecycle and keeps a diagnostic record of each run.",
		RunE:  runTUI,
	}

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newShowCommand())
	rootCmd.AddCommand(newListCommand())
	rootCmd.AddCommand(newKillCommand())
	rootCmd.AddCommand(newDeleteCommand())
	rootCmd.AddCommand(newScriptCommand())
	rootCmd.AddCommand(newDefsCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds everything a subcommand needs once configuration is loaded.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   *storage.Storage
	runner  *runner.Runner
	restore func()
}

func openApp() (*app, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	store, err := storage.New(cfg.DBPath)
	if err != nil {
		logger.Sync()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	r := runner.New(store, cfg.WorkspacesDir(),
		runner.WithShell(cfg.Shell),
		runner.WithTimeout(cfg.Timeout),
		runner.WithLogger(logger),
	)

	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		runner:  r,
		restore: logging.Install(logger),
	}, nil
}

func (a *app) Close() {
	a.store.Close()
	a.restore()
	a.logger.Sync()
}

func runTUI(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	p := tea.NewProgram(tui.NewApp(a.runner), tea.WithAltScreen())

	_, err = p.Run()
	return err
}
