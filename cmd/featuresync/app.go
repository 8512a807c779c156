package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/featuresync/internal/config"
	"github.com/JonMunkholm/featuresync/internal/core"
	"github.com/JonMunkholm/featuresync/internal/logging"
	"github.com/JonMunkholm/featuresync/internal/store"
)

// App holds the state shared by every subcommand.
type App struct {
	out    io.Writer
	errOut io.Writer

	envFile  string
	logLevel string
	driver   string
	seeds    []string

	cfg        *config.Config
	service    *core.Service
	closeStore func()
}

// Execute builds the command tree and runs it with args.
func (a *App) Execute(ctx context.Context, args []string) error {
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(a.out)
	root.SetErr(a.errOut)
	defer a.close()
	return root.ExecuteContext(ctx)
}

func (a *App) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "featuresync",
		Short: "Reconcile CSV edits against authoritative dataset records",
		Long: `featuresync compares a CSV export of a dataset against the records held
in the store, submits the editable fields that changed, and exports the
current records as CSV.`,
		PersistentPreRunE: a.setup,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides LOG_LEVEL)")
	flags.StringVar(&a.driver, "store", "", "record store: postgres or memory (overrides STORE_DRIVER)")
	flags.StringSliceVar(&a.seeds, "seed", nil, "dataset=path CSV loaded into the memory store (repeatable)")

	root.AddCommand(
		a.datasetsCommand(),
		a.reconcileCommand(),
		a.exportCommand(),
		a.runsCommand(),
	)
	return root
}

// setup loads configuration and configures logging. Flag overrides are
// applied to the environment first so they go through the same validation.
// The store is opened lazily by commands that need it.
func (a *App) setup(cmd *cobra.Command, _ []string) error {
	if err := config.LoadEnvFile(a.envFile); err != nil {
		return err
	}

	overrides := map[string]string{
		"LOG_LEVEL":    a.logLevel,
		"STORE_DRIVER": a.driver,
	}
	if len(a.seeds) > 0 {
		overrides["MEMORY_SEED_FILES"] = strings.Join(a.seeds, ",")
	}
	for k, v := range overrides {
		if v == "" {
			continue
		}
		if err := os.Setenv(k, v); err != nil {
			return err
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg

	// Logs go to stderr so stdout stays clean for CSV and JSON output.
	logging.SetupWriter(a.errOut, cfg.Logging.Level, cfg.Logging.Format)
	return nil
}

// openService connects to the configured store and builds the service.
func (a *App) openService(ctx context.Context) (*core.Service, error) {
	if a.service != nil {
		return a.service, nil
	}
	backend, closeStore, err := store.Open(ctx, a.cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.closeStore = closeStore
	a.service = core.NewService(backend, a.cfg.Reconcile, core.WithRunRecorder(backend))
	return a.service, nil
}

func (a *App) close() {
	if a.closeStore != nil {
		a.closeStore()
	}
}
