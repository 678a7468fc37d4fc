package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/openfroyo/crate/pkg/config"
	"github.com/openfroyo/crate/pkg/stores"
	"github.com/openfroyo/crate/pkg/telemetry"
)

// DefaultHistoryPath is where run history is kept, relative to the project.
const DefaultHistoryPath = ".crate/history.db"

var (
	// Global flags
	configPath  string
	historyPath string
	verbose     bool
	jsonOutput  bool
	variables   map[string]string
)

// ExitError carries the process exit code of a command that ran but did
// not succeed, such as a task container exiting non-zero.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "crate",
		Short: "crate - isolated container task runner",
		Long: `crate runs development tasks in containers.

Each task runs in its own network, alongside the containers it depends on:
  - Images are pulled or built as needed
  - Dependencies are started and waited on until healthy
  - The task container runs and its exit code becomes crate's
  - Everything is cleaned up afterwards, even when interrupted`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultFileName, "project file path")
	rootCmd.PersistentFlags().StringVar(&historyPath, "history", "", "run history database (default <project>/"+DefaultHistoryPath+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringToStringVar(&variables, "var", nil, "config variable (name=value)")

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newTasksCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newEventsCommand())
	rootCmd.AddCommand(newVersionCommand(version, commit, buildDate))

	return rootCmd
}

// loadOptions builds project load options from the global flags.
func loadOptions() config.LoadOptions {
	return config.LoadOptions{Variables: variables}
}

// loadProject loads and checks the project file named by --config.
func loadProject(ctx context.Context) (*config.Project, error) {
	project, err := config.NewLoader().Load(ctx, configPath, loadOptions())
	if err != nil {
		return nil, err
	}
	return project, nil
}

// newLogger creates the diagnostics logger. Diagnostics go to stderr so
// that task output on stdout stays clean.
func newLogger(cfg *telemetry.Config) (*telemetry.Logger, error) {
	if verbose {
		cfg.Logging.Level = "debug"
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	} else {
		cfg.Logging.Level = "warn"
	}
	return telemetry.NewLogger(cfg.Logging)
}

// resolveHistoryPath returns the history database for a project directory.
func resolveHistoryPath(projectDir string) string {
	if historyPath != "" {
		return historyPath
	}
	return filepath.Join(projectDir, DefaultHistoryPath)
}

// openHistory opens and migrates the run history database.
func openHistory(ctx context.Context, path string) (*stores.SQLiteStore, error) {
	if path != stores.MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// historyForCurrentProject opens the history of the project named by
// --config without requiring the project file to be valid.
func historyForCurrentProject(ctx context.Context) (*stores.SQLiteStore, error) {
	path := historyPath
	if path == "" {
		abs, err := filepath.Abs(configPath)
		if err != nil {
			return nil, err
		}
		path = filepath.Join(filepath.Dir(abs), DefaultHistoryPath)
	}
	return openHistory(ctx, path)
}
