package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"workout-import/internal/blobstore"
	"workout-import/internal/config"
	"workout-import/internal/database"
	"workout-import/internal/worker"
)

var (
	cfg     *config.Config
	db      *database.DB
	blobs   blobstore.Store
	importW *worker.Worker
)

var rootCmd = &cobra.Command{
	Use:   "cli",
	Short: "Operate the workout import queue",
	Long: `Operator tool for the workout import queue.

It talks to the same SQLite database and blob store as the service, so it
can queue files, run an invocation by hand and inspect jobs.

EXAMPLES:

  cli enqueue --user 0b7c... morning.fit   # Store a file and queue an import
  cli run                                  # Claim and process one batch
  cli status                               # Job counts per status
  cli status --list failed                 # Show failed jobs with their errors
  cli show 3f2a...                         # Print a job row as JSON
  cli reap                                 # Release jobs with stale locks`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.LoadCLI()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		db, err = database.Open(cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}

		blobs, err = blobstore.Open(cfg.BlobBackend, cfg.BlobRoot)
		if err != nil {
			return fmt.Errorf("failed to open blob store: %w", err)
		}

		importW = worker.NewWorker(db, blobs, cfg)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if blobs != nil {
			blobs.Close()
		}
		if db != nil {
			return db.Close()
		}
		return nil
	},
}

func main() {
	// Only errors reach the terminal; command output goes to stdout.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	})))

	rootCmd.AddCommand(enqueueCmd, runCmd, statusCmd, showCmd, reapCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
