package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	enqueueUser     string
	enqueuePriority int
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <file>...",
	Short: "Store activity files and queue them for import",
	Long: `Store one or more FIT, GPX, TCX or ZIP files in the blob store and queue
an import job for each. The decoder is chosen from the file extension.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := uuid.Parse(enqueueUser)
		if err != nil {
			return fmt.Errorf("invalid --user: %w", err)
		}

		for _, p := range args {
			data, err := os.ReadFile(p)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", p, err)
			}

			file, job, err := importW.EnqueueWithPriority(cmd.Context(), userID, filepath.Base(p), data, enqueuePriority)
			if err != nil {
				return fmt.Errorf("failed to enqueue %s: %w", p, err)
			}

			color.Green("✓ Queued %s", filepath.Base(p))
			faint := color.New(color.Faint)
			fmt.Printf("  job  %s\n  file %s\n", job.ID, faint.Sprint(file.ID))
		}
		return nil
	},
}

func init() {
	enqueueCmd.Flags().StringVarP(&enqueueUser, "user", "u", "", "owner user id (uuid)")
	enqueueCmd.Flags().IntVarP(&enqueuePriority, "priority", "p", 0, "claim priority, higher runs first")
	enqueueCmd.MarkFlagRequired("user")
}
