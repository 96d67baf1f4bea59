package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"workout-import/internal/models"
)

var reapOlderThan time.Duration

var reapCmd = &cobra.Command{
	Use:   "reap",
	Short: "Release running jobs whose lock has gone stale",
	Long: `Move running jobs locked longer than --older-than (default STALE_LOCK_TIMEOUT)
back to retry_wait, or to failed when they have no attempts left.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		olderThan := cfg.StaleLockTimeout
		if reapOlderThan > 0 {
			olderThan = reapOlderThan
		}

		reaped, err := db.ReapStaleImportJobs(olderThan)
		if err != nil {
			return err
		}

		if len(reaped) == 0 {
			fmt.Println("No stale jobs.")
			return nil
		}
		for _, r := range reaped {
			if r.Status == models.JobStatusFailed {
				color.Red("✗ %s failed (no attempts left)", r.ID)
			} else {
				color.Yellow("↻ %s released for retry", r.ID)
			}
		}
		return nil
	},
}

func init() {
	reapCmd.Flags().DurationVar(&reapOlderThan, "older-than", 0, "lock age threshold (default STALE_LOCK_TIMEOUT)")
}
