package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var runReap bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Claim and process one batch of import jobs",
	Long: `Run a single worker invocation: claim up to BATCH_SIZE jobs and process
them one after another, exactly as the service does on each poll.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if runReap {
			importW.Reap()
		}

		result, err := importW.RunOnce(cmd.Context())
		if err != nil {
			return err
		}

		if result.Processed == 0 {
			fmt.Println("No jobs ready.")
			return nil
		}

		for _, id := range result.Succeeded {
			color.Green("✓ %s", id)
		}
		for _, id := range result.Failed {
			job, err := db.GetImportJob(id)
			if err != nil || job.ErrorMessage == nil {
				color.Red("✗ %s", id)
				continue
			}
			color.Red("✗ %s %s: %s", id, job.Status, *job.ErrorMessage)
		}
		fmt.Printf("\nProcessed %d job(s): %d succeeded, %d failed\n",
			result.Processed, len(result.Succeeded), len(result.Failed))
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&runReap, "reap", false, "release stale locks before claiming")
}
