package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"workout-import/internal/database"
)

var showWorkout bool

var showCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Print an import job as JSON",
	Long: `Print an import job row, including its output or error, as JSON.
With --workout, the workout it produced is printed as well.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid job id: %w", err)
		}

		job, err := db.GetImportJob(id)
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("job %s not found", id)
		}
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(job); err != nil {
			return err
		}

		if !showWorkout || job.WorkoutID == nil {
			return nil
		}
		workout, err := db.GetWorkout(*job.WorkoutID)
		if err != nil {
			return fmt.Errorf("failed to get workout: %w", err)
		}
		return enc.Encode(workout)
	},
}

func init() {
	showCmd.Flags().BoolVarP(&showWorkout, "workout", "w", false, "also print the resulting workout")
}
