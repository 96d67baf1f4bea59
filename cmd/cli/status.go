package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"workout-import/internal/models"
)

var (
	statusList  string
	statusLimit int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show import queue counts",
	Long: `Show how many import jobs are in each status and how many are claimable
right now. With --list, print the most recent jobs in one status
("all" for every status).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		counts, err := db.CountImportJobsByStatus()
		if err != nil {
			return err
		}
		ready, err := db.GetReadyImportJobCount()
		if err != nil {
			return err
		}

		for _, s := range []models.JobStatus{
			models.JobStatusQueued,
			models.JobStatusRunning,
			models.JobStatusRetryWait,
			models.JobStatusSucceeded,
			models.JobStatusFailed,
		} {
			fmt.Printf("%s %d\n", statusColor(s).Sprint(padRight(string(s), 12)), counts[string(s)])
		}
		fmt.Printf("%s %d\n", padRight("ready", 12), ready)

		if statusList == "" {
			return nil
		}

		filter := models.JobStatus(statusList)
		if statusList == "all" {
			filter = ""
		}
		jobs, err := db.ListImportJobs(filter, statusLimit)
		if err != nil {
			return err
		}

		fmt.Println()
		if len(jobs) == 0 {
			fmt.Println("No jobs found.")
			return nil
		}

		faint := color.New(color.Faint)
		for _, j := range jobs {
			errMsg := ""
			if j.ErrorMessage != nil {
				errMsg = faint.Sprintf(" (%s)", truncate(*j.ErrorMessage, 60))
			}
			fmt.Printf("%s %s %s %d/%d%s\n",
				faint.Sprint(j.ID.String()[:8]),
				faint.Sprint(j.UpdatedAt.Format("2006-01-02 15:04")),
				statusColor(j.Status).Sprint(padRight(string(j.Status), 12)),
				j.Attempt,
				j.MaxAttempts,
				errMsg)
		}
		return nil
	},
}

func statusColor(s models.JobStatus) *color.Color {
	switch s {
	case models.JobStatusSucceeded:
		return color.New(color.FgGreen)
	case models.JobStatusFailed:
		return color.New(color.FgRed)
	case models.JobStatusRetryWait:
		return color.New(color.FgYellow)
	case models.JobStatusRunning:
		return color.New(color.FgCyan)
	default:
		return color.New(color.Reset)
	}
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

func padRight(s string, length int) string {
	if len(s) >= length {
		return s
	}
	return s + strings.Repeat(" ", length-len(s))
}

func init() {
	statusCmd.Flags().StringVarP(&statusList, "list", "l", "", "list jobs in this status (or \"all\")")
	statusCmd.Flags().IntVarP(&statusLimit, "limit", "n", 20, "maximum jobs to list")
}
