package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/Dheerajkumar69/posture-detection/internal/store"
	"github.com/Dheerajkumar69/posture-detection/internal/utils"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored analysis sessions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runList(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(ctx context.Context) error {
	db, err := requireDB(ctx)
	if err != nil {
		return err
	}
	sessions, err := db.ListSessions(ctx)
	if err != nil {
		utils.ShowError("Failed to list sessions", err, nil)
		return err
	}

	if len(sessions) == 0 {
		fmt.Println("No sessions found in database.")
		return nil
	}
	printSessions(sessions)
	return nil
}

func printSessions(sessions []store.SessionSummary) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tMODE\tFRAMES\tGOOD\tBAD\tTOP ISSUE\tANALYZED")
	fmt.Fprintln(w, "--\t----\t------\t----\t---\t---------\t--------")

	for _, s := range sessions {
		top := "-"
		if len(s.CommonIssues) > 0 {
			top = s.CommonIssues[0]
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n", s.ID, s.Mode, s.TotalFrames, s.GoodFrames, s.BadFrames,
			top, s.AnalyzedAt.Local().Format("2006-01-02 15:04"))
	}
	w.Flush()
}
