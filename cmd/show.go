package cmd

import (
	"errors"
	"fmt"

	"github.com/Dheerajkumar69/posture-detection/internal/store"
	"github.com/spf13/cobra"
)

var showOutput string

var showCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print the stored report of a session as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := requireDB(cmd.Context())
		if err != nil {
			return err
		}
		report, err := db.LoadReport(cmd.Context(), args[0])
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("no session %q (see `posture list`)", args[0])
		}
		if err != nil {
			return err
		}
		return writeReport(showOutput, report)
	},
}

func init() {
	showCmd.Flags().StringVarP(&showOutput, "output", "o", "", "Write the JSON report to this file instead of stdout")
	rootCmd.AddCommand(showCmd)
}
