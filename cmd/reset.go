package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Dheerajkumar69/posture-detection/internal/config"
	"github.com/spf13/cobra"
)

// ResetOptions holds the flags of the reset command.
type ResetOptions struct {
	DB         bool
	Archive    bool
	Yes        bool
	DBExplicit bool // --db was passed, so a missing database is an error
}

var resetOpts ResetOptions

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset stored state (database sessions, archived uploads)",
	Long:  "Clears all data. By default, it resets everything. Use flags to clear specific components.",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := resetOpts
		opts.DBExplicit = cmd.Flags().Changed("db")
		return runReset(cmd.Context(), opts, os.Stdin, os.Stdout)
	},
}

func runReset(ctx context.Context, opts ResetOptions, in io.Reader, out io.Writer) error {
	// If no flags are set, default to clearing EVERYTHING
	if !opts.DB && !opts.Archive {
		opts.DB = true
		opts.Archive = true
	}

	reader := bufio.NewReader(in)

	if opts.DB && (opts.DBExplicit || Cfg.Database.URL != "") {
		if Cfg.Database.URL == "" {
			return errNoDatabase
		}
		if opts.Yes || confirm(reader, out, "⚠️  Are you sure you want to DROP all session tables?") {
			db, err := requireDB(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "🗑️  Clearing Database...")
			if err := db.Reset(ctx); err != nil {
				return fmt.Errorf("failed to reset database: %w", err)
			}
		}
	}

	if opts.Archive && Cfg.Storage.Type == config.StorageLocal {
		if opts.Yes || confirm(reader, out, "⚠️  Are you sure you want to delete all archived uploads?") {
			fmt.Fprintf(out, "🗑️  Clearing %s...\n", Cfg.Storage.LocalPath)
			removeDir(Cfg.Storage.LocalPath)
		}
	}

	fmt.Fprintln(out, "✨ Reset Complete.")
	return nil
}

func init() {
	resetCmd.Flags().BoolVar(&resetOpts.DB, "db", false, "Drop stored sessions")
	resetCmd.Flags().BoolVar(&resetOpts.Archive, "archive", false, "Delete archived uploads (local storage only)")
	resetCmd.Flags().BoolVarP(&resetOpts.Yes, "yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(resetCmd)
}

func confirm(r *bufio.Reader, w io.Writer, prompt string) bool {
	fmt.Fprintf(w, "%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

func removeDir(path string) {
	if err := os.RemoveAll(path); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", path, err)
	}
}
