package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Dheerajkumar69/posture-detection/internal/pipeline"
	"github.com/Dheerajkumar69/posture-detection/internal/posture"
	"github.com/Dheerajkumar69/posture-detection/internal/store"
	"github.com/Dheerajkumar69/posture-detection/internal/utils"
	"github.com/Dheerajkumar69/posture-detection/internal/video"
	"github.com/Dheerajkumar69/posture-detection/internal/worker"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// AnalyzeOptions holds the flags of the analyze command.
type AnalyzeOptions struct {
	InputPath  string
	Mode       string
	NumEngines int
	OutputPath string
	Save       bool
}

var analyzeOpts AnalyzeOptions

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze a local video and print the posture report as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAnalyze(cmd.Context(), analyzeOpts)
	},
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeOpts.InputPath, "input", "i", "", "Path to video")
	analyzeCmd.Flags().StringVarP(&analyzeOpts.Mode, "mode", "m", "squat", "Analysis mode: squat or desk")
	analyzeCmd.Flags().IntVarP(&analyzeOpts.NumEngines, "engines", "e", 0, "Number of parallel pose engines (default: detector.engines)")
	analyzeCmd.Flags().StringVarP(&analyzeOpts.OutputPath, "output", "o", "", "Write the JSON report to this file instead of stdout")
	analyzeCmd.Flags().BoolVar(&analyzeOpts.Save, "save", false, "Store the session in the database")

	analyzeCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(analyzeCmd)
}

// validateAnalyzeFlags checks the options and resolves the mode.
func validateAnalyzeFlags(opts *AnalyzeOptions) (posture.Mode, error) {
	info, err := os.Stat(opts.InputPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("input file does not exist: %w", err)
		}
		return 0, fmt.Errorf("unable to access input file: %w", err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("input path %s is a directory, expected a video file", opts.InputPath)
	}
	mode, err := posture.ParseMode(strings.ToLower(opts.Mode))
	if err != nil {
		return 0, err
	}
	if opts.NumEngines < 0 {
		return 0, fmt.Errorf("invalid engine count: must be >= 1, got %d", opts.NumEngines)
	}
	if opts.NumEngines == 0 {
		opts.NumEngines = 1
	}
	return mode, nil
}

// runAnalyze orchestrates a local analysis: engine pool, ffmpeg stream, progress and output.
func runAnalyze(ctx context.Context, opts AnalyzeOptions) error {
	if opts.NumEngines == 0 {
		opts.NumEngines = Cfg.Detector.Engines
	}
	mode, err := validateAnalyzeFlags(&opts)
	if err != nil {
		return err
	}

	// Connect before the long part so a bad URL fails fast.
	var db *store.Store
	if opts.Save {
		if db, err = requireDB(ctx); err != nil {
			return err
		}
	}

	src, err := video.Open(ctx, opts.InputPath)
	if err != nil {
		utils.ShowError("Failed to open video", err, nil)
		return err
	}
	defer src.Close()

	fmt.Fprintf(os.Stderr, "📼 Analyzing %s (%s mode, %.2f fps)\n", filepath.Base(opts.InputPath), mode, src.FPS())
	fmt.Fprintf(os.Stderr, "⚙️  Spawning %d pose engines...\n", opts.NumEngines)

	pool, err := worker.NewPool(ctx, opts.NumEngines, detectorConfig(Cfg))
	if err != nil {
		utils.ShowError("Worker startup failed", err, nil)
		return err
	}
	defer pool.Close()

	totalFrames := src.Info().TotalFrames
	if totalFrames <= 0 {
		totalFrames = -1 // spinner when ffprobe does not know the frame count
	}
	bar := progressbar.NewOptions(totalFrames,
		progressbar.OptionSetDescription("🧍 Scoring frames"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)

	report, err := pipeline.Run(ctx, src, pool, mode, pipeline.Options{
		Engines: pool.Size(),
		OnFrame: func(posture.FrameResult) { bar.Add(1) },
	})
	bar.Finish()
	if err != nil {
		utils.ShowError("Analysis failed", err, nil)
		return err
	}

	if err := writeReport(opts.OutputPath, report); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "\n🏁 Analysis Complete.\n%s", describe(report.Summary))

	if db != nil {
		hash, err := utils.HashFile(opts.InputPath)
		if err != nil {
			return fmt.Errorf("failed to hash input: %w", err)
		}
		sess := store.Session{ID: utils.SessionID(hash, mode.String()), Mode: mode, Source: opts.InputPath}
		if err := db.SaveReport(ctx, sess, report); err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}
		fmt.Fprintf(os.Stderr, "💾 Saved session %s\n", sess.ID)
	}
	return nil
}

func writeReport(path string, report posture.Report) error {
	var out io.Writer = os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// describe renders a short human readable summary.
func describe(s posture.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "   Frames: %d (good %d, bad %d)\n", s.TotalFrames, s.GoodFrames, s.BadFrames)
	if len(s.CommonIssues) > 0 {
		fmt.Fprintf(&b, "   Common issues: %s\n", strings.Join(s.CommonIssues, ", "))
	}
	for _, rec := range s.Recommendations {
		fmt.Fprintf(&b, "   • %s\n", rec)
	}
	return b.String()
}
