package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"harmony/internal/config"
	"harmony/internal/merge"
	"harmony/internal/pipeline"
	"harmony/internal/report"
	"harmony/internal/runlock"
	"harmony/internal/store"
)

type runOptions struct {
	apply        bool
	dryRun       bool
	threshold    float64
	resume       bool
	restart      bool
	reportPrefix string
	jsonOutput   bool
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Scan the library and harmonize related records",
		Long: `Scan the library, relate records by author, narrator, series and universe,
and harmonize the fields they disagree on.

Without --apply the run only previews its changes. A pending run left by an
interruption is resumed; --restart discards it instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.apply && opts.dryRun {
				return fmt.Errorf("--apply and --dry-run are mutually exclusive")
			}
			if opts.resume && opts.restart {
				return fmt.Errorf("--resume and --restart are mutually exclusive")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			mode := merge.ModeDryRun
			if opts.apply || (!opts.dryRun && !cfg.Harmony.DryRun) {
				mode = merge.ModeApply
			}
			threshold := cfg.Harmony.ConfidenceThreshold
			if cmd.Flags().Changed("threshold") {
				if err := config.ValidateThreshold(opts.threshold); err != nil {
					return err
				}
				threshold = opts.threshold
			}
			return runHarmonize(cmd, ctx, cfg, mode, threshold, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.apply, "apply", false, "Write changes back to the library")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Preview changes without writing them (overrides harmony.dry_run = false)")
	cmd.Flags().Float64Var(&opts.threshold, "threshold", 0, "Minimum confidence for automatic merges (defaults to harmony.confidence_threshold)")
	cmd.Flags().BoolVar(&opts.resume, "resume", false, "Resume a pending run without asking")
	cmd.Flags().BoolVar(&opts.restart, "restart", false, "Discard a pending run and start over")
	cmd.Flags().StringVar(&opts.reportPrefix, "report-prefix", report.DefaultPrefix, "File name prefix for written reports")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print the completion report as JSON")
	return cmd
}

func runHarmonize(cmd *cobra.Command, ctx *commandContext, cfg *config.Config, mode merge.Mode, threshold float64, opts runOptions) error {
	logger, err := ctx.ensureLogger()
	if err != nil {
		return err
	}
	lock, err := runlock.Acquire(cfg.LockPath(), logger)
	if err != nil {
		return err
	}
	defer lock.Release()

	client, err := ctx.libraryClient()
	if err != nil {
		return err
	}

	return ctx.withStore(func(st *store.Store) error {
		out := cmd.OutOrStdout()
		coordOpts := []pipeline.Option{
			pipeline.WithLogger(logger),
			pipeline.WithForceRescan(cfg.Harmony.ForceRescan || opts.restart),
		}
		switch {
		case opts.resume:
			coordOpts = append(coordOpts, pipeline.WithResumeDecision(func(context.Context, pipeline.RunState) (bool, error) {
				return true, nil
			}))
		case isTerminal(cmd.InOrStdin()) && isTerminal(cmd.OutOrStdout()):
			coordOpts = append(coordOpts, pipeline.WithResumeDecision(promptResume(cmd.InOrStdin(), out)))
		}
		var bar *phaseBar
		if !opts.jsonOutput && isTerminal(cmd.ErrOrStderr()) {
			bar = newPhaseBar(cmd.ErrOrStderr())
			coordOpts = append(coordOpts, pipeline.WithProgress(bar.update))
		}

		coord := pipeline.New(st, client, coordOpts...)
		rep, runErr := coord.Run(cmd.Context(), mode, threshold)
		if bar != nil {
			bar.finish()
		}
		if rep == nil {
			return runErr
		}

		paths, writeErr := report.Write(cfg.Paths.OutputDir, opts.reportPrefix, rep, cfg.Report.Formats)
		if opts.jsonOutput {
			if err := writeJSON(cmd, rep); err != nil {
				return err
			}
		} else {
			fmt.Fprint(out, renderReport(rep))
			for _, path := range paths {
				fmt.Fprintf(out, "Report written to %s\n", path)
			}
			if runErr != nil {
				fmt.Fprintf(out, "Run %s stopped early; rerun `harmony run` to resume.\n", rep.RunID)
			}
		}
		if runErr != nil {
			return runErr
		}
		if writeErr != nil {
			return fmt.Errorf("write report: %w", writeErr)
		}
		return nil
	})
}

// promptResume asks on the terminal whether a pending run continues.
func promptResume(in io.Reader, out io.Writer) pipeline.ResumeFunc {
	return func(_ context.Context, pending pipeline.RunState) (bool, error) {
		fmt.Fprintf(out, "Found unfinished run %s (%s, phase %s, %s records scanned, updated %s).\n",
			shortID(pending.RunID), pending.Mode, pending.Phase,
			humanize.Comma(int64(len(pending.Scanned))), humanize.Time(pending.UpdatedAt))
		fmt.Fprint(out, "Resume it? [Y/n] ")
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && err != io.EOF {
			return false, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "", "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	}
}

// phaseBar renders one progress bar per phase.
type phaseBar struct {
	w     io.Writer
	phase pipeline.Phase
	bar   *progressbar.ProgressBar
}

func newPhaseBar(w io.Writer) *phaseBar {
	return &phaseBar{w: w}
}

func (p *phaseBar) update(progress pipeline.Progress) {
	if p.bar == nil || progress.Phase != p.phase {
		p.finish()
		p.phase = progress.Phase
		total := progress.Total
		if total <= 0 {
			total = -1
		}
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(p.w),
			progressbar.OptionSetDescription(string(progress.Phase)),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(30),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
	}
	_ = p.bar.Set(progress.Current)
}

func (p *phaseBar) finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
		p.bar = nil
	}
}
