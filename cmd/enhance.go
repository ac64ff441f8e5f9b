package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"voiceboost/pkg/models"
	"voiceboost/pkg/pipeline"
)

func newEnhanceCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "enhance <video>",
		Short: "Enhance the speech in one video file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return enhanceFile(ctx, a.orchestrator, args[0], output, cmd.ErrOrStderr(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output path (default: enhanced_<name> next to the input)")
	return cmd
}

// runner is the part of the orchestrator enhanceFile needs.
type runner interface {
	Preflight(upload *models.Upload) error
	Run(ctx context.Context, upload *models.Upload, report pipeline.ProgressFunc) (*models.Result, error)
}

func enhanceFile(ctx context.Context, r runner, input, output string, progressOut, out io.Writer) error {
	data, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	upload := &models.Upload{FileName: filepath.Base(input), Data: data}
	if err := r.Preflight(upload); err != nil {
		return fmt.Errorf("%s", pipeline.UserMessage(err))
	}

	if output == "" {
		output = filepath.Join(filepath.Dir(input), pipeline.OutputName(input))
	}

	report := progressReporter(progressOut)
	result, err := r.Run(ctx, upload, report)
	if err != nil {
		fmt.Fprintln(progressOut)
		return fmt.Errorf("%s", pipeline.UserMessage(err))
	}

	if err := os.WriteFile(output, result.Enhanced, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	fmt.Fprintf(out, "%s (%s)\n", output, result.Elapsed.Round(time.Millisecond))
	return nil
}

// progressReporter draws a bar on terminals and prints one line per step
// otherwise.
func progressReporter(w io.Writer) pipeline.ProgressFunc {
	if !isTerminal(w) {
		last := -1
		return func(state models.State, p models.Progress) {
			if p.Percent == last {
				return
			}
			last = p.Percent
			fmt.Fprintf(w, "%3d%% %s\n", p.Percent, p.Message)
		}
	}

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionSetPredictTime(false),
	)
	return func(state models.State, p models.Progress) {
		bar.Describe(p.Message)
		_ = bar.Set(p.Percent)
		if state == models.StatePresented {
			_ = bar.Finish()
			fmt.Fprintln(w)
		}
	}
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
