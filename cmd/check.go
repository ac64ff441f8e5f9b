package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

type checker interface {
	Available() error
}

type loader interface {
	Load() error
}

func newCheckCommand() *cobra.Command {
	var withModel bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report whether ffmpeg and the enhancement model are usable",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			var model loader
			if withModel {
				model = a.model
			}
			return runCheck(cmd.OutOrStdout(), a.transcoder, model)
		},
	}
	cmd.Flags().BoolVar(&withModel, "model", false, "Also start the enhancement model (slow)")
	return cmd
}

func runCheck(out io.Writer, transcoder checker, model loader) error {
	failed := false
	if err := transcoder.Available(); err != nil {
		fmt.Fprintf(out, "ffmpeg: FAIL (%v)\n", err)
		failed = true
	} else {
		fmt.Fprintln(out, "ffmpeg: ok")
	}

	if model != nil {
		if err := model.Load(); err != nil {
			fmt.Fprintf(out, "model:  FAIL (%v)\n", err)
			failed = true
		} else {
			fmt.Fprintln(out, "model:  ok")
		}
	}

	if failed {
		return fmt.Errorf("environment check failed")
	}
	return nil
}
