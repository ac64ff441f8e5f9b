package main

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"voiceboost/pkg/config"
	"voiceboost/pkg/enhance"
	"voiceboost/pkg/logging"
	"voiceboost/pkg/media"
	"voiceboost/pkg/metrics"
	"voiceboost/pkg/pipeline"
)

func newRootCommand() *cobra.Command {
	var configFlag string

	rootCmd := &cobra.Command{
		Use:           "voiceboost",
		Short:         "Speech enhancement for video files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configFlag != "" {
				return os.Setenv("VOICEBOOST_CONFIG", configFlag)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newEnhanceCommand())
	rootCmd.AddCommand(newCheckCommand())

	return rootCmd
}

// app holds the components every command shares.
type app struct {
	cfg          *config.Config
	logger       *zap.Logger
	registry     *prometheus.Registry
	metrics      *metrics.Metrics
	transcoder   *media.Transcoder
	model        *enhance.Handle
	orchestrator *pipeline.Orchestrator
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	transcoder := media.NewTranscoder(cfg.Transcoder.Binary, logger.Named("ffmpeg"))
	model := enhance.NewHandle(enhance.NewVoiceFixer(enhance.ProcessConfig{
		Python: cfg.Model.Python,
		Script: cfg.Model.Script,
		Logger: logger.Named("voicefixer"),
	}), enhance.Options{Mode: cfg.Model.Mode, CUDA: cfg.Model.UseCUDA})

	orchestrator := pipeline.NewOrchestrator(pipeline.Options{
		MaxUploadBytes: cfg.Pipeline.MaxUploadBytes,
		SampleRate:     cfg.Pipeline.SampleRate,
		EnhanceTimeout: cfg.Pipeline.EnhanceTimeout.Duration,
		WorkspaceRoot:  cfg.Pipeline.WorkspaceRoot,
	}, transcoder, model, m, logger.Named("pipeline"))

	return &app{
		cfg:          cfg,
		logger:       logger,
		registry:     registry,
		metrics:      m,
		transcoder:   transcoder,
		model:        model,
		orchestrator: orchestrator,
	}, nil
}

func (a *app) close() {
	if err := a.model.Close(); err != nil {
		a.logger.Warn("close model", zap.Error(err))
	}
	_ = a.logger.Sync()
}
