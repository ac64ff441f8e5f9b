package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"voiceboost/pkg/api"
	"voiceboost/pkg/pipeline"
	"voiceboost/pkg/storage"
)

func newServeCommand() *cobra.Command {
	var preload bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the upload page and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			return serve(cmd.Context(), a, preload)
		},
	}
	cmd.Flags().BoolVar(&preload, "preload", false, "Load the enhancement model before accepting uploads")
	return cmd
}

func serve(ctx context.Context, a *app, preload bool) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := a.logger
	if preload {
		logger.Info("loading enhancement model")
		if err := a.model.Load(); err != nil {
			return err
		}
	}

	memStore := storage.NewMemoryStore()
	diskStore, err := storage.NewDiskStore(a.cfg.StoragePath)
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	defer diskStore.Close()

	manager := pipeline.NewManager(a.cfg.Pipeline, a.orchestrator, memStore, diskStore, a.metrics, logger.Named("jobs"))
	if err := manager.Start(context.Background()); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}
	defer manager.Stop()

	handlers := api.NewHandlers(manager, a.cfg.Pipeline.MaxUploadBytes, logger.Named("api"))

	srv := &http.Server{
		Addr:         a.cfg.Server.Address,
		Handler:      api.NewRouter(handlers, a.registry),
		ReadTimeout:  a.cfg.Server.ReadTimeout.Duration,
		WriteTimeout: a.cfg.Server.WriteTimeout.Duration,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", a.cfg.Server.Address),
			zap.Int64("max_upload_mb", a.cfg.Pipeline.MaxUploadMB()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server exited")
	return nil
}
