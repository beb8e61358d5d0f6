package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	httpadapter "github.com/bnema/hlsd/internal/adapter/http"
)

const shutdownTimeout = 30 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	var skipReconcile bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Reconcile stored items, then serve the status API and run encodes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runCtx := cmd.Context()

			a, err := newApp(runCtx, cfg, appOptions{exclusive: true})
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.WithoutCancel(runCtx), shutdownTimeout)
				defer cancel()
				if err := a.Close(closeCtx); err != nil {
					a.logger.Error("shutdown failed", "error", err)
				}
			}()

			a.logger.Info("starting hlsd",
				"version", version,
				"port", cfg.Port,
				"storage_root", cfg.StorageRoot,
				"database_driver", cfg.Database.Driver,
				"workers", cfg.HLS.MaxConcurrentStreams,
			)

			if !skipReconcile {
				if _, err := a.hls.ReconcileAll(runCtx); err != nil {
					return fmt.Errorf("startup reconciliation: %w", err)
				}
			}

			server := httpadapter.NewServer(a.hls, a.registry, a.logger)
			httpServer := &http.Server{
				Addr:         fmt.Sprintf(":%d", cfg.Port),
				Handler:      server,
				ReadTimeout:  5 * time.Minute,
				WriteTimeout: 10 * time.Minute,
				IdleTimeout:  120 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("server listening", "addr", httpServer.Addr)
				errCh <- httpServer.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-runCtx.Done():
			}

			a.logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(runCtx), shutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				a.logger.Error("http shutdown error", "error", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipReconcile, "skip-reconcile", false, "Do not reconcile stored items before serving")
	return cmd
}
