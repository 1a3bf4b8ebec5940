package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/biflow-io/biflow"
	"github.com/biflow-io/biflow/bi"
	"github.com/biflow-io/biflow/httpapi"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(flags)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			registry := prometheus.NewRegistry()
			metrics := biflow.NewMetrics(registry)

			tp := sdktrace.NewTracerProvider()
			defer tp.Shutdown(context.Background())

			svc, err := bi.New(ctx, cfg, logger, bi.WithRunnerOptions(
				biflow.WithMiddleware(metrics.Middleware(), biflow.TracingMiddleware(tp)),
				biflow.WithStageMiddleware(metrics.StageMiddleware(), biflow.StageTracingMiddleware(tp)),
			))
			if err != nil {
				return err
			}
			defer svc.Close()

			server := &http.Server{
				Addr:              cfg.Server.Addr(),
				Handler:           httpapi.NewServer(svc, logger, registry).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("listening", zap.String("addr", server.Addr))
				errCh <- server.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
}
