package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"imgconv/api"
	"imgconv/internal/config"
	"imgconv/internal/converter"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the upload form and conversion endpoint over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context(), cfg)
	},
}

func init() {
	serveCmd.Flags().String("addr", ":5000", "listen address")
	serveCmd.Flags().String("upload-dir", "uploads", "upload staging directory, created at startup")
	mustBind(config.KeyAddr, serveCmd.Flags().Lookup("addr"))
	mustBind(config.KeyUploadDir, serveCmd.Flags().Lookup("upload-dir"))

	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context, cfg *config.Config) error {
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", cfg.UploadDir, err)
	}

	logger := slog.Default()
	pipeline, err := converter.NewPipeline(cfg, converter.WithLogger(logger))
	if err != nil {
		return err
	}
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      api.NewRouter(cfg, pipeline, logger),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Listening", "addr", cfg.Addr, "pdfEnabled", cfg.PDFEnabled, "maxUploadBytes", cfg.MaxUploadBytes)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
