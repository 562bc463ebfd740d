package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"mediagrab/internal/server"
	"mediagrab/pkg/logger"
	"mediagrab/pkg/scraper"
)

// serveCmd runs the HTTP extraction API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP extraction API",
	Long: `Start the HTTP server exposing the extraction API.

Endpoints:
  POST /api/extract        Extract media formats for a URL
  GET  /api/debug/extract  Extraction plus pool/timing introspection
  GET  /healthz            Liveness probe`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.GetLogger()

	svc, err := scraper.NewFromConfig(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	srv := server.New(svc, cfg, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.WithField("signal", sig.String()).Info("shutting down")
		return srv.Shutdown(context.Background())
	}
}
