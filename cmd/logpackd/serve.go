package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"logpack/internal/app"
	"logpack/internal/config"
	"logpack/internal/obs"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	serveListen   string
	serveUpstream string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the capture proxy in front of an upstream",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Listen address, overrides listen_addr")
	serveCmd.Flags().StringVar(&serveUpstream, "upstream", "", "Upstream URL, overrides upstream")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if serveListen != "" {
		cfg.ListenAddr = serveListen
	}
	if serveUpstream != "" {
		cfg.Upstream = serveUpstream
	}
	logger, err := obs.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.Options{Logger: logger, AccessLog: os.Stdout})
	if err != nil {
		return err
	}
	srv, err := a.Start()
	if err != nil {
		_ = a.Close(context.Background())
		return err
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case <-srv.Done():
		logger.Warn("server stopped unexpectedly")
	}
	if err := srv.Shutdown(); err != nil {
		logger.Error("shutdown", zap.Error(err))
		return err
	}
	return nil
}
