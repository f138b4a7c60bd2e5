// Package main provides the browser-sidecar binary: a browser-control process
// that reads line-delimited JSON requests on stdin and answers on stdout.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/entrhq/browser-sidecar/pkg/actions"
	"github.com/entrhq/browser-sidecar/pkg/browser"
	"github.com/entrhq/browser-sidecar/pkg/browser/driver"
	"github.com/entrhq/browser-sidecar/pkg/config"
	"github.com/entrhq/browser-sidecar/pkg/ipc"
	"github.com/entrhq/browser-sidecar/pkg/logging"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "0.1.0"

const shutdownTimeout = 10 * time.Second

type flags struct {
	configPath  string
	logLevel    string
	logDir      string
	metricsAddr string
}

func main() {
	if err := newRootCmd(&flags{}).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(f *flags) *cobra.Command {
	root := &cobra.Command{
		Use:          "browser-sidecar",
		Short:        "Drive Chromium browsers over a line-delimited JSON protocol",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, f)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "", "Path to a YAML settings file")
	pf.StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&f.logDir, "log-dir", "", "Directory for the log file (stderr only when empty)")
	pf.StringVar(&f.metricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Serve requests from stdin (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, f)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "browser-sidecar v%s\n", version)
		},
	})

	return root
}

// loadSettings layers command-line flags over the file and environment.
func loadSettings(cmd *cobra.Command, f *flags) (config.Settings, error) {
	settings, err := config.LoadSettings(f.configPath)
	if err != nil {
		return config.Settings{}, err
	}

	if cmd.Flags().Changed("log-level") {
		settings.LogLevel = f.logLevel
	}
	if cmd.Flags().Changed("log-dir") {
		settings.LogDir = f.logDir
	}
	if cmd.Flags().Changed("metrics-addr") {
		settings.MetricsAddr = f.metricsAddr
	}

	if err := settings.Validate(); err != nil {
		return config.Settings{}, err
	}
	return settings, nil
}

func runServe(cmd *cobra.Command, f *flags) error {
	settings, err := loadSettings(cmd, f)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{Level: settings.LogLevel, Dir: settings.LogDir})
	if logger == nil {
		return err
	}
	defer logger.Close()
	logger.Infof("browser-sidecar v%s starting (pid %d)", version, os.Getpid())

	drv := driver.NewPlaywright(settings.SkipDriverInstall)
	defer func() {
		if err := drv.Close(); err != nil {
			logger.Warnf("failed to stop driver: %v", err)
		}
	}()

	registry := browser.NewSessionRegistry(drv, browser.OptionsFromSettings(settings), logger.Named("browser"))
	service := actions.NewService(registry, logger.Named("actions"))
	dispatcher := ipc.NewDispatcher(service, registry, ipc.Options{
		Version:     version,
		MaxLineSize: settings.MaxRequestLineSize,
		Logger:      logger.Named("ipc"),
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if settings.MetricsAddr != "" {
		srv := startMetrics(settings.MetricsAddr, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx) // best effort on exit
		}()
	}

	// Serve blocks on stdin, so a signal is handled here rather than inside it.
	served := make(chan error, 1)
	go func() {
		served <- dispatcher.Serve(ctx, os.Stdin, os.Stdout)
	}()

	var serveErr error
	select {
	case serveErr = <-served:
	case <-ctx.Done():
		logger.Infof("signal received, shutting down")
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if closed := registry.CloseAll(closeCtx); len(closed) > 0 {
		logger.Infof("closed profiles: %v", closed)
	}

	if serveErr != nil {
		logger.Errorf("serve loop failed: %v", serveErr)
	}
	return serveErr
}

func startMetrics(addr string, logger *logging.Logger) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           ipc.MetricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warnf("metrics server stopped: %v", err)
		}
	}()
	logger.Infof("serving metrics on %s", addr)
	return srv
}
