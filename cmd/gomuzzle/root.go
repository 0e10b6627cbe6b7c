package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/daimatz/gomuzzle/pkg/config"
	"github.com/daimatz/gomuzzle/pkg/runner"
	"github.com/daimatz/gomuzzle/pkg/telemetry/logging"
	"github.com/daimatz/gomuzzle/pkg/telemetry/metrics"
	"github.com/daimatz/gomuzzle/pkg/telemetry/tracing"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "gomuzzle",
	Short: "gomuzzle - structural reference matching for JVM class paths",
	Long: `gomuzzle collects the classes, fields and methods an instrumentation module
uses from the library it instruments, and checks them against library class
paths without loading or running any code.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "muzzle.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
}

// session holds what a command needs for one run.
type session struct {
	cfg     *config.Config
	logger  *slog.Logger
	runner  *runner.Runner
	tracer  *tracing.Tracer
	metrics *metrics.Collector
	server  *http.Server
}

func newSession(cmd *cobra.Command) (*session, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Writer: cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, err
	}

	tracer, err := tracing.New(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Writer:      cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, logger: logger, tracer: tracer}
	opts := []runner.Option{
		runner.WithLogger(logger),
		runner.WithTracerProvider(tracer.TracerProvider()),
	}
	if cfg.Metrics.Enabled {
		s.metrics = metrics.NewCollector(cfg.Metrics.Namespace, nil)
		opts = append(opts, runner.WithMetrics(s.metrics))
	}
	s.runner = runner.New(cfg, opts...)

	if s.metrics != nil && cfg.Metrics.Listen != "" {
		if err := s.serveMetrics(cfg.Metrics.Listen); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *session) serveMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())
	s.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server stopped", "error", err)
		}
	}()
	s.logger.Info("serving metrics", "addr", ln.Addr().String())
	return nil
}

func (s *session) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			s.logger.Warn("metrics server shutdown", "error", err)
		}
	}
	if err := s.tracer.Shutdown(ctx); err != nil {
		s.logger.Warn("tracer shutdown", "error", err)
	}
}
