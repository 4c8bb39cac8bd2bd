package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	slogcontext "github.com/veqryn/slog-context"

	"yangkit/internal/core/app"
	"yangkit/internal/core/config"
	"yangkit/internal/shared/observability"
)

const versionString = "1.0.0"

type rootOptions struct {
	configPath string
	verbose    bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "yangkit",
		Short:        "Resolve YANG modules into schema contexts",
		SilenceUsage: true,
		Version:      versionString,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultFile, "Path to config file")
	cmd.PersistentFlags().BoolVar(&opts.verbose, "verbose", false, "Enable verbose logging")

	cmd.AddCommand(
		newCompileCommand(opts),
		newSourcesCommand(opts),
		newChainCommand(opts),
		newGraphCommand(opts),
		newPurgeCommand(opts),
		newServeCommand(opts),
	)
	return cmd
}

// loadConfig reads the config file, falling back to defaults when the
// default file is absent.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	if o.configPath == config.DefaultFile {
		return config.LoadOrDefault(o.configPath)
	}
	return config.Load(o.configPath)
}

func setupLogging(w io.Writer, level string, verbose bool) {
	logLevel := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	if verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(slogcontext.NewHandler(handler, nil)))
}

// session is one command's loaded configuration and running App.
type session struct {
	cfg         *config.Config
	app         *app.App
	stopTracing func(context.Context) error
}

func (o *rootOptions) open(cmd *cobra.Command) (*session, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	setupLogging(cmd.ErrOrStderr(), cfg.Observability.LogLevel, o.verbose)

	ctx := cmd.Context()
	stop, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Observability.EnableTracing,
		Endpoint:    cfg.Observability.OTLPEndpoint,
		Insecure:    cfg.Observability.OTLPInsecure,
		ServiceName: cfg.Repository.Name,
		SampleRatio: cfg.Observability.SampleRatio,
	})
	if err != nil {
		return nil, err
	}

	cwd, err := os.Getwd()
	if err != nil {
		_ = stop(ctx)
		return nil, err
	}
	a, err := app.New(ctx, cfg, cwd)
	if err != nil {
		_ = stop(ctx)
		return nil, err
	}
	return &session{cfg: cfg, app: a, stopTracing: stop}, nil
}

func (s *session) close(ctx context.Context) {
	if err := s.app.Close(ctx); err != nil {
		slog.Warn("close failed", "error", err)
	}
	if err := s.stopTracing(ctx); err != nil {
		slog.Warn("tracing shutdown failed", "error", err)
	}
}
