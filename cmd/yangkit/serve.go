package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	slogcontext "github.com/veqryn/slog-context"

	"yangkit/internal/core/app"
	"yangkit/internal/core/config"
)

func newServeCommand(root *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve [MODULE[@REVISION]...]",
		Short: "Keep the repository warm, watch sources and expose metrics",
		Long: "serve compiles the given modules, recompiles them whenever a source they " +
			"depend on changes and serves /metrics and /healthz until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)
			return withSession(root, cmd, func(s *session) error {
				if addr != "" {
					s.cfg.Observability.MetricsAddress = addr
				}
				return serve(ctx, root.configPath, s, args)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address, overriding observability.metrics_address")
	return cmd
}

func serve(ctx context.Context, configPath string, s *session, modules []string) error {
	logger := slogcontext.FromCtx(ctx)
	compile := func(reason string) {
		if len(modules) == 0 {
			return
		}
		started := time.Now()
		sc, err := s.app.Compile(ctx, modules)
		if err != nil {
			logger.Error("compile failed", "reason", reason, "modules", modules, "error", err)
			return
		}
		logger.Info("compiled", "reason", reason, "modules", len(sc.Modules()), "duration", time.Since(started))
	}

	updates := make(chan app.Update, 16)
	s.app.OnUpdate(func(u app.Update) {
		select {
		case updates <- u:
		default:
			logger.Warn("update dropped, recompile pending already", "changed", u.Changed)
		}
	})
	if s.cfg.Sources.Watch {
		if err := s.app.Watch(); err != nil {
			return err
		}
	}

	cfgWatcher := config.NewWatcher(configPath, func(cfg *config.Config) {
		s.app.SetFeatures(cfg.Features)
		logger.Info("features reloaded", "mode", cfg.Features.Mode)
		select {
		case updates <- app.Update{Changed: []string{configPath}}:
		default:
		}
	})
	if err := cfgWatcher.Start(ctx); err != nil {
		logger.Warn("config watcher disabled", "path", configPath, "error", err)
	}
	defer cfgWatcher.Stop()

	var srv *http.Server
	errCh := make(chan error, 1)
	if s.cfg.Observability.MetricsAddress != "" {
		srv = &http.Server{
			Addr:              s.cfg.Observability.MetricsAddress,
			Handler:           newMux(s.app),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("serving metrics", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	compile("startup")
	for {
		select {
		case <-ctx.Done():
			if srv != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
			return nil
		case err := <-errCh:
			return err
		case u := <-updates:
			if affects(u, modules) {
				compile("sources changed")
			}
		}
	}
}

// affects reports whether u touches any requested module. A config reload
// names the config file and always counts.
func affects(u app.Update, modules []string) bool {
	if len(u.Affected) == 0 {
		return true
	}
	touched := make(map[string]bool, len(u.Affected))
	for _, name := range u.Affected {
		touched[name] = true
	}
	for _, m := range modules {
		if touched[moduleName(m)] {
			return true
		}
	}
	return false
}

func newMux(a *app.App) *http.ServeMux {
	health := app.NewHealthService(a)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status := health.Check(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if status.Status != "up" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(status); err != nil {
			slog.Warn("health response failed", "error", err)
		}
	})
	return mux
}
