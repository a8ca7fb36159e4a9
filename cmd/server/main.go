package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/MisterZedd/SourceStalker/internal/config"
	"github.com/MisterZedd/SourceStalker/internal/constants"
	fxmodules "github.com/MisterZedd/SourceStalker/internal/fx"
	"github.com/MisterZedd/SourceStalker/internal/middleware"
	"github.com/MisterZedd/SourceStalker/internal/notify"
	"github.com/MisterZedd/SourceStalker/internal/server"
	"github.com/MisterZedd/SourceStalker/internal/service"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/fx"
)

const WebSocketPath = "/ws"

func main() {
	fx.New(
		fxmodules.Module,
		fx.Invoke(runTracker),
		fx.Invoke(runServer),
	).Run()
}

func runServer(
	lc fx.Lifecycle,
	trackerServer *server.TrackerServer,
	hub *notify.Hub,
	cfg *config.Config,
	db *sql.DB,
	logger zerolog.Logger,
) {
	mux := http.NewServeMux()

	path, handler := trackerServer.Handler()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	requestIDMiddleware := middleware.RequestID(logger)

	mux.Handle(path, requestIDMiddleware(c.Handler(otelhttp.NewHandler(handler, "tracker-rpc"))))
	mux.Handle(WebSocketPath, requestIDMiddleware(hub))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           mux,
		ReadHeaderTimeout: constants.RequestTimeout,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				logger.Info().Str("addr", srv.Addr).Msg("server starting")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal().Err(err).Msg("server failed")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info().Msg("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("server shutdown failed")
				return err
			}
			logger.Info().Msg("server stopped gracefully")
			return nil
		},
	})
}

// runTracker starts polling and retention. Hooks stop in reverse order:
// the HTTP server first, then the poller, then the database.
func runTracker(
	lc fx.Lifecycle,
	poller *service.Poller,
	retention *service.RetentionScheduler,
	db *sql.DB,
	logger zerolog.Logger,
) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if err := db.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing database connection")
			}
			return nil
		},
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := retention.Start(); err != nil {
				return err
			}
			return poller.Start()
		},
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, constants.ReconcileTimeout)
			defer cancel()

			if err := poller.Stop(stopCtx); err != nil {
				logger.Warn().Err(err).Msg("poller stop incomplete")
			}
			if err := retention.Stop(); err != nil {
				logger.Warn().Err(err).Msg("retention stop incomplete")
			}
			return nil
		},
	})
}
