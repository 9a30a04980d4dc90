package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flowlattice/workflow-engine/config"
	"github.com/flowlattice/workflow-engine/pkg/clients/email"
	"github.com/flowlattice/workflow-engine/pkg/clients/weather"
	"github.com/flowlattice/workflow-engine/pkg/db"
	"github.com/flowlattice/workflow-engine/services/codereview"
	"github.com/flowlattice/workflow-engine/services/engine"
	"github.com/flowlattice/workflow-engine/services/registry"
	"github.com/flowlattice/workflow-engine/services/server"
	"github.com/flowlattice/workflow-engine/services/storage"
	"github.com/flowlattice/workflow-engine/services/toolkit"
)

func main() {
	ctx := context.Background()
	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	slog.SetDefault(slog.New(logHandler))

	cfg := config.DefaultConfig()

	store, closeStore := mustStore(ctx, cfg)
	defer closeStore()

	reg := registry.Default()
	weatherClient := weather.NewOpenMeteoClient(nil)
	emailClient := email.NewStubClient("workflow-engine@example.com")
	if err := toolkit.Register(reg, weatherClient, emailClient); err != nil {
		slog.Error("failed to register toolkit", "error", err)
		return
	}
	if err := codereview.Register(reg); err != nil {
		slog.Error("failed to register codereview toolset", "error", err)
		return
	}

	metrics := engine.NewMetrics(nil)
	eng := engine.New(reg, engine.WithMetrics(metrics))

	svc := server.New(store, eng, cfg.DefaultMaxIterations)

	mainRouter := mux.NewRouter()
	svc.LoadRoutes(mainRouter)
	mainRouter.Handle("/metrics", promhttp.Handler())

	corsHandler := handlers.CORS(
		handlers.AllowedOrigins([]string{cfg.CORSOrigin}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		handlers.AllowCredentials(),
	)(mainRouter)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: corsHandler,
	}

	serverErrors := make(chan error, 1)

	go func() {
		slog.Info("starting server", "port", cfg.Port)
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		slog.Error("server error", "error", err)

	case sig := <-shutdown:
		slog.Info("shutdown signal received", "signal", sig)

		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("could not stop server gracefully", "error", err)
			srv.Close()
		}
	}
}

// mustStore connects to Postgres when DATABASE_URL is set, otherwise
// falls back to an in-memory store for local development. The
// returned function releases whatever resources were acquired.
func mustStore(ctx context.Context, cfg config.Config) (storage.Storage, func()) {
	if cfg.DatabaseURL == "" {
		slog.Warn("DATABASE_URL not set; using in-memory storage")
		return storage.NewMemory(), func() {}
	}

	dbCfg := db.DefaultConfig(cfg.DatabaseURL)
	pool, err := db.Connect(ctx, dbCfg)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	store, err := storage.NewPostgres(pool)
	if err != nil {
		slog.Error("failed to create storage instance", "error", err)
		os.Exit(1)
	}

	return store, pool.Close
}
