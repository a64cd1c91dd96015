package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cwrk-planet/room-sync/config"
	"github.com/cwrk-planet/room-sync/internal/backend/postgres"
	"github.com/cwrk-planet/room-sync/internal/backend/service"
	"github.com/cwrk-planet/room-sync/internal/backend/store"
	httpx "github.com/cwrk-planet/room-sync/internal/backend/transport/http"
	"github.com/cwrk-planet/room-sync/internal/backend/transport/ws"
	"github.com/cwrk-planet/room-sync/pkg/logger"
)

func main() {
	// --- config ---
	cfg, err := config.LoadBackend()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(cfg.Logging.Logger())
	slog.Info("starting roombackend",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version)

	// --- storage ---
	ctx := context.Background()
	var st store.Store
	if cfg.Postgres.DSN == "" {
		slog.Warn("postgres.dsn empty, using in-memory store")
		st = store.NewMemory()
	} else {
		db, err := postgres.New(ctx, cfg.Postgres.DSN)
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		if err := db.Migrate(ctx); err != nil {
			log.Fatalf("postgres migrate: %v", err)
		}
		st = postgres.NewStore(db)
	}
	defer st.Close()

	// --- services ---
	roomSvc := service.NewRoomService(st, nil, slog.Default())

	// --- WS Hub & Server ---
	hub := ws.NewHub()
	roomSvc.SetNotifier(hub)
	wsServer := ws.NewServer(hub, roomSvc, cfg.Realtime.PingInterval, slog.Default())

	// --- HTTP ---
	handler := httpx.NewHandler(roomSvc)
	router := httpx.NewRouter(handler, wsServer, httpx.RouterOptions{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		RateLimitRPS:   cfg.RateLimit.RPS,
		RateLimitBurst: cfg.RateLimit.Burst,
		RequestTimeout: cfg.HTTP.RequestTimeout,
	})
	httpSrv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// --- graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal", "sig", sig)
	case err := <-errCh:
		slog.Error("server error", "err", err)
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpSrv.Shutdown(ctxShutdown)
	slog.Info("stopped")
}
