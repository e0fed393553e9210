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

	"github.com/redis/go-redis/v9"

	"github.com/pawmart/chat-service/config"
	"github.com/pawmart/chat-service/internal/auth"
	"github.com/pawmart/chat-service/internal/memory"
	"github.com/pawmart/chat-service/internal/postgres"
	"github.com/pawmart/chat-service/internal/service"
	httpx "github.com/pawmart/chat-service/internal/transport/http"
	"github.com/pawmart/chat-service/internal/transport/ws"
	"github.com/pawmart/chat-service/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.Env(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting chat-service",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version, "storage", cfg.Storage.Driver)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- repositories ---
	var (
		roomRepo    service.RoomRepository
		sessionRepo service.SessionRepository
		messageRepo service.MessageRepository
	)
	switch cfg.Storage.Driver {
	case "memory":
		roomRepo = memory.NewRoomStore()
		sessionRepo = memory.NewSessionStore()
		messageRepo = memory.NewMessageStore()
	default:
		pool, err := postgres.NewPool(ctx, postgres.Config{
			DSN:             cfg.Postgres.DSN,
			ApplicationName: cfg.Logging.Service,
		})
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		defer pool.Close()
		roomRepo = postgres.NewRoomRepository(pool)
		sessionRepo = postgres.NewSessionRepository(pool)
		messageRepo = postgres.NewMessageRepository(pool)
	}

	// --- services ---
	roomSvc := service.NewRoomService(roomRepo)
	sessionSvc := service.NewSessionService(sessionRepo, roomRepo)
	messageSvc := service.NewMessageService(messageRepo, roomRepo, cfg.Chat.MaxMessageLen, cfg.Chat.HistoryPageSize)

	verifier := auth.NewVerifier(cfg.Auth.Secret, cfg.Auth.Issuer)

	// --- ws hub & server ---
	hub := ws.NewHub()
	wsServer := ws.NewServer(hub, verifier, roomSvc, sessionSvc, messageSvc)

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		relay := ws.NewRelay(rdb, hub)
		wsServer.SetRelay(relay)
		go relay.Run(ctx)
		slog.Info("relay enabled", "addr", cfg.Redis.Addr)
	}

	// idle open sessions are a policy concern, not a core invariant
	go sessionSvc.RunIdleSweeper(ctx, cfg.Session.IdleTimeout, cfg.Session.SweepInterval)

	// --- http ---
	handler := httpx.NewHandler(roomSvc, sessionSvc, messageSvc, wsServer)
	router := httpx.NewRouter(handler, verifier, wsServer)
	httpSrv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal", "sig", sig)
	case err := <-errCh:
		slog.Error("server error", "err", err)
	}

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	_ = httpSrv.Shutdown(ctxShutdown)
	slog.Info("stopped")
}
