package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/roomcast-io/roomcast/internal/config"
	"github.com/roomcast-io/roomcast/internal/handler"
	"github.com/roomcast-io/roomcast/internal/hub"
	"github.com/roomcast-io/roomcast/internal/log"
	"github.com/roomcast-io/roomcast/internal/service"
	"github.com/roomcast-io/roomcast/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Log)
	logger := log.L()

	st, err := openStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open durable store")
	}
	defer st.Close()
	logger.Info().Str("driver", cfg.Store.Driver).Msg("durable store ready")

	sessions := hub.NewHub()

	room, err := service.NewRoom(cfg.Room, cfg.WebSocket, st, sessions)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create room coordinator")
	}
	logger.Info().
		Str(log.FieldRoom, room.Name()).
		Int("history_limit", cfg.Room.HistoryLimit).
		Msg("room coordinator ready")

	router := handler.NewRouter(room, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("roomcast listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("server forced to shutdown")
	}
	sessions.CloseAll()

	logger.Info().Msg("stopped")
}

func openStore(cfg *config.Config) (store.DurableStore, error) {
	switch cfg.Store.Driver {
	case "bolt", "":
		return store.OpenBolt(cfg.Store.Path, cfg.Room.Name)
	case "redis":
		return store.OpenRedis(store.RedisOptions{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		}, cfg.Room.Name)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
