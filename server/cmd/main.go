package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"orbitfire/config"
	"orbitfire/server"
	"orbitfire/server/application"
	"orbitfire/server/domain"
	"orbitfire/server/handler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.ErrorContext(ctx, "server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	codec, err := domain.NewCodec(cfg.Codec)
	if err != nil {
		return err
	}

	// PubSub初期化
	pubsub := domain.NewSimplePubSub()

	detector, err := application.NewHitDetector(cfg.HitRadius, cfg.ShotLifetime)
	if err != nil {
		return err
	}
	relay, err := application.NewRelayApplication(detector)
	if err != nil {
		return err
	}

	// 全プレイヤーは単一のRoomに参加する
	room := domain.NewRoom("default", pubsub, codec, relay, domain.WithSweepInterval(cfg.SweepInterval))
	roomDone := make(chan struct{})
	go func() {
		defer close(roomDone)
		if err := room.Run(ctx); err != nil {
			slog.ErrorContext(ctx, "room error", "err", err)
		}
	}()

	accept, err := handler.NewAcceptHandler(ctx, pubsub, room, cfg.Codec, domain.EndpointOptions{
		PingInterval: cfg.PingInterval,
		IdleTimeout:  cfg.IdleTimeout,
	})
	if err != nil {
		return err
	}
	s := server.NewServer(cfg.ListenAddr(), server.Route(accept))

	serveErr := make(chan error, 1)
	go func() {
		if err := s.Serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	slog.InfoContext(ctx, "server listening", "addr", s.Addr(), "codec", cfg.Codec, "sweep", cfg.SweepInterval)

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}
	slog.InfoContext(ctx, "shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(ctx, "graceful shutdown failed", "err", err)
		if err := s.Close(); err != nil {
			slog.ErrorContext(ctx, "forced close failed", "err", err)
		}
	}
	<-roomDone
	slog.InfoContext(ctx, "server shutdown complete")
	return nil
}
