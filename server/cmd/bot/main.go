package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/coder/websocket"

	"orbitfire/client"
	"orbitfire/config"
	adapterwebsocket "orbitfire/server/adapter/websocket"
	"orbitfire/server/domain"
)

const reconnectDelay = 2 * time.Second

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

	codec, err := domain.NewCodec(cfg.Codec)
	if err != nil {
		slog.Error("invalid codec", "err", err)
		os.Exit(1)
	}

	clientCfg := client.DefaultConfig()
	clientCfg.World.Step = time.Second / time.Duration(cfg.TickRate)
	clientCfg.ShotLifetime = cfg.ShotLifetime
	clientCfg.HitRadius = cfg.HitRadius
	clientCfg.SweepInterval = cfg.SweepInterval
	if floor := cfg.HitRadius + clientCfg.ShotClearance; clientCfg.MuzzleOffset <= floor {
		clientCfg.MuzzleOffset = floor + 0.5
	}

	serverURL := fmt.Sprintf("ws://%s/ws", cfg.ListenAddr())
	slog.Info("starting bots", "count", cfg.BotCount, "server", serverURL, "tickRate", cfg.TickRate)

	var wg sync.WaitGroup
	for i := range cfg.BotCount {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			runBot(ctx, serverURL, cfg.Codec, codec, clientCfg, id)
		}(i)
	}

	wg.Wait()
	slog.Info("all bots stopped")
}

func runBot(ctx context.Context, serverURL, codecName string, codec domain.Codec, cfg client.Config, id int) {
	logger := slog.With("botID", id)

	for {
		if ctx.Err() != nil {
			return
		}
		err := botSession(ctx, serverURL, codecName, codec, cfg, logger)
		if err != nil && ctx.Err() == nil {
			if errors.Is(err, client.ErrEliminated) {
				logger.Info("bot eliminated, rejoining")
			} else {
				logger.Warn("bot session ended, reconnecting", "err", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
		}
	}
}

func botSession(ctx context.Context, serverURL, codecName string, codec domain.Codec, cfg client.Config, logger *slog.Logger) error {
	conn, _, err := websocket.Dial(ctx, serverURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.CloseNow()

	logger.Info("connected")

	transport := adapterwebsocket.NewTransportFrom(conn, codecName)
	c, err := client.New(transport, codec, client.NewRuleBotController(), cfg)
	if err != nil {
		return err
	}
	err = c.Run(ctx)
	switch {
	case errors.Is(err, client.ErrEliminated):
		conn.Close(websocket.StatusNormalClosure, "eliminated")
		return err
	case err != nil:
		return err
	}
	conn.Close(websocket.StatusNormalClosure, "shutdown")
	return nil
}
