package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"orbitfire/internal/loop"
	"orbitfire/server/domain"
)

// Client は受信イベントと固定レートのtickを1つのループ上で Runtime に流します。
type Client struct {
	transport  domain.Transport
	codec      domain.Codec
	controller Controller
	runtime    *Runtime
	tick       time.Duration
}

func New(transport domain.Transport, codec domain.Codec, controller Controller, cfg Config, opts ...RuntimeOption) (*Client, error) {
	if transport == nil || codec == nil || controller == nil {
		return nil, domain.ErrInitializationFailed
	}
	rt, err := NewRuntime(cfg, NewTransportSender(transport, codec), NopScene{}, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{
		transport:  transport,
		codec:      codec,
		controller: controller,
		runtime:    rt,
		tick:       cfg.World.Step,
	}, nil
}

// Run は接続が切れるか、自機が脱落するか、ctx がキャンセルされるまでブロックします。
// ctx のキャンセルによる終了では nil を、脱落では ErrEliminated を返します。
func (c *Client) Run(ctx context.Context) error {
	eg, egCtx := errgroup.WithContext(ctx)
	egCtx, cancel := context.WithCancelCause(egCtx)
	defer cancel(nil)

	l, err := loop.New(loop.Config{
		Handler:      loop.HandlerFunc(c.handle),
		TickInterval: c.tick,
		OnTick: func(ctx context.Context, now time.Time) {
			if c.runtime.Eliminated() {
				cancel(ErrEliminated)
				return
			}
			in := c.controller.Decide(c.runtime.View())
			if err := c.runtime.Step(ctx, now, in); err != nil {
				cancel(err)
			}
		},
	})
	if err != nil {
		return err
	}
	if err := l.Start(egCtx); err != nil {
		return err
	}

	eg.Go(func() error {
		return c.readLoop(egCtx, l)
	})
	eg.Go(func() error {
		<-l.Done()
		return context.Cause(egCtx)
	})

	err = eg.Wait()
	if ctx.Err() != nil {
		return nil
	}
	// 読み込みループが ctx のキャンセルで先に戻ることがあるため、最初の原因を優先する
	if cause := context.Cause(egCtx); cause != nil {
		return cause
	}
	return err
}

func (c *Client) readLoop(ctx context.Context, l *loop.Loop) error {
	for {
		data, err := c.transport.Read(ctx)
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		ev, err := c.codec.Decode(data)
		if err != nil {
			slog.WarnContext(ctx, "dropping malformed message", "err", err)
			continue
		}
		if err := l.Submit(ctx, ev); err != nil {
			return err
		}
	}
}

func (c *Client) handle(ctx context.Context, req any) error {
	ev, ok := req.(domain.Event)
	if !ok {
		return fmt.Errorf("%w: %T", errUnexpectedRequest, req)
	}
	return c.runtime.Apply(ctx, ev)
}

var (
	// ErrEliminated は自機が命中または切断で脱落したときに Run が返すエラーです。
	ErrEliminated        = errors.New("player eliminated")
	errUnexpectedRequest = errors.New("unexpected loop request")
)
