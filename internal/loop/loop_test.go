package loop

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestNew_RequiresHandler(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrNoHandler) {
		t.Errorf("err = %v, want ErrNoHandler", err)
	}
}

func TestLoop_HandlesInOrderAndDrainsOnStop(t *testing.T) {
	var got []int
	l, err := New(Config{Handler: HandlerFunc(func(_ context.Context, req any) error {
		got = append(got, req.(int))
		return nil
	})})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	if err := l.Submit(ctx, 0); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("Submit before Start err = %v, want ErrNotStarted", err)
	}
	if err := l.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := l.Start(ctx); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start err = %v, want ErrAlreadyStarted", err)
	}
	for i := range 10 {
		if err := l.Submit(ctx, i); err != nil {
			t.Fatalf("Submit(%d): %v", i, err)
		}
	}
	if err := l.DrainTimeout(time.Second); err != nil {
		t.Fatalf("DrainTimeout: %v", err)
	}

	if len(got) != 10 {
		t.Fatalf("handled %d requests, want 10", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Errorf("got[%d] = %d, want %d", i, v, i)
		}
	}
	if err := l.Submit(ctx, 11); !errors.Is(err, ErrStopped) {
		t.Errorf("Submit after Stop err = %v, want ErrStopped", err)
	}
}

func TestLoop_TicksOnLoopGoroutine(t *testing.T) {
	var inHandler atomic.Bool
	var overlap atomic.Bool
	ticks := make(chan struct{}, 64)

	l, err := New(Config{
		Handler: HandlerFunc(func(context.Context, any) error {
			inHandler.Store(true)
			time.Sleep(time.Millisecond)
			inHandler.Store(false)
			return nil
		}),
		TickInterval: 2 * time.Millisecond,
		OnTick: func(context.Context, time.Time) {
			if inHandler.Load() {
				overlap.Store(true)
			}
			select {
			case ticks <- struct{}{}:
			default:
			}
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := l.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := range 5 {
		_ = l.Submit(ctx, i)
	}

	for range 3 {
		select {
		case <-ticks:
		case <-time.After(time.Second):
			t.Fatal("OnTick was not called")
		}
	}
	cancel()
	<-l.Done()
	if overlap.Load() {
		t.Error("OnTick ran while the handler was running")
	}
}
