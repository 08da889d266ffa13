package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"orbitfire/server/domain"
)

var (
	// ErrIDMismatch は updatePosition の id が送信者のセッションIDと一致しない場合のエラーです。
	ErrIDMismatch      = errors.New("position update id does not match sender")
	ErrUnexpectedEvent = errors.New("unexpected event for relay")
)

// RelayApplication はクライアントの状態を他クライアントへ中継し、定期的に命中判定を行います。
// サーバー側で物理演算は行いません。
type RelayApplication struct {
	players  *PlayerRegistry
	shots    *ShotLog
	detector *HitDetector
	now      func() time.Time
}

var _ domain.Application = (*RelayApplication)(nil)

type RelayOption func(*RelayApplication)

// WithRelayClock は発砲記録と最終受信時刻に使う時計を差し替えます。
func WithRelayClock(now func() time.Time) RelayOption {
	return func(a *RelayApplication) { a.now = now }
}

func NewRelayApplication(detector *HitDetector, opts ...RelayOption) (*RelayApplication, error) {
	if detector == nil {
		return nil, domain.ErrInitializationFailed
	}
	app := &RelayApplication{
		players:  NewPlayerRegistry(),
		shots:    NewShotLog(),
		detector: detector,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(app)
	}
	return app, nil
}

func (app *RelayApplication) OnJoin(ctx context.Context, sessionID domain.SessionID, _ domain.Outbox) {
	app.players.Insert(sessionID, app.now())
	slog.DebugContext(ctx, "player registered", "sessionID", sessionID, "players", app.players.Len())
}

func (app *RelayApplication) OnLeave(ctx context.Context, sessionID domain.SessionID, out domain.Outbox) {
	app.players.Remove(sessionID)
	out.BroadcastExcept(ctx, sessionID, domain.PlayerDisconnected{ID: sessionID})
}

func (app *RelayApplication) HandleEvent(ctx context.Context, sessionID domain.SessionID, ev domain.Event, out domain.Outbox) error {
	switch ev := ev.(type) {
	case domain.UpdatePosition:
		return app.handleUpdatePosition(ctx, sessionID, ev, out)
	case domain.Shoot:
		return app.handleShoot(ctx, sessionID, ev, out)
	default:
		return fmt.Errorf("%w: %s", ErrUnexpectedEvent, ev.Name())
	}
}

func (app *RelayApplication) handleUpdatePosition(ctx context.Context, sessionID domain.SessionID, ev domain.UpdatePosition, out domain.Outbox) error {
	if ev.ID != sessionID {
		return fmt.Errorf("%w: sender %s, id %s", ErrIDMismatch, sessionID, ev.ID)
	}
	app.players.Upsert(sessionID, ev.Position.Vec(), ev.Rotation, app.now())
	out.BroadcastExcept(ctx, sessionID, ev)
	return nil
}

func (app *RelayApplication) handleShoot(ctx context.Context, sessionID domain.SessionID, ev domain.Shoot, out domain.Outbox) error {
	app.shots.Append(ShotRecord{
		OwnerID:   sessionID,
		Position:  ev.Position.Vec(),
		Direction: ev.Direction.Vec(),
		Timestamp: app.now(),
	})
	slog.DebugContext(ctx, "shot recorded", "sessionID", sessionID, "shots", app.shots.Len())

	out.BroadcastExcept(ctx, sessionID, domain.PlayerShot{
		ID:        sessionID,
		Position:  ev.Position,
		Direction: ev.Direction,
	})
	return nil
}

// Tick は命中判定の掃引です。命中ごとに playerHit と playerDisconnected を全員へ送ります。
func (app *RelayApplication) Tick(ctx context.Context, now time.Time, out domain.Outbox) {
	hits := app.detector.Sweep(now, app.players, app.shots)
	for _, hit := range hits {
		slog.InfoContext(ctx, "player hit", "sessionID", hit.PlayerID, "shooter", hit.ShooterID)
		out.Broadcast(ctx, domain.PlayerHit{ID: hit.PlayerID})
		out.Broadcast(ctx, domain.PlayerDisconnected{ID: hit.PlayerID})
	}
}
