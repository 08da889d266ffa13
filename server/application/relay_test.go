package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"orbitfire/server/domain"
)

type sent struct {
	to    string // "all", "except:<id>", "to:<id>"
	event domain.Event
}

type recordingOutbox struct {
	sent []sent
}

func (o *recordingOutbox) Broadcast(_ context.Context, ev domain.Event) {
	o.sent = append(o.sent, sent{to: "all", event: ev})
}

func (o *recordingOutbox) BroadcastExcept(_ context.Context, except domain.SessionID, ev domain.Event) {
	o.sent = append(o.sent, sent{to: "except:" + except.String(), event: ev})
}

func (o *recordingOutbox) SendTo(_ context.Context, id domain.SessionID, ev domain.Event) {
	o.sent = append(o.sent, sent{to: "to:" + id.String(), event: ev})
}

func newRelay(t *testing.T, radius float64, now *time.Time) *RelayApplication {
	t.Helper()
	d, err := NewHitDetector(radius, DefaultShotLifetime)
	if err != nil {
		t.Fatalf("NewHitDetector: %v", err)
	}
	app, err := NewRelayApplication(d, WithRelayClock(func() time.Time { return *now }))
	if err != nil {
		t.Fatalf("NewRelayApplication: %v", err)
	}
	return app
}

func TestNewRelayApplication_RequiresDetector(t *testing.T) {
	if _, err := NewRelayApplication(nil); !errors.Is(err, domain.ErrInitializationFailed) {
		t.Errorf("err = %v, want ErrInitializationFailed", err)
	}
}

func TestRelayApplication_JoinDoesNotBroadcast(t *testing.T) {
	now := time.Unix(100, 0)
	app := newRelay(t, 1, &now)
	out := &recordingOutbox{}

	app.OnJoin(context.Background(), "p1", out)

	if len(out.sent) != 0 {
		t.Errorf("sent = %+v, want nothing", out.sent)
	}
	p, ok := app.players.Get("p1")
	if !ok || p.Position != DefaultSpawnPosition {
		t.Errorf("record = %+v, want at spawn position", p)
	}
}

func TestRelayApplication_UpdatePositionRelaysToOthers(t *testing.T) {
	now := time.Unix(100, 0)
	app := newRelay(t, 1, &now)
	out := &recordingOutbox{}
	ctx := context.Background()
	app.OnJoin(ctx, "p1", out)

	ev := domain.UpdatePosition{ID: "p1", Position: domain.Vec3{X: 1, Y: 10.5}, Rotation: 0.3}
	if err := app.HandleEvent(ctx, "p1", ev, out); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	if len(out.sent) != 1 || out.sent[0] != (sent{to: "except:p1", event: ev}) {
		t.Errorf("sent = %+v, want relay except p1", out.sent)
	}
	p, _ := app.players.Get("p1")
	if p.Position != (mgl64.Vec3{1, 10.5, 0}) || p.Rotation != 0.3 {
		t.Errorf("record = %+v, want updated", p)
	}
}

func TestRelayApplication_UpdatePositionIDMismatch(t *testing.T) {
	now := time.Unix(100, 0)
	app := newRelay(t, 1, &now)
	out := &recordingOutbox{}
	ctx := context.Background()
	app.OnJoin(ctx, "p1", out)

	err := app.HandleEvent(ctx, "p1", domain.UpdatePosition{ID: "p2"}, out)
	if !errors.Is(err, ErrIDMismatch) {
		t.Fatalf("err = %v, want ErrIDMismatch", err)
	}
	if len(out.sent) != 0 {
		t.Errorf("sent = %+v, want nothing", out.sent)
	}
	if _, ok := app.players.Get("p2"); ok {
		t.Error("record for p2 must not be created")
	}
}

func TestRelayApplication_ShootRecordsAndRelays(t *testing.T) {
	now := time.Unix(100, 0)
	app := newRelay(t, 1, &now)
	out := &recordingOutbox{}
	ctx := context.Background()

	ev := domain.Shoot{Position: domain.Vec3{X: 1}, Direction: domain.Vec3{Z: 1}}
	if err := app.HandleEvent(ctx, "p1", ev, out); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	want := sent{to: "except:p1", event: domain.PlayerShot{ID: "p1", Position: ev.Position, Direction: ev.Direction}}
	if len(out.sent) != 1 || out.sent[0] != want {
		t.Errorf("sent = %+v, want %+v", out.sent, want)
	}
	shots := app.shots.All()
	if len(shots) != 1 || shots[0].OwnerID != "p1" || !shots[0].Timestamp.Equal(now) {
		t.Errorf("shots = %+v, want one shot by p1 at now", shots)
	}
}

func TestRelayApplication_RejectsServerEvents(t *testing.T) {
	now := time.Unix(100, 0)
	app := newRelay(t, 1, &now)
	err := app.HandleEvent(context.Background(), "p1", domain.PlayerHit{ID: "p2"}, &recordingOutbox{})
	if !errors.Is(err, ErrUnexpectedEvent) {
		t.Errorf("err = %v, want ErrUnexpectedEvent", err)
	}
}

func TestRelayApplication_LeaveBroadcastsDisconnect(t *testing.T) {
	now := time.Unix(100, 0)
	app := newRelay(t, 1, &now)
	out := &recordingOutbox{}
	ctx := context.Background()
	app.OnJoin(ctx, "p1", out)
	app.OnJoin(ctx, "p2", out)

	app.OnLeave(ctx, "p1", out)

	want := sent{to: "except:p1", event: domain.PlayerDisconnected{ID: "p1"}}
	if len(out.sent) != 1 || out.sent[0] != want {
		t.Errorf("sent = %+v, want %+v", out.sent, want)
	}
	if app.players.Len() != 1 {
		t.Errorf("players = %d, want 1", app.players.Len())
	}
}

func TestRelayApplication_TickBroadcastsHit(t *testing.T) {
	now := time.Unix(100, 0)
	app := newRelay(t, 2, &now)
	out := &recordingOutbox{}
	ctx := context.Background()

	app.OnJoin(ctx, "p1", out)
	app.OnJoin(ctx, "p2", out)
	_ = app.HandleEvent(ctx, "p1", domain.UpdatePosition{ID: "p1", Position: domain.Vec3{}}, out)
	_ = app.HandleEvent(ctx, "p2", domain.UpdatePosition{ID: "p2", Position: domain.Vec3{X: 10}}, out)
	_ = app.HandleEvent(ctx, "p2", domain.Shoot{Position: domain.Vec3{X: 0.5}, Direction: domain.Vec3{X: -1}}, out)
	out.sent = nil

	app.Tick(ctx, now.Add(time.Second), out)

	want := []sent{
		{to: "all", event: domain.PlayerHit{ID: "p1"}},
		{to: "all", event: domain.PlayerDisconnected{ID: "p1"}},
	}
	if len(out.sent) != len(want) {
		t.Fatalf("sent = %+v, want %+v", out.sent, want)
	}
	for i := range want {
		if out.sent[i] != want[i] {
			t.Errorf("sent[%d] = %+v, want %+v", i, out.sent[i], want[i])
		}
	}

	// 同じ弾で二度当たらない
	out.sent = nil
	app.Tick(ctx, now.Add(2*time.Second), out)
	if len(out.sent) != 0 {
		t.Errorf("second sweep sent = %+v, want nothing", out.sent)
	}
}
