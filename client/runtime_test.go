package client_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/mock/gomock"

	"orbitfire/client"
	"orbitfire/client/mocks"
	"orbitfire/physics"
	"orbitfire/server/domain"
)

type recordingScene struct {
	client.NopScene
	spawned []physics.Projectile
	removed []physics.Projectile
	players []domain.SessionID
}

func (s *recordingScene) ProjectileSpawned(p physics.Projectile) { s.spawned = append(s.spawned, p) }
func (s *recordingScene) ProjectileRemoved(p physics.Projectile) { s.removed = append(s.removed, p) }
func (s *recordingScene) PlayerRemoved(id domain.SessionID)      { s.players = append(s.players, id) }

func newRuntime(t *testing.T, sender client.Sender, scene client.Scene, opts ...client.RuntimeOption) *client.Runtime {
	t.Helper()
	rt, err := client.NewRuntime(client.DefaultConfig(), sender, scene, opts...)
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	return rt
}

func TestNewRuntime_Validates(t *testing.T) {
	ctrl := gomock.NewController(t)
	if _, err := client.NewRuntime(client.DefaultConfig(), nil, nil); !errors.Is(err, domain.ErrInitializationFailed) {
		t.Errorf("nil sender err = %v, want ErrInitializationFailed", err)
	}

	cfg := client.DefaultConfig()
	cfg.MuzzleOffset = cfg.HitRadius
	if _, err := client.NewRuntime(cfg, mocks.NewMockSender(ctrl), nil); !errors.Is(err, client.ErrInvalidClientConfig) {
		t.Errorf("muzzle inside hit radius err = %v, want ErrInvalidClientConfig", err)
	}

	cfg = client.DefaultConfig()
	cfg.MuzzleOffset = cfg.HitRadius + cfg.ShotClearance
	if _, err := client.NewRuntime(cfg, mocks.NewMockSender(ctrl), nil); !errors.Is(err, client.ErrInvalidClientConfig) {
		t.Errorf("muzzle inside clearance err = %v, want ErrInvalidClientConfig", err)
	}

	// 終端速度 5.77/s @60Hz では1tickに約0.096進む
	cfg = client.DefaultConfig()
	cfg.ShotClearance = 0.05
	if _, err := client.NewRuntime(cfg, mocks.NewMockSender(ctrl), nil); !errors.Is(err, client.ErrInvalidClientConfig) {
		t.Errorf("clearance below travel per tick err = %v, want ErrInvalidClientConfig", err)
	}

	cfg = client.DefaultConfig()
	cfg.World.LinearDamping = 0
	if _, err := client.NewRuntime(cfg, mocks.NewMockSender(ctrl), nil); !errors.Is(err, client.ErrInvalidClientConfig) {
		t.Errorf("zero damping err = %v, want ErrInvalidClientConfig", err)
	}

	cfg = client.DefaultConfig()
	cfg.SpawnForward = mgl64.Vec3{0, 1, 0}
	if _, err := client.NewRuntime(cfg, mocks.NewMockSender(ctrl), nil); !errors.Is(err, client.ErrInvalidClientConfig) {
		t.Errorf("vertical forward err = %v, want ErrInvalidClientConfig", err)
	}
}

func TestRuntime_SendsNothingBeforeAssign(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mocks.NewMockSender(ctrl) // 呼ばれたら失敗する
	rt := newRuntime(t, sender, nil)

	if err := rt.Step(context.Background(), time.Unix(100, 0), client.Input{Forward: true, Shoot: true}); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if len(rt.Projectiles()) != 0 {
		t.Error("unassigned client should not shoot")
	}
}

func TestRuntime_StepSendsPosition(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mocks.NewMockSender(ctrl)
	rt := newRuntime(t, sender, nil)
	ctx := context.Background()

	if err := rt.Apply(ctx, domain.Assign{ID: "me"}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	var sent domain.Event
	sender.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, ev domain.Event) error {
		sent = ev
		return nil
	})
	if err := rt.Step(ctx, time.Unix(100, 0), client.Input{}); err != nil {
		t.Fatalf("Step: %v", err)
	}

	up, ok := sent.(domain.UpdatePosition)
	if !ok {
		t.Fatalf("sent = %#v, want UpdatePosition", sent)
	}
	if up.ID != "me" || up.Position.Vec() != rt.Position() {
		t.Errorf("UpdatePosition = %+v, want id me at %v", up, rt.Position())
	}
}

func TestRuntime_ShootSendsShotThenPosition(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mocks.NewMockSender(ctrl)
	scene := &recordingScene{}
	rt := newRuntime(t, sender, scene)
	ctx := context.Background()
	_ = rt.Apply(ctx, domain.Assign{ID: "me"})

	var sent []domain.Event
	sender.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, ev domain.Event) error {
		sent = append(sent, ev)
		return nil
	}).Times(2)

	t0 := time.Unix(100, 0)
	if err := rt.Step(ctx, t0, client.Input{Shoot: true}); err != nil {
		t.Fatalf("Step: %v", err)
	}

	shoot, ok := sent[0].(domain.Shoot)
	if !ok {
		t.Fatalf("first send = %#v, want Shoot", sent[0])
	}
	if _, ok := sent[1].(domain.UpdatePosition); !ok {
		t.Fatalf("second send = %#v, want UpdatePosition", sent[1])
	}
	cfg := client.DefaultConfig()
	if d := shoot.Position.Vec().Sub(rt.Position()).Len(); math.Abs(d-cfg.MuzzleOffset) > 1e-9 {
		t.Errorf("muzzle distance = %v, want %v", d, cfg.MuzzleOffset)
	}
	if shoot.Direction.Vec() != rt.Forward() {
		t.Errorf("direction = %v, want forward %v", shoot.Direction, rt.Forward())
	}

	ps := rt.Projectiles()
	if len(ps) != 1 || ps[0].OwnerID != "me" || len(scene.spawned) != 1 {
		t.Fatalf("projectiles = %+v, spawned = %d", ps, len(scene.spawned))
	}
}

func TestRuntime_ProjectileExpiresAtLifetime(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mocks.NewMockSender(ctrl)
	sender.EXPECT().Send(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	scene := &recordingScene{}
	rt := newRuntime(t, sender, scene)
	ctx := context.Background()
	_ = rt.Apply(ctx, domain.Assign{ID: "me"})

	t0 := time.Unix(100, 0)
	_ = rt.Step(ctx, t0, client.Input{Shoot: true})

	_ = rt.Step(ctx, t0.Add(2999*time.Millisecond), client.Input{})
	if len(rt.Projectiles()) != 1 {
		t.Fatalf("projectiles at 2999ms = %d, want 1", len(rt.Projectiles()))
	}
	_ = rt.Step(ctx, t0.Add(3000*time.Millisecond), client.Input{})
	if len(rt.Projectiles()) != 0 {
		t.Fatalf("projectiles at 3000ms = %d, want 0", len(rt.Projectiles()))
	}
	if len(scene.removed) != 1 {
		t.Errorf("removed = %d, want 1", len(scene.removed))
	}
}

func TestRuntime_MovesAlongSurface(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mocks.NewMockSender(ctrl)
	sender.EXPECT().Send(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	rt := newRuntime(t, sender, nil)
	ctx := context.Background()
	_ = rt.Apply(ctx, domain.Assign{ID: "me"})

	cfg := client.DefaultConfig()
	now := time.Unix(100, 0)
	for i := range 120 {
		in := client.Input{Forward: true}
		if i >= 60 {
			in.Turn = 0.5
		}
		if err := rt.Step(ctx, now, in); err != nil {
			t.Fatalf("Step: %v", err)
		}
		now = now.Add(cfg.World.Step)

		alt := cfg.World.Planet.Altitude(rt.Position())
		if alt < cfg.World.MinOrbit-1e-9 || alt > cfg.World.MaxOrbit {
			t.Fatalf("step %d: altitude %v outside [%v, %v]", i, alt, cfg.World.MinOrbit, cfg.World.MaxOrbit)
		}
		up := cfg.World.Planet.Up(rt.Position())
		if f := rt.Forward(); math.Abs(f.Len()-1) > 1e-9 || math.Abs(f.Dot(up)) > 1e-9 {
			t.Fatalf("step %d: forward %v is not a unit tangent", i, f)
		}
		if i == 59 && rt.Position()[2] > -0.5 {
			t.Fatalf("after 1s position = %v, want moved toward -Z", rt.Position())
		}
	}
}

func TestRuntime_RunningAfterShotNeverReachesOwnShotOrigin(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mocks.NewMockSender(ctrl)
	var origin *mgl64.Vec3
	sender.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, ev domain.Event) error {
		if s, ok := ev.(domain.Shoot); ok {
			o := s.Position.Vec()
			origin = &o
		}
		return nil
	}).AnyTimes()
	rt := newRuntime(t, sender, nil)
	ctx := context.Background()
	_ = rt.Apply(ctx, domain.Assign{ID: "me"})

	cfg := client.DefaultConfig()
	now := time.Unix(100, 0)
	step := func(in client.Input) {
		t.Helper()
		if err := rt.Step(ctx, now, in); err != nil {
			t.Fatalf("Step: %v", err)
		}
		now = now.Add(cfg.World.Step)
	}

	for range 60 {
		step(client.Input{Forward: true})
	}
	step(client.Input{Forward: true, Shoot: true})
	if origin == nil {
		t.Fatal("shot was not sent")
	}

	// サーバーは寿命切れの弾も次の掃引までは判定するので、寿命 + 掃引間隔の間走り続ける
	window := cfg.ShotLifetime + cfg.SweepInterval
	closest := math.MaxFloat64
	for elapsed := time.Duration(0); elapsed < window; elapsed += cfg.World.Step {
		step(client.Input{Forward: true})
		d := rt.Position().Sub(*origin).Len()
		if d < cfg.HitRadius {
			t.Fatalf("after %v: distance to own shot origin = %v, want >= %v", elapsed, d, cfg.HitRadius)
		}
		closest = min(closest, d)

		alt := cfg.World.Planet.Altitude(rt.Position())
		if alt < cfg.World.MinOrbit-1e-9 {
			t.Fatalf("after %v: altitude %v below surface", elapsed, alt)
		}
	}
	if closest >= cfg.MuzzleOffset {
		t.Errorf("closest approach = %v, want the runner to close in on the shot origin", closest)
	}
}

func TestRuntime_ShotGuardExpires(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mocks.NewMockSender(ctrl)
	var origin mgl64.Vec3
	sender.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, ev domain.Event) error {
		if s, ok := ev.(domain.Shoot); ok {
			origin = s.Position.Vec()
		}
		return nil
	}).AnyTimes()
	rt := newRuntime(t, sender, nil)
	ctx := context.Background()
	_ = rt.Apply(ctx, domain.Assign{ID: "me"})

	cfg := client.DefaultConfig()
	t0 := time.Unix(100, 0)
	_ = rt.Step(ctx, t0, client.Input{Shoot: true})

	// 期限後は発砲位置を通り抜けられる
	now := t0.Add(cfg.ShotLifetime + cfg.SweepInterval + cfg.LatencyAllowance)
	closest := math.MaxFloat64
	for range 120 {
		_ = rt.Step(ctx, now, client.Input{Forward: true})
		now = now.Add(cfg.World.Step)
		closest = min(closest, rt.Position().Sub(origin).Len())
	}
	if closest >= cfg.HitRadius {
		t.Errorf("closest approach after guard expiry = %v, want < %v", closest, cfg.HitRadius)
	}
}

func TestRuntime_ApplyRemoteEvents(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mocks.NewMockSender(ctrl)
	scene := &recordingScene{}
	t0 := time.Unix(100, 0)
	rt := newRuntime(t, sender, scene, client.WithClock(func() time.Time { return t0 }))
	ctx := context.Background()
	_ = rt.Apply(ctx, domain.Assign{ID: "me"})

	_ = rt.Apply(ctx, domain.UpdatePosition{ID: "other", Position: domain.Vec3{X: 1, Y: 10.5}, Rotation: 0.5})
	p, ok := rt.Remote("other")
	if !ok || p.Position != (mgl64.Vec3{1, 10.5, 0}) || p.Rotation != 0.5 {
		t.Fatalf("remote = %+v, %v", p, ok)
	}

	// 自分の更新は無視
	_ = rt.Apply(ctx, domain.UpdatePosition{ID: "me", Position: domain.Vec3{X: 99}})
	if _, ok := rt.Remote("me"); ok {
		t.Error("own update should not create a remote player")
	}

	_ = rt.Apply(ctx, domain.PlayerShot{ID: "other", Position: domain.Vec3{X: 1, Y: 10.5}, Direction: domain.Vec3{Z: 1}})
	ps := rt.Projectiles()
	if len(ps) != 1 || ps[0].OwnerID != "other" || !ps[0].SpawnTime.Equal(t0) {
		t.Fatalf("projectiles = %+v", ps)
	}

	_ = rt.Apply(ctx, domain.PlayerDisconnected{ID: "other"})
	if _, ok := rt.Remote("other"); ok {
		t.Error("disconnected player should be removed")
	}
	if len(scene.players) != 1 || scene.players[0] != "other" {
		t.Errorf("scene removed players = %v, want [other]", scene.players)
	}
}

func TestRuntime_HitRemovesVictimAndNearbyProjectiles(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mocks.NewMockSender(ctrl)
	scene := &recordingScene{}
	rt := newRuntime(t, sender, scene)
	ctx := context.Background()
	_ = rt.Apply(ctx, domain.Assign{ID: "me"})

	_ = rt.Apply(ctx, domain.UpdatePosition{ID: "victim", Position: domain.Vec3{X: 5}})
	_ = rt.Apply(ctx, domain.PlayerShot{ID: "a", Position: domain.Vec3{X: 5.5}, Direction: domain.Vec3{Y: 1}})
	_ = rt.Apply(ctx, domain.PlayerShot{ID: "b", Position: domain.Vec3{X: -5}, Direction: domain.Vec3{Y: 1}})

	_ = rt.Apply(ctx, domain.PlayerHit{ID: "victim"})

	if _, ok := rt.Remote("victim"); ok {
		t.Error("hit player should be removed")
	}
	ps := rt.Projectiles()
	if len(ps) != 1 || ps[0].OwnerID != "b" {
		t.Errorf("projectiles = %+v, want only b's", ps)
	}
}

func TestRuntime_SelfHitEliminates(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mocks.NewMockSender(ctrl)
	rt := newRuntime(t, sender, nil)
	ctx := context.Background()
	_ = rt.Apply(ctx, domain.Assign{ID: "me"})

	_ = rt.Apply(ctx, domain.PlayerHit{ID: "me"})
	_ = rt.Apply(ctx, domain.PlayerDisconnected{ID: "me"})

	if !rt.Eliminated() {
		t.Fatal("runtime should be eliminated")
	}
	// 脱落後は何も送らない
	if err := rt.Step(ctx, time.Unix(100, 0), client.Input{Forward: true, Shoot: true}); err != nil {
		t.Fatalf("Step: %v", err)
	}
}

func TestRuntime_PingAnsweredWithPong(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mocks.NewMockSender(ctrl)
	sender.EXPECT().Send(gomock.Any(), domain.Pong{Timestamp: 42}).Return(nil)
	rt := newRuntime(t, sender, nil)

	if err := rt.Apply(context.Background(), domain.Ping{Timestamp: 42}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
}
