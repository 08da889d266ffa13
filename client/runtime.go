// Package client はローカル物理とサーバー中継を結ぶクライアントランタイムです。
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"orbitfire/physics"
	"orbitfire/server/domain"
)

// Config はクライアント側の操作感と弾のパラメータです。
type Config struct {
	World        physics.WorldConfig
	Mass         float64
	MoveForce    float64
	TurnRate     float64 // rad/s
	ShotSpeed    float64
	ShotLifetime time.Duration
	MuzzleOffset float64 // 発砲位置を自機から前方へずらす距離
	HitRadius    float64
	// ShotClearance は自分の発砲位置に近づける限界を命中半径の外側に取る幅です。
	// 1tickの移動量より大きくなければなりません。
	ShotClearance float64
	// サーバーは寿命切れの弾も次の掃引までは判定に使うため、
	// 自分の発砲位置を避ける期間は ShotLifetime + SweepInterval + LatencyAllowance です。
	SweepInterval    time.Duration
	LatencyAllowance time.Duration
	SpawnPosition    mgl64.Vec3
	SpawnForward     mgl64.Vec3
}

func DefaultConfig() Config {
	world := physics.DefaultWorldConfig()
	return Config{
		World:            world,
		Mass:             1,
		MoveForce:        4,
		TurnRate:         math.Pi,
		ShotSpeed:        20,
		ShotLifetime:     physics.DefaultProjectileLifetime,
		MuzzleOffset:     2,
		HitRadius:        1,
		ShotClearance:    0.5,
		SweepInterval:    domain.DefaultSweepInterval,
		LatencyAllowance: 500 * time.Millisecond,
		SpawnPosition:    mgl64.Vec3{0, world.MinOrbit, 0},
		SpawnForward:     mgl64.Vec3{0, 0, -1},
	}
}

var ErrInvalidClientConfig = errors.New("invalid client config")

func (c Config) validate() error {
	switch {
	case !(c.Mass > 0):
		return fmt.Errorf("%w: mass must be positive", ErrInvalidClientConfig)
	case !(c.ShotSpeed > 0):
		return fmt.Errorf("%w: shot speed must be positive", ErrInvalidClientConfig)
	case c.ShotLifetime <= 0:
		return fmt.Errorf("%w: shot lifetime must be positive", ErrInvalidClientConfig)
	case !(c.World.LinearDamping > 0):
		return fmt.Errorf("%w: damping must be positive to bound speed", ErrInvalidClientConfig)
	case !(c.ShotClearance > c.maxStepTravel()):
		return fmt.Errorf("%w: shot clearance %v must exceed travel per tick %v", ErrInvalidClientConfig, c.ShotClearance, c.maxStepTravel())
	case c.MuzzleOffset <= c.HitRadius+c.ShotClearance:
		return fmt.Errorf("%w: muzzle offset must exceed hit radius plus clearance", ErrInvalidClientConfig)
	case c.SweepInterval <= 0 || c.LatencyAllowance < 0:
		return fmt.Errorf("%w: sweep interval must be positive", ErrInvalidClientConfig)
	}
	return nil
}

// maxStepTravel は移動入力だけで到達する終端速度での1tickの移動距離です。
// 減衰は v *= (1-damping)^dt なので、抗力係数は -ln(1-damping) です。
func (c Config) maxStepTravel() float64 {
	drag := -math.Log(1 - c.World.LinearDamping)
	return c.MoveForce / (c.Mass * drag) * c.World.Step.Seconds()
}

// shotGuardWindow は自分の発砲記録がサーバーで命中判定に使われうる期間です。
func (c Config) shotGuardWindow() time.Duration {
	return c.ShotLifetime + c.SweepInterval + c.LatencyAllowance
}

// shotGuard は自分の発砲位置です。期限まで自機はこの周囲に入りません。
type shotGuard struct {
	origin mgl64.Vec3
	until  time.Time
}

// Runtime は1クライアント分の状態です。Apply と Step は同じgoroutineから呼ぶ必要があります。
type Runtime struct {
	cfg   Config
	world *physics.World
	self  *physics.Body
	// forward は自機の接平面上の単位前方ベクトル
	forward mgl64.Vec3

	id          domain.SessionID
	eliminated  bool
	projectiles []physics.Projectile
	guards      []shotGuard
	remote      map[domain.SessionID]*RemotePlayer

	sender Sender
	scene  Scene
	now    func() time.Time
}

type RuntimeOption func(*Runtime)

// WithClock は中継された弾の生成時刻に使う時計を差し替えます。
func WithClock(now func() time.Time) RuntimeOption {
	return func(r *Runtime) { r.now = now }
}

func NewRuntime(cfg Config, sender Sender, scene Scene, opts ...RuntimeOption) (*Runtime, error) {
	if sender == nil {
		return nil, domain.ErrInitializationFailed
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	world, err := physics.NewWorld(cfg.World)
	if err != nil {
		return nil, err
	}
	if scene == nil {
		scene = NopScene{}
	}

	self := &physics.Body{Position: cfg.SpawnPosition, Mass: cfg.Mass}
	world.Add(self)

	r := &Runtime{
		cfg:    cfg,
		world:  world,
		self:   self,
		remote: make(map[domain.SessionID]*RemotePlayer),
		sender: sender,
		scene:  scene,
		now:    time.Now,
	}
	r.forward, err = r.tangentUnit(cfg.SpawnForward)
	if err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Runtime) ID() domain.SessionID { return r.id }

func (r *Runtime) Eliminated() bool { return r.eliminated }

func (r *Runtime) Position() mgl64.Vec3 { return r.self.Position }

func (r *Runtime) Forward() mgl64.Vec3 { return r.forward }

func (r *Runtime) Projectiles() []physics.Projectile { return slices.Clone(r.projectiles) }

func (r *Runtime) Remote(id domain.SessionID) (RemotePlayer, bool) {
	p, ok := r.remote[id]
	if !ok {
		return RemotePlayer{}, false
	}
	return *p, true
}

// View はコントローラ向けのスナップショットを返します。Remote はID順です。
func (r *Runtime) View() View {
	remote := make([]RemotePlayer, 0, len(r.remote))
	for _, p := range r.remote {
		remote = append(remote, *p)
	}
	slices.SortFunc(remote, func(a, b RemotePlayer) int { return strings.Compare(a.ID.String(), b.ID.String()) })
	return View{
		ID:          r.id,
		Position:    r.self.Position,
		Forward:     r.forward,
		Up:          r.cfg.World.Planet.Up(r.self.Position),
		Eliminated:  r.eliminated,
		Remote:      remote,
		Projectiles: r.Projectiles(),
	}
}

// Apply はサーバーからのイベントを状態に反映します。
func (r *Runtime) Apply(ctx context.Context, ev domain.Event) error {
	switch ev := ev.(type) {
	case domain.Assign:
		r.id = ev.ID
		r.self.ID = ev.ID.String()
		slog.InfoContext(ctx, "session assigned", "sessionID", ev.ID)
	case domain.UpdatePosition:
		if ev.ID == r.id {
			return nil
		}
		p, ok := r.remote[ev.ID]
		if !ok {
			p = &RemotePlayer{ID: ev.ID}
			r.remote[ev.ID] = p
		}
		p.Position = ev.Position.Vec()
		p.Rotation = ev.Rotation
		r.scene.PlayerUpdated(ev.ID, p.Position, p.Rotation)
	case domain.PlayerShot:
		if ev.ID == r.id {
			return nil
		}
		p, err := physics.Spawn(ev.ID.String(), ev.Position.Vec(), ev.Direction.Vec(), r.cfg.ShotSpeed, r.now(), r.cfg.ShotLifetime)
		if err != nil {
			return fmt.Errorf("relayed shot from %s: %w", ev.ID, err)
		}
		r.projectiles = append(r.projectiles, p)
		r.scene.ProjectileSpawned(p)
	case domain.PlayerHit:
		if ev.ID == r.id {
			r.eliminate(ctx)
			return nil
		}
		if p, ok := r.remote[ev.ID]; ok {
			r.removeProjectilesNear(p.Position)
		}
		r.removeRemote(ev.ID)
	case domain.PlayerDisconnected:
		if ev.ID == r.id {
			r.eliminate(ctx)
			return nil
		}
		r.removeRemote(ev.ID)
	case domain.Ping:
		return r.sender.Send(ctx, domain.Pong{Timestamp: ev.Timestamp})
	default:
		slog.DebugContext(ctx, "ignoring event", "event", ev.Name())
	}
	return nil
}

// Step は1tick進めます。自機に操作と物理を適用し、弾を進めて寿命切れを片付けた後、
// 割り当て済みなら発砲と位置をサーバーへ送ります。
func (r *Runtime) Step(ctx context.Context, now time.Time, in Input) error {
	active := r.id != "" && !r.eliminated
	var (
		shot   bool
		origin mgl64.Vec3
	)

	if active {
		r.steer(in)
		r.world.Step()
		r.keepClearOfOwnShots(now)
		if f, err := r.tangentUnit(r.forward); err == nil {
			r.forward = f
		}
		if in.Shoot {
			origin = r.self.Position.Add(r.forward.Mul(r.cfg.MuzzleOffset))
			p, err := physics.Spawn(r.id.String(), origin, r.forward, r.cfg.ShotSpeed, now, r.cfg.ShotLifetime)
			if err != nil {
				return err
			}
			r.projectiles = append(r.projectiles, p)
			r.guards = append(r.guards, shotGuard{origin: origin, until: now.Add(r.cfg.shotGuardWindow())})
			r.scene.ProjectileSpawned(p)
			shot = true
		}
	}

	physics.Advance(r.projectiles, r.cfg.World.Step)
	survivors, expired := physics.Expire(r.projectiles, now)
	r.projectiles = survivors
	for _, p := range expired {
		r.scene.ProjectileRemoved(p)
	}

	if !active {
		return nil
	}
	if shot {
		err := r.sender.Send(ctx, domain.Shoot{
			Position:  domain.Vec3From(origin),
			Direction: domain.Vec3From(r.forward),
		})
		if err != nil {
			return fmt.Errorf("send shoot: %w", err)
		}
	}
	if err := r.sender.Send(ctx, domain.UpdatePosition{
		ID:       r.id,
		Position: domain.Vec3From(r.self.Position),
		Rotation: r.self.Rotation,
	}); err != nil {
		return fmt.Errorf("send position: %w", err)
	}
	return nil
}

// steer は旋回を前方ベクトルに適用し、移動入力を接平面上の力として加えます。
func (r *Runtime) steer(in Input) {
	dt := r.cfg.World.Step.Seconds()
	up := r.cfg.World.Planet.Up(r.self.Position)

	if turn := mgl64.Clamp(in.Turn, -1, 1); turn != 0 {
		angle := turn * r.cfg.TurnRate * dt
		r.forward = mgl64.QuatRotate(angle, up).Rotate(r.forward)
		r.self.Rotation += angle
	}

	right := r.forward.Cross(up)
	var move mgl64.Vec3
	if in.Forward {
		move = move.Add(r.forward)
	}
	if in.Back {
		move = move.Sub(r.forward)
	}
	if in.Right {
		move = move.Add(right)
	}
	if in.Left {
		move = move.Sub(right)
	}
	if move.Len() > 0 {
		r.self.AddForce(move.Normalize().Mul(r.cfg.MoveForce))
	}
}

// keepClearOfOwnShots は自機を自分の発砲位置から HitRadius+ShotClearance の外へ押し戻し、
// その位置へ向かう速度成分を取り除きます。押し戻した後は惑星表面との接触を解決し直します。
func (r *Runtime) keepClearOfOwnShots(now time.Time) {
	r.guards = slices.DeleteFunc(r.guards, func(g shotGuard) bool { return !now.Before(g.until) })
	if len(r.guards) == 0 {
		return
	}
	limit := r.cfg.HitRadius + r.cfg.ShotClearance
	pushed := false
	for _, g := range r.guards {
		if physics.ResolveContact(r.self, g.origin, limit) {
			pushed = true
		}
	}
	if pushed {
		physics.ResolveContact(r.self, r.cfg.World.Planet.Center, r.cfg.World.MinOrbit)
	}
}

func (r *Runtime) tangentUnit(v mgl64.Vec3) (mgl64.Vec3, error) {
	t := r.world.Tangent(r.self.Position, v)
	if t.Len() < 1e-9 {
		return mgl64.Vec3{}, fmt.Errorf("%w: forward is parallel to up", ErrInvalidClientConfig)
	}
	return t.Normalize(), nil
}

func (r *Runtime) eliminate(ctx context.Context) {
	if r.eliminated {
		return
	}
	r.eliminated = true
	r.guards = nil
	r.world.Remove(r.self.ID)
	r.scene.PlayerRemoved(r.id)
	slog.InfoContext(ctx, "eliminated", "sessionID", r.id)
}

func (r *Runtime) removeRemote(id domain.SessionID) {
	if _, ok := r.remote[id]; !ok {
		return
	}
	delete(r.remote, id)
	r.scene.PlayerRemoved(id)
}

func (r *Runtime) removeProjectilesNear(position mgl64.Vec3) {
	r.projectiles = slices.DeleteFunc(r.projectiles, func(p physics.Projectile) bool {
		if p.Position.Sub(position).Len() < r.cfg.HitRadius {
			r.scene.ProjectileRemoved(p)
			return true
		}
		return false
	})
}
