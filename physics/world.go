package physics

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

// WorldConfig は放射重力ワールドのパラメータです。
type WorldConfig struct {
	Planet            Planet
	GravityStrength   float64
	RetentionStrength float64
	MinOrbit          float64 // 惑星表面 + キャラクター半身
	MaxOrbit          float64
	LinearDamping     float64 // 1秒あたりの速度減衰率 [0, 1)
	Step              time.Duration
}

// DefaultWorldConfig は半径10の惑星と 1x1x1 のキャラクターを想定した値です。
func DefaultWorldConfig() WorldConfig {
	return WorldConfig{
		Planet:            Planet{Radius: 10},
		GravityStrength:   2000,
		RetentionStrength: 60,
		MinOrbit:          10.5,
		MaxOrbit:          11,
		LinearDamping:     0.5,
		Step:              time.Second / 60,
	}
}

var ErrInvalidWorldConfig = errors.New("invalid world config")

func (c WorldConfig) validate() error {
	switch {
	case c.Step <= 0:
		return fmt.Errorf("%w: step must be positive", ErrInvalidWorldConfig)
	case c.MinOrbit < c.Planet.Radius:
		return fmt.Errorf("%w: min orbit inside planet", ErrInvalidWorldConfig)
	case c.MaxOrbit < c.MinOrbit:
		return fmt.Errorf("%w: max orbit below min orbit", ErrInvalidWorldConfig)
	case c.LinearDamping < 0 || c.LinearDamping >= 1:
		return fmt.Errorf("%w: damping out of range", ErrInvalidWorldConfig)
	}
	return nil
}

// World は固定ステップで物体を積分します。所有者のtickからのみ操作されます。
type World struct {
	cfg    WorldConfig
	bodies []*Body
}

func NewWorld(cfg WorldConfig) (*World, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &World{cfg: cfg}, nil
}

func (w *World) Config() WorldConfig { return w.cfg }

func (w *World) Add(b *Body) {
	w.bodies = append(w.bodies, b)
}

func (w *World) Remove(id string) {
	kept := w.bodies[:0]
	for _, b := range w.bodies {
		if b.ID != id {
			kept = append(kept, b)
		}
	}
	clear(w.bodies[len(kept):])
	w.bodies = kept
}

func (w *World) Bodies() []*Body { return w.bodies }

// Step は1tick進めます。
// 重力と保持力を力アキュムレータに加算し、半陰的オイラー法で積分した後、表面接触を解決します。
func (w *World) Step() {
	dt := w.cfg.Step.Seconds()
	center := w.cfg.Planet.Center
	damping := math.Pow(1-w.cfg.LinearDamping, dt)

	for _, b := range w.bodies {
		if !b.Movable() {
			b.clearForce()
			continue
		}
		b.AddForce(Gravity(b.Position, center, w.cfg.GravityStrength))
		b.AddForce(Retention(b.Position, center, w.cfg.MaxOrbit, w.cfg.RetentionStrength))

		accel := b.force.Mul(1 / b.Mass)
		b.Velocity = b.Velocity.Add(accel.Mul(dt)).Mul(damping)
		b.Position = b.Position.Add(b.Velocity.Mul(dt))
		b.clearForce()

		ResolveContact(b, center, w.cfg.MinOrbit)
	}
}

// Tangent は position の接平面へ v を射影します。
func (w *World) Tangent(position, v mgl64.Vec3) mgl64.Vec3 {
	up := w.cfg.Planet.Up(position)
	return v.Sub(up.Mul(v.Dot(up)))
}
