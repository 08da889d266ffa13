package client

import (
	"math"
	"math/rand/v2"

	"github.com/go-gl/mathgl/mgl64"
)

const (
	botDangerDist      = 3.0  // 弾丸回避を始める距離
	botNoiseAngle      = 0.52 // ±30度 (π/6 ≈ 0.52 rad)
	rushChance         = 0.02 // 毎tick 2% の確率で突撃
	botTurnGain        = 2.0
	botAimTolerance    = 0.15 // この角度以内なら発砲する (rad)
	botShootRange      = 15.0
	ShootCooldownTicks = 30 // 0.5秒 @60FPS
)

// RuleBotController はルールベースのボットAIです。
// ボットごとに異なる個性パラメータを持ちます。
type RuleBotController struct {
	CloseRange float64 // 後退を始める距離
	MidRange   float64 // ストレイフを始める距離
	StrafeSign float64 // +1: 左, -1: 右
	NoiseAngle float64
	RushChance float64

	cooldown int
}

var _ Controller = (*RuleBotController)(nil)

// NewRuleBotController はランダムな個性を持つボットAIを生成します。
func NewRuleBotController() *RuleBotController {
	strafeSign := 1.0
	if rand.Float64() < 0.5 {
		strafeSign = -1.0
	}
	return &RuleBotController{
		CloseRange: 3.0 + rand.Float64()*4.0, // 3〜7
		MidRange:   8.0 + rand.Float64()*6.0, // 8〜14
		StrafeSign: strafeSign,
		NoiseAngle: botNoiseAngle,
		RushChance: rushChance,
	}
}

func (r *RuleBotController) Decide(v View) Input {
	if r.cooldown > 0 {
		r.cooldown--
	}
	if v.ID == "" || v.Eliminated {
		return Input{}
	}

	// 被弾回避を優先
	if in, ok := r.evadeProjectile(v); ok {
		return in
	}

	// 最寄り敵がいなければ惑星上を徘徊
	nearest, ok := r.findNearestEnemy(v)
	if !ok {
		return Input{Forward: true, Turn: r.noise() / math.Pi}
	}

	toEnemy := nearest.Position.Sub(v.Position)
	dist := toEnemy.Len()
	if dist < 0.001 {
		return Input{}
	}
	dir := tangent(toEnemy, v.Up)
	if dir.Len() < 1e-9 {
		// 真上か真下にいる
		return Input{Forward: true}
	}
	dir = r.addNoise(dir.Normalize(), v.Up)

	angle := signedAngle(v.Forward, dir, v.Up)
	in := Input{Turn: mgl64.Clamp(angle*botTurnGain, -1, 1)}

	// ランダム突撃: 一定確率で距離に関係なく接近
	if rand.Float64() < r.RushChance {
		in.Forward = true
		return in
	}

	switch {
	case dist < r.CloseRange:
		// 近距離: 後退
		in.Back = true
	case dist < r.MidRange:
		// 中距離: 横移動（ストレイフ方向はボットごとに異なる）
		if r.StrafeSign >= 0 {
			in.Left = true
		} else {
			in.Right = true
		}
	default:
		// 遠距離: 接近
		in.Forward = true
	}

	if math.Abs(angle) < botAimTolerance && dist < botShootRange && r.cooldown == 0 {
		in.Shoot = true
		r.cooldown = ShootCooldownTicks
	}
	return in
}

// evadeProjectile は自分に向かってくる弾を弾道と垂直な方向へ避けます。
func (r *RuleBotController) evadeProjectile(v View) (Input, bool) {
	closestDist := math.MaxFloat64
	var closestVel mgl64.Vec3
	found := false

	for _, p := range v.Projectiles {
		if p.OwnerID == v.ID.String() {
			continue
		}
		d := v.Position.Sub(p.Position)
		dist := d.Len()
		if dist > botDangerDist {
			continue
		}
		// 弾が自分に向かっているか確認（内積 > 0）
		if d.Dot(p.Velocity) <= 0 {
			continue
		}
		if dist < closestDist {
			closestDist = dist
			closestVel = p.Velocity
			found = true
		}
	}
	if !found {
		return Input{}, false
	}

	side := tangent(closestVel.Cross(v.Up), v.Up)
	if side.Len() < 1e-9 {
		return Input{}, false
	}
	right := v.Forward.Cross(v.Up)
	if side.Dot(right) >= 0 {
		return Input{Right: true}, true
	}
	return Input{Left: true}, true
}

// findNearestEnemy は最寄りの他プレイヤーを探します。
func (r *RuleBotController) findNearestEnemy(v View) (RemotePlayer, bool) {
	var nearest RemotePlayer
	nearestDistSq := math.MaxFloat64
	found := false

	for _, other := range v.Remote {
		if other.ID == v.ID {
			continue
		}
		d := other.Position.Sub(v.Position)
		if distSq := d.Dot(d); distSq < nearestDistSq {
			nearestDistSq = distSq
			nearest = other
			found = true
		}
	}
	return nearest, found
}

func (r *RuleBotController) noise() float64 {
	if r.NoiseAngle == 0 {
		return 0
	}
	return (rand.Float64()*2 - 1) * r.NoiseAngle
}

// addNoise は接平面上の方向を up 軸まわりにランダムに回します。
func (r *RuleBotController) addNoise(dir, up mgl64.Vec3) mgl64.Vec3 {
	n := r.noise()
	if n == 0 {
		return dir
	}
	return mgl64.QuatRotate(n, up).Rotate(dir)
}

func tangent(v, up mgl64.Vec3) mgl64.Vec3 {
	return v.Sub(up.Mul(v.Dot(up)))
}

// signedAngle は up から見て from から to への角度です。正は左回り。
func signedAngle(from, to, up mgl64.Vec3) float64 {
	return math.Atan2(up.Dot(from.Cross(to)), from.Dot(to))
}
