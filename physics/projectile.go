package physics

import (
	"errors"
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

// DefaultProjectileLifetime は弾の寿命です。
const DefaultProjectileLifetime = 3000 * time.Millisecond

var ErrZeroDirection = errors.New("projectile direction must be non-zero")

// Projectile はクライアント側で生成・消滅する弾です。重力の影響は受けません。
type Projectile struct {
	OwnerID   string
	Position  mgl64.Vec3
	Velocity  mgl64.Vec3
	SpawnTime time.Time
	Lifetime  time.Duration
}

// Spawn は direction 方向へ speed で飛ぶ弾を生成します。
func Spawn(ownerID string, origin, direction mgl64.Vec3, speed float64, now time.Time, lifetime time.Duration) (Projectile, error) {
	if direction.Len() == 0 {
		return Projectile{}, ErrZeroDirection
	}
	return Projectile{
		OwnerID:   ownerID,
		Position:  origin,
		Velocity:  direction.Normalize().Mul(speed),
		SpawnTime: now,
		Lifetime:  lifetime,
	}, nil
}

// Expired は now 時点で寿命を迎えているかを返します。
func (p Projectile) Expired(now time.Time) bool {
	return now.Sub(p.SpawnTime) >= p.Lifetime
}

// Expire は寿命切れの弾を取り除いた survivors と、取り除いた expired を返します。
// 入力スライスは変更しません。同じ now で何度呼んでも結果は同じです。
func Expire(projectiles []Projectile, now time.Time) (survivors, expired []Projectile) {
	survivors = make([]Projectile, 0, len(projectiles))
	for _, p := range projectiles {
		if p.Expired(now) {
			expired = append(expired, p)
			continue
		}
		survivors = append(survivors, p)
	}
	return survivors, expired
}

// Advance は全弾を dt 分だけ速度方向に進めます。
func Advance(projectiles []Projectile, dt time.Duration) {
	s := dt.Seconds()
	for i := range projectiles {
		projectiles[i].Position = projectiles[i].Position.Add(projectiles[i].Velocity.Mul(s))
	}
}
