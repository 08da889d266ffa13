package physics

import (
	"log/slog"

	"github.com/go-gl/mathgl/mgl64"
)

// Gravity は position から center へ向かう逆二乗の引力を返します。
// position が center と一致する場合はゼロベクトルを返します。
func Gravity(position, center mgl64.Vec3, strength float64) mgl64.Vec3 {
	d := center.Sub(position)
	distSq := d.Dot(d)
	if distSq == 0 {
		slog.Debug("gravity: body at center, returning zero force", "position", position)
		return mgl64.Vec3{}
	}
	return d.Normalize().Mul(strength / distSq)
}

// Retention は maxDistance を超えた分に比例して中心方向へ引き戻すばね力を返します。
// maxDistance 以内ではゼロです。位置のクランプは行いません。
func Retention(position, center mgl64.Vec3, maxDistance, strength float64) mgl64.Vec3 {
	d := center.Sub(position)
	dist := d.Len()
	if dist <= maxDistance {
		return mgl64.Vec3{}
	}
	return d.Mul(1 / dist).Mul(strength * (dist - maxDistance))
}

// ResolveContact は center から minDistance より内側に入った物体を球面上へ押し戻し、
// center へ向かう速度成分を取り除きます。接触した場合 true を返します。
// 惑星表面のほか、球形の障害物にも使います。
func ResolveContact(b *Body, center mgl64.Vec3, minDistance float64) bool {
	offset := b.Position.Sub(center)
	dist := offset.Len()
	if dist >= minDistance {
		return false
	}

	normal := mgl64.Vec3{0, 1, 0}
	if dist > 0 {
		normal = offset.Mul(1 / dist)
	}
	b.Position = center.Add(normal.Mul(minDistance))

	if inward := b.Velocity.Dot(normal); inward < 0 {
		b.Velocity = b.Velocity.Sub(normal.Mul(inward))
	}
	return true
}
