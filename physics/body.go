// Package physics は惑星表面に張り付くキャラクター用の放射重力モデルです。
package physics

import "github.com/go-gl/mathgl/mgl64"

// Body はシミュレーション上の剛体です。Mass 0 は不動体を表します。
type Body struct {
	ID       string
	Position mgl64.Vec3
	Velocity mgl64.Vec3
	Rotation float64 // yaw (rad)
	Mass     float64

	force mgl64.Vec3
}

// Movable は積分対象かどうかを返します。
func (b *Body) Movable() bool {
	return b.Mass > 0
}

// AddForce はこのtickの力アキュムレータに力を加算します。
func (b *Body) AddForce(f mgl64.Vec3) {
	b.force = b.force.Add(f)
}

// Force はこのtickに蓄積された力を返します。
func (b *Body) Force() mgl64.Vec3 {
	return b.force
}

func (b *Body) clearForce() {
	b.force = mgl64.Vec3{}
}

// Planet は中心固定の球体です。
type Planet struct {
	Center mgl64.Vec3
	Radius float64
}

// Up は position における局所的な上方向（中心から外向き）を返します。
// 中心上ではワールドの +Y を返します。
func (p Planet) Up(position mgl64.Vec3) mgl64.Vec3 {
	d := position.Sub(p.Center)
	if d.Len() == 0 {
		return mgl64.Vec3{0, 1, 0}
	}
	return d.Normalize()
}

// Altitude は中心からの距離を返します。
func (p Planet) Altitude(position mgl64.Vec3) float64 {
	return position.Sub(p.Center).Len()
}
