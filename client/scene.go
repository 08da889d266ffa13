package client

import (
	"github.com/go-gl/mathgl/mgl64"

	"orbitfire/physics"
	"orbitfire/server/domain"
)

// Scene は描画側への通知先です。弾の表示や物理表現の解放は Scene 側の責務です。
type Scene interface {
	ProjectileSpawned(p physics.Projectile)
	ProjectileRemoved(p physics.Projectile)
	PlayerUpdated(id domain.SessionID, position mgl64.Vec3, rotation float64)
	PlayerRemoved(id domain.SessionID)
}

// NopScene は何もしない Scene です。ボットのように描画しないクライアントで使います。
type NopScene struct{}

func (NopScene) ProjectileSpawned(physics.Projectile)                {}
func (NopScene) ProjectileRemoved(physics.Projectile)                {}
func (NopScene) PlayerUpdated(domain.SessionID, mgl64.Vec3, float64) {}
func (NopScene) PlayerRemoved(domain.SessionID)                      {}
