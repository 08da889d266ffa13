package client

import (
	"github.com/go-gl/mathgl/mgl64"

	"orbitfire/physics"
	"orbitfire/server/domain"
)

// Input は1tick分の操作です。Turn は [-1, 1] で、正が左旋回です。
// Shoot はそのtickに発砲するかどうかで、連射制御は入力側が行います。
type Input struct {
	Forward bool
	Back    bool
	Left    bool
	Right   bool
	Turn    float64
	Shoot   bool
}

// Controller は現在の状況から次の入力を決めます。
type Controller interface {
	Decide(view View) Input
}

// RemotePlayer は他クライアントから中継された最新の状態です。
type RemotePlayer struct {
	ID       domain.SessionID
	Position mgl64.Vec3
	Rotation float64
}

// View はコントローラに渡す読み取り専用のスナップショットです。
type View struct {
	ID          domain.SessionID
	Position    mgl64.Vec3
	Forward     mgl64.Vec3
	Up          mgl64.Vec3
	Eliminated  bool
	Remote      []RemotePlayer
	Projectiles []physics.Projectile
}
