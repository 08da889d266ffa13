package domain

import (
	"errors"

	"github.com/go-gl/mathgl/mgl64"
)

// EventName はワイヤ上のイベント名です。
type EventName string

const (
	EventUpdatePosition     EventName = "updatePosition"
	EventShoot              EventName = "shoot"
	EventPlayerShot         EventName = "playerShot"
	EventPlayerHit          EventName = "playerHit"
	EventPlayerDisconnected EventName = "playerDisconnected"
	EventAssign             EventName = "assign"
	EventPing               EventName = "ping"
	EventPong               EventName = "pong"
)

// Event はワイヤイベントのタグ付きバリアントです。
type Event interface {
	Name() EventName
}

var (
	ErrMalformedEnvelope = errors.New("malformed envelope")
	ErrMalformedPayload  = errors.New("malformed payload")
	ErrUnknownEvent      = errors.New("unknown event")
)

// Vec3 はワイヤ上の {x, y, z} です。
type Vec3 struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
	Z float64 `json:"z" msgpack:"z"`
}

func Vec3From(v mgl64.Vec3) Vec3 {
	return Vec3{X: v[0], Y: v[1], Z: v[2]}
}

func (v Vec3) Vec() mgl64.Vec3 {
	return mgl64.Vec3{v.X, v.Y, v.Z}
}

// UpdatePosition はクライアントが毎tick送る自機の位置と向き。
// サーバーは送信者以外へそのまま中継します。
type UpdatePosition struct {
	ID       SessionID `json:"id" msgpack:"id"`
	Position Vec3      `json:"position" msgpack:"position"`
	Rotation float64   `json:"rotation" msgpack:"rotation"`
}

// Shoot はクライアントの発砲通知。
type Shoot struct {
	Position  Vec3 `json:"position" msgpack:"position"`
	Direction Vec3 `json:"direction" msgpack:"direction"`
}

// PlayerShot は Shoot に送信者IDを付けて他クライアントへ中継したもの。
type PlayerShot struct {
	ID        SessionID `json:"id" msgpack:"id"`
	Position  Vec3      `json:"position" msgpack:"position"`
	Direction Vec3      `json:"direction" msgpack:"direction"`
}

type PlayerHit struct {
	ID SessionID `json:"id" msgpack:"id"`
}

// PlayerDisconnected のペイロードはIDの文字列そのものです。
type PlayerDisconnected struct {
	ID SessionID
}

// Assign は接続直後にクライアントへ自分のIDを通知します。
type Assign struct {
	ID SessionID `json:"id" msgpack:"id"`
}

// Ping / Pong の Timestamp は送信側の UnixMilli。
type Ping struct {
	Timestamp int64 `json:"ts" msgpack:"ts"`
}

type Pong struct {
	Timestamp int64 `json:"ts" msgpack:"ts"`
}

func (UpdatePosition) Name() EventName     { return EventUpdatePosition }
func (Shoot) Name() EventName              { return EventShoot }
func (PlayerShot) Name() EventName         { return EventPlayerShot }
func (PlayerHit) Name() EventName          { return EventPlayerHit }
func (PlayerDisconnected) Name() EventName { return EventPlayerDisconnected }
func (Assign) Name() EventName             { return EventAssign }
func (Ping) Name() EventName               { return EventPing }
func (Pong) Name() EventName               { return EventPong }
