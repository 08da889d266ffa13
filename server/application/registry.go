package application

import (
	"slices"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"orbitfire/server/domain"
)

// DefaultSpawnPosition は接続直後のプレイヤーを置く惑星外の位置です。
// 最初の updatePosition で上書きされるまで、どの弾にも当たりません。
var DefaultSpawnPosition = mgl64.Vec3{0, -100, 0}

// PlayerRecord はサーバーが保持するプレイヤーの最新状態です。
type PlayerRecord struct {
	ID       domain.SessionID
	Position mgl64.Vec3
	Rotation float64
	LastSeen time.Time
}

// PlayerRegistry は接続中プレイヤーを参加順に保持します。
// Roomのイベントループからのみ操作されるためロックを持ちません。
type PlayerRegistry struct {
	order   []domain.SessionID
	players map[domain.SessionID]*PlayerRecord
}

func NewPlayerRegistry() *PlayerRegistry {
	return &PlayerRegistry{
		players: make(map[domain.SessionID]*PlayerRecord),
	}
}

// Insert は番兵位置にレコードを作成します。既に存在する場合はそれを返します。
func (r *PlayerRegistry) Insert(id domain.SessionID, now time.Time) *PlayerRecord {
	if p, ok := r.players[id]; ok {
		return p
	}
	p := &PlayerRecord{
		ID:       id,
		Position: DefaultSpawnPosition,
		LastSeen: now,
	}
	r.players[id] = p
	r.order = append(r.order, id)
	return p
}

// Upsert は最新の位置で上書きします（後勝ち）。被弾で消えたレコードも再作成されます。
func (r *PlayerRegistry) Upsert(id domain.SessionID, position mgl64.Vec3, rotation float64, now time.Time) *PlayerRecord {
	p := r.Insert(id, now)
	p.Position = position
	p.Rotation = rotation
	p.LastSeen = now
	return p
}

func (r *PlayerRegistry) Remove(id domain.SessionID) bool {
	if _, ok := r.players[id]; !ok {
		return false
	}
	delete(r.players, id)
	r.order = slices.DeleteFunc(r.order, func(v domain.SessionID) bool { return v == id })
	return true
}

// RemoveAll はマーク済みのIDをまとめて取り除き、参加順を詰めます。
func (r *PlayerRegistry) RemoveAll(marked map[domain.SessionID]struct{}) {
	if len(marked) == 0 {
		return
	}
	for id := range marked {
		delete(r.players, id)
	}
	r.order = slices.DeleteFunc(r.order, func(v domain.SessionID) bool {
		_, ok := marked[v]
		return ok
	})
}

func (r *PlayerRegistry) Get(id domain.SessionID) (*PlayerRecord, bool) {
	p, ok := r.players[id]
	return p, ok
}

func (r *PlayerRegistry) Len() int {
	return len(r.order)
}

// All は参加順のスナップショットを返します。
func (r *PlayerRegistry) All() []PlayerRecord {
	out := make([]PlayerRecord, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.players[id])
	}
	return out
}
