package application

import (
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"orbitfire/server/domain"
)

// ShotRecord は命中判定のために保持される発砲記録です。位置は発砲時点から動きません。
type ShotRecord struct {
	OwnerID   domain.SessionID
	Position  mgl64.Vec3
	Direction mgl64.Vec3
	Timestamp time.Time
}

// Expired は now 時点で寿命を過ぎていれば true を返します。
func (s ShotRecord) Expired(now time.Time, lifetime time.Duration) bool {
	return now.Sub(s.Timestamp) >= lifetime
}

// ShotLog は到着順の発砲記録です。
type ShotLog struct {
	shots []ShotRecord
}

func NewShotLog() *ShotLog {
	return &ShotLog{}
}

func (l *ShotLog) Append(s ShotRecord) {
	l.shots = append(l.shots, s)
}

func (l *ShotLog) Len() int {
	return len(l.shots)
}

// All は到着順のスナップショットを返します。
func (l *ShotLog) All() []ShotRecord {
	out := make([]ShotRecord, len(l.shots))
	copy(out, l.shots)
	return out
}

// Compact は keep が false を返した記録を取り除きます。i は All() 上の添字です。
func (l *ShotLog) Compact(keep func(i int, s ShotRecord) bool) {
	n := 0
	for i, s := range l.shots {
		if keep(i, s) {
			l.shots[n] = s
			n++
		}
	}
	clear(l.shots[n:])
	l.shots = l.shots[:n]
}
