package application

import (
	"errors"
	"fmt"
	"time"

	"orbitfire/physics"
	"orbitfire/server/domain"
)

const (
	// DefaultHitRadius はプレイヤーの当たり判定半径です。
	DefaultHitRadius    = 1.0
	DefaultShotLifetime = physics.DefaultProjectileLifetime
)

var ErrInvalidHitDetector = errors.New("invalid hit detector parameters")

// Hit は1回の掃引で確定した命中です。
type Hit struct {
	PlayerID  domain.SessionID
	ShooterID domain.SessionID
}

// HitDetector は保持中の発砲記録とプレイヤー位置を突き合わせます。
type HitDetector struct {
	radius       float64
	shotLifetime time.Duration
}

func NewHitDetector(radius float64, shotLifetime time.Duration) (*HitDetector, error) {
	if !(radius > 0) {
		return nil, fmt.Errorf("%w: radius %v", ErrInvalidHitDetector, radius)
	}
	if shotLifetime <= 0 {
		return nil, fmt.Errorf("%w: shot lifetime %v", ErrInvalidHitDetector, shotLifetime)
	}
	return &HitDetector{radius: radius, shotLifetime: shotLifetime}, nil
}

func (d *HitDetector) Radius() float64 { return d.radius }

func (d *HitDetector) ShotLifetime() time.Duration { return d.shotLifetime }

// Sweep は発砲の到着順 × プレイヤーの参加順で距離を調べ、最初に当たった組を採用します。
// 命中したプレイヤーと弾、寿命切れの弾は走査の後でまとめて取り除きます。
func (d *HitDetector) Sweep(now time.Time, players *PlayerRegistry, shots *ShotLog) []Hit {
	var hits []Hit
	candidates := players.All()
	removedPlayers := make(map[domain.SessionID]struct{})
	removedShots := make([]bool, shots.Len())

	for i, shot := range shots.All() {
		for _, p := range candidates {
			if _, gone := removedPlayers[p.ID]; gone {
				continue
			}
			if shot.Position.Sub(p.Position).Len() < d.radius {
				hits = append(hits, Hit{PlayerID: p.ID, ShooterID: shot.OwnerID})
				removedPlayers[p.ID] = struct{}{}
				removedShots[i] = true
				break
			}
		}
	}

	players.RemoveAll(removedPlayers)
	shots.Compact(func(i int, s ShotRecord) bool {
		return !removedShots[i] && !s.Expired(now, d.shotLifetime)
	})
	return hits
}
