package domain

import (
	"context"
	"time"
)

// Application はRoomのイベントループ上で実行されるゲームロジックです。
// 全メソッドはRoomの単一goroutineから呼ばれるため、内部状態にロックは不要です。
type Application interface {
	OnJoin(ctx context.Context, sessionID SessionID, out Outbox)
	OnLeave(ctx context.Context, sessionID SessionID, out Outbox)
	HandleEvent(ctx context.Context, sessionID SessionID, ev Event, out Outbox) error
	Tick(ctx context.Context, now time.Time, out Outbox)
}

// Outbox はApplicationから見た送信先です。宛先の解決はRoomが接続中セッションに対して行います。
type Outbox interface {
	Broadcast(ctx context.Context, ev Event)
	BroadcastExcept(ctx context.Context, except SessionID, ev Event)
	SendTo(ctx context.Context, sessionID SessionID, ev Event)
}
