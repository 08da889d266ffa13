package domain

import "context"

//go:generate go tool mockgen -destination=./mocks/dispatcher_mock.go -package=mocks . Dispatcher

// Dispatcher はセッション層からRoomへのイベント配送を担当します。
type Dispatcher interface {
	// Join / Leave は破棄されてはならないためブロックします。
	Join(ctx context.Context, sessionID SessionID) error
	Leave(ctx context.Context, sessionID SessionID) error
	// Dispatch は通常のデータイベントを配送します。キューが満杯なら ErrRoomBusy を返し破棄します。
	Dispatch(ctx context.Context, sessionID SessionID, ev Event) error
}
