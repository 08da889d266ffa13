package domain

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

type RoomID string

var (
	ErrRoomBusy    = errors.New("room inbox is full")
	ErrRoomStopped = errors.New("room is not running")
)

const (
	DefaultSweepInterval = time.Second
	membershipQueueSize  = 64
)

type roomEventKind uint8

const (
	roomJoin roomEventKind = iota + 1
	roomLeave
	roomMessage
)

type roomEvent struct {
	kind      roomEventKind
	sessionID SessionID
	event     Event
}

// Room は接続中セッションの集合とApplicationを単一goroutineで所有します。
// 受信イベントはinboxから、定期処理はtickerから同じselectループで処理されます。
type Room struct {
	ID       RoomID
	sessions map[SessionID]struct{}

	pubsub      PubSub
	codec       Codec
	application Application

	// membership は参加と離脱だけを運び、inbox より先に処理されます。
	// データの混雑で離脱が押し出されることはありません。
	membership chan roomEvent
	inbox      chan roomEvent
	done       chan struct{}

	sweepInterval time.Duration
	now           func() time.Time
}

var (
	_ Dispatcher = (*Room)(nil)
	_ Outbox     = (*Room)(nil)
)

type RoomOption func(*Room)

func WithSweepInterval(d time.Duration) RoomOption {
	return func(r *Room) { r.sweepInterval = d }
}

func WithClock(now func() time.Time) RoomOption {
	return func(r *Room) { r.now = now }
}

func WithInboxSize(n int) RoomOption {
	return func(r *Room) { r.inbox = make(chan roomEvent, n) }
}

func NewRoom(id RoomID, pubsub PubSub, codec Codec, application Application, opts ...RoomOption) *Room {
	r := &Room{
		ID:            id,
		sessions:      make(map[SessionID]struct{}),
		pubsub:        pubsub,
		codec:         codec,
		application:   application,
		membership:    make(chan roomEvent, membershipQueueSize),
		inbox:         make(chan roomEvent, 1024),
		done:          make(chan struct{}),
		sweepInterval: DefaultSweepInterval,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Room) Join(ctx context.Context, sessionID SessionID) error {
	return r.enqueueWait(ctx, roomEvent{kind: roomJoin, sessionID: sessionID})
}

func (r *Room) Leave(ctx context.Context, sessionID SessionID) error {
	return r.enqueueWait(ctx, roomEvent{kind: roomLeave, sessionID: sessionID})
}

func (r *Room) Dispatch(ctx context.Context, sessionID SessionID, ev Event) error {
	if r.stopped() {
		return ErrRoomStopped
	}
	select {
	case <-r.done:
		return ErrRoomStopped
	case r.inbox <- roomEvent{kind: roomMessage, sessionID: sessionID, event: ev}:
		return nil
	default:
		return ErrRoomBusy
	}
}

func (r *Room) enqueueWait(ctx context.Context, ev roomEvent) error {
	if r.stopped() {
		return ErrRoomStopped
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrRoomStopped
	case r.membership <- ev:
		return nil
	}
}

func (r *Room) stopped() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Run はctxがキャンセルされるまでイベントループを回します。
func (r *Room) Run(ctx context.Context) error {
	defer close(r.done)

	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	for {
		// 参加と離脱を溜まっている分だけ先に反映する
	drain:
		for {
			select {
			case ev := <-r.membership:
				r.handle(ctx, ev)
			default:
				break drain
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case ev := <-r.membership:
			r.handle(ctx, ev)
		case ev := <-r.inbox:
			r.handle(ctx, ev)
		case <-ticker.C:
			r.application.Tick(ctx, r.now(), r)
		}
	}
}

func (r *Room) handle(ctx context.Context, ev roomEvent) {
	switch ev.kind {
	case roomJoin:
		r.sessions[ev.sessionID] = struct{}{}
		slog.InfoContext(ctx, "session joined room", "sessionID", ev.sessionID, "roomID", r.ID, "sessions", len(r.sessions))
		r.application.OnJoin(ctx, ev.sessionID, r)
	case roomLeave:
		if _, ok := r.sessions[ev.sessionID]; !ok {
			return
		}
		// 先に集合から外すことで、離脱通知が離脱者自身に届かない
		delete(r.sessions, ev.sessionID)
		slog.InfoContext(ctx, "session left room", "sessionID", ev.sessionID, "roomID", r.ID, "sessions", len(r.sessions))
		r.application.OnLeave(ctx, ev.sessionID, r)
	case roomMessage:
		if _, ok := r.sessions[ev.sessionID]; !ok {
			slog.DebugContext(ctx, "message from session not in room", "sessionID", ev.sessionID)
			return
		}
		if err := r.application.HandleEvent(ctx, ev.sessionID, ev.event, r); err != nil {
			slog.WarnContext(ctx, "room handle event failed", "sessionID", ev.sessionID, "event", ev.event.Name(), "err", err)
		}
	default:
	}
}

func (r *Room) Broadcast(ctx context.Context, ev Event) {
	r.BroadcastExcept(ctx, "", ev)
}

func (r *Room) BroadcastExcept(ctx context.Context, except SessionID, ev Event) {
	data, ok := r.encode(ctx, ev)
	if !ok {
		return
	}
	for sessionID := range r.sessions {
		if sessionID == except {
			continue
		}
		r.pubsub.Publish(ctx, SessionTopic(sessionID), Message{SessionID: sessionID, Data: data})
	}
}

func (r *Room) SendTo(ctx context.Context, sessionID SessionID, ev Event) {
	if _, ok := r.sessions[sessionID]; !ok {
		return
	}
	data, ok := r.encode(ctx, ev)
	if !ok {
		return
	}
	r.pubsub.Publish(ctx, SessionTopic(sessionID), Message{SessionID: sessionID, Data: data})
}

func (r *Room) encode(ctx context.Context, ev Event) ([]byte, bool) {
	data, err := r.codec.Encode(ev)
	if err != nil {
		slog.ErrorContext(ctx, "failed to encode event", "event", ev.Name(), "err", err)
		return nil, false
	}
	return data, true
}
