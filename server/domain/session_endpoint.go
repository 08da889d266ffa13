package domain

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrBackpressure は書き込みチャネルが満杯の場合に返されるエラーです。
	ErrBackpressure = errors.New("write channel is full, apply backpressure")
	// ErrInitializationFailed はセッションエンドポイントの初期化に失敗した場合に返されるエラーです。
	ErrInitializationFailed = errors.New("failed to initialize session endpoint")
)

// EndpointOptions はエンドポイントの死活監視設定です。0 は無効を表します。
type EndpointOptions struct {
	PingInterval time.Duration
	IdleTimeout  time.Duration
}

// SessionEndpoint は1接続分の読み書きループとRoomへの参加を管理します。
type SessionEndpoint struct {
	ctx    context.Context
	cancel context.CancelFunc

	session    *Session
	connection *Connection
	pubsub     PubSub
	dispatcher Dispatcher
	codec      Codec
	opts       EndpointOptions

	ctrlCh  chan endpointEvent // 制御用チャネル
	writeCh chan []byte        // 書き込み用チャネル

	// lifecycle
	closed atomic.Bool
}

func NewSessionEndpoint(ctx context.Context, session *Session, connection *Connection, pubsub PubSub, dispatcher Dispatcher, codec Codec, opts EndpointOptions) (*SessionEndpoint, error) {
	if session == nil || connection == nil || pubsub == nil || dispatcher == nil || codec == nil {
		return nil, ErrInitializationFailed
	}
	ctx, cancel := context.WithCancel(ctx)
	se := &SessionEndpoint{
		ctx:        ctx,
		cancel:     cancel,
		session:    session,
		connection: connection,
		pubsub:     pubsub,
		dispatcher: dispatcher,
		codec:      codec,
		opts:       opts,
		ctrlCh:     make(chan endpointEvent, 16),
		writeCh:    make(chan []byte, 1024),
	}
	return se, nil
}

// Run は接続が閉じるまでブロックします。終了時にRoomからLeaveします。
func (se *SessionEndpoint) Run() error {
	// 自分宛のメッセージを購読
	sessionTopic := SessionTopic(se.session.ID())
	msgCh := se.pubsub.Subscribe(sessionTopic)
	defer se.pubsub.Unsubscribe(sessionTopic, msgCh)
	defer se.close()

	// セッションID通知はRoom参加より前にwriteChへ積む
	assignMsg, err := se.codec.Encode(Assign{ID: se.session.ID()})
	if err != nil {
		return err
	}
	if err := se.Send(assignMsg); err != nil {
		return err
	}
	if err := se.dispatcher.Join(se.ctx, se.session.ID()); err != nil {
		return err
	}
	defer se.leave()

	eg, ctx := errgroup.WithContext(se.ctx)
	eg.Go(func() error {
		se.ownerLoop(ctx)
		return nil
	})
	eg.Go(func() error {
		se.readLoop(ctx)
		return nil
	})
	eg.Go(func() error {
		se.writeLoop(ctx)
		return nil
	})
	eg.Go(func() error {
		se.subscribeLoop(ctx, msgCh)
		return nil
	})
	if se.opts.PingInterval > 0 {
		hb := NewHeartbeatService(se.opts.PingInterval, se.session, se.codec, se.writeCh)
		eg.Go(func() error {
			hb.Run(ctx)
			return nil
		})
	}

	return eg.Wait()
}

func (se *SessionEndpoint) Send(data []byte) error {
	select {
	case se.writeCh <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

func (se *SessionEndpoint) Close(ctx context.Context) {
	se.sendCtrlEvent(ctx, endpointEvent{kind: evClose})
}

func (se *SessionEndpoint) ForceClose() {
	se.close()
}

func (se *SessionEndpoint) leave() {
	// 自身のctxは既にキャンセルされているため独立したctxで通知する。
	// 離脱は受理されるかRoomが停止するまで待つ
	ctx := context.WithoutCancel(se.ctx)
	if err := se.dispatcher.Leave(ctx, se.session.ID()); err != nil {
		slog.WarnContext(ctx, "failed to leave room", "sessionID", se.session.ID(), "err", err)
	}
}

// ownerLoop は論理セッションの状態を監視し、必要に応じて接続の管理を行います。
func (se *SessionEndpoint) ownerLoop(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-se.ctrlCh:
			se.handleControlEvent(ctx, ev)
		case <-ticker.C:
			ok, reason := se.session.IsIdle(se.opts.IdleTimeout)
			if ok {
				se.handleControlEvent(ctx, endpointEvent{
					kind: evClose,
					err:  errors.New(reason.String()),
				})
			}
		}
	}
}

func (se *SessionEndpoint) readLoop(ctx context.Context) {
	for {
		data, err := se.connection.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				se.sendCtrlEvent(ctx, endpointEvent{kind: evReadError, err: err})
			}
			return
		}
		se.session.TouchRead()
		se.handleData(ctx, data)
	}
}

func (se *SessionEndpoint) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-se.writeCh:
			err := se.connection.Write(ctx, data)
			if err != nil {
				se.sendCtrlEvent(ctx, endpointEvent{kind: evWriteError, err: err})
				return
			}
			se.session.TouchWrite()
		}
	}
}

// subscribeLoop はpubsubからのメッセージをwriteChに転送します。
func (se *SessionEndpoint) subscribeLoop(ctx context.Context, msgCh <-chan Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			select {
			case se.writeCh <- msg.Data:
				// 送信成功
			default:
				slog.WarnContext(ctx, "subscribeLoop: writeCh full, message dropped", "sessionID", se.session.ID())
			}
		}
	}
}

func (se *SessionEndpoint) close() {
	if !se.closed.CompareAndSwap(false, true) {
		return
	}
	se.cancel()
	se.session.Close()
	se.connection.Close("")
}

func (se *SessionEndpoint) handleData(ctx context.Context, data []byte) {
	ev, err := se.codec.Decode(data)
	if err != nil {
		slog.WarnContext(ctx, "dropping malformed message", "sessionID", se.session.ID(), "err", err)
		return
	}

	switch ev.(type) {
	case Pong:
		se.sendCtrlEvent(ctx, endpointEvent{kind: evPong})
	case UpdatePosition, Shoot:
		if err := se.dispatcher.Dispatch(ctx, se.session.ID(), ev); err != nil {
			slog.WarnContext(ctx, "failed to dispatch event", "sessionID", se.session.ID(), "event", ev.Name(), "err", err)
		}
	default:
		slog.WarnContext(ctx, "unexpected event from client", "sessionID", se.session.ID(), "event", ev.Name())
	}
}

// handleControlEvent は制御チャネルからのイベントを処理し論理セッションの状態を更新する唯一の関数です。
func (se *SessionEndpoint) handleControlEvent(ctx context.Context, ev endpointEvent) {
	switch ev.kind {
	case evClose:
		slog.InfoContext(ctx, "closing session", "sessionID", se.session.ID(), "reason", ev.err)
		se.close()
	case evPong:
		se.session.TouchPong()
	case evReadError:
		slog.DebugContext(ctx, "read failed, closing session", "sessionID", se.session.ID(), "err", ev.err)
		se.close()
	case evWriteError:
		slog.WarnContext(ctx, "write failed, closing session", "sessionID", se.session.ID(), "err", ev.err)
		se.close()
	default:
		slog.WarnContext(ctx, "unknown endpoint event kind", "kind", ev.kind)
	}
}

func (se *SessionEndpoint) sendCtrlEvent(ctx context.Context, ev endpointEvent) {
	select {
	case se.ctrlCh <- ev:
	case <-ctx.Done():
	}
}
