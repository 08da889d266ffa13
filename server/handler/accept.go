package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	adapterwebsocket "orbitfire/server/adapter/websocket"
	"orbitfire/server/domain"
)

type AcceptHandler struct {
	ctx        context.Context
	pubsub     domain.PubSub
	dispatcher domain.Dispatcher
	codec      domain.Codec
	codecName  string
	opts       domain.EndpointOptions
}

// NewAcceptHandler の ctx はサーバー全体の寿命です。キャンセルされると全セッションが閉じます。
func NewAcceptHandler(ctx context.Context, pubsub domain.PubSub, dispatcher domain.Dispatcher, codecName string, opts domain.EndpointOptions) (*AcceptHandler, error) {
	codec, err := domain.NewCodec(codecName)
	if err != nil {
		return nil, err
	}
	return &AcceptHandler{
		ctx:        ctx,
		pubsub:     pubsub,
		dispatcher: dispatcher,
		codec:      codec,
		codecName:  codecName,
		opts:       opts,
	}, nil
}

func (h *AcceptHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // 開発用: Origin チェックをスキップ
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to accept", "err", err)
		return
	}

	session := domain.NewSession()
	transport := adapterwebsocket.NewTransportFrom(conn, h.codecName)
	connection := domain.NewConnection(session.ID(), transport)
	endpoint, err := domain.NewSessionEndpoint(h.ctx, session, connection, h.pubsub, h.dispatcher, h.codec, h.opts)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create session endpoint", "err", err)
		connection.Close("initialization failed")
		return
	}
	slog.InfoContext(ctx, "accepted new connection", "sessionID", session.ID(), "remote", r.RemoteAddr)
	if err := endpoint.Run(); err != nil {
		slog.ErrorContext(ctx, "session endpoint stopped with error", "sessionID", session.ID(), "err", err)
		return
	}
	slog.InfoContext(ctx, "connection closed", "sessionID", session.ID())
}
