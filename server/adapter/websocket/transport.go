package adapterwebsocket

import (
	"context"

	"github.com/coder/websocket"

	"orbitfire/server/domain"
)

type wsTransport struct {
	conn        *websocket.Conn
	messageType websocket.MessageType
}

// NewTransportFrom は websocket.Conn を domain.Transport に適合させます。
// msgpack はバイナリフレーム、JSON はテキストフレームで送ります。
func NewTransportFrom(conn *websocket.Conn, codecName string) domain.Transport {
	return &wsTransport{conn: conn, messageType: MessageTypeFor(codecName)}
}

func MessageTypeFor(codecName string) websocket.MessageType {
	if codecName == domain.CodecMsgpack {
		return websocket.MessageBinary
	}
	return websocket.MessageText
}

func (t *wsTransport) Read(ctx context.Context) ([]byte, error) {
	_, data, err := t.conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (t *wsTransport) Write(ctx context.Context, data []byte) error {
	return t.conn.Write(ctx, t.messageType, data)
}

func (t *wsTransport) Close(code int32, reason string) error {
	return t.conn.Close(websocket.StatusCode(code), reason)
}
