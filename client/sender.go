package client

import (
	"context"

	"orbitfire/server/domain"
)

//go:generate go tool mockgen -destination=./mocks/sender_mock.go -package=mocks . Sender

// Sender はクライアントからサーバーへのイベント送信口です。
type Sender interface {
	Send(ctx context.Context, ev domain.Event) error
}

type transportSender struct {
	transport domain.Transport
	codec     domain.Codec
}

func NewTransportSender(transport domain.Transport, codec domain.Codec) Sender {
	return &transportSender{transport: transport, codec: codec}
}

func (s *transportSender) Send(ctx context.Context, ev domain.Event) error {
	data, err := s.codec.Encode(ev)
	if err != nil {
		return err
	}
	return s.transport.Write(ctx, data)
}
