package domain

import (
	"context"
	"log/slog"
	"sync"
)

type Topic string

func SessionTopic(id SessionID) Topic {
	return Topic("session:" + id.String())
}

type Message struct {
	SessionID SessionID
	Data      []byte
}

// PubSub はRoomからセッションへの配送路です。配送は at-most-once で、購読側のバッファが満杯なら破棄します。
type PubSub interface {
	Publish(ctx context.Context, topic Topic, msg Message)
	Subscribe(topic Topic) <-chan Message
	Unsubscribe(topic Topic, ch <-chan Message)
}

const subscriberBuffer = 256

type simplePubSub struct {
	mu   sync.RWMutex
	subs map[Topic][]chan Message
}

var _ PubSub = (*simplePubSub)(nil)

func NewSimplePubSub() PubSub {
	return &simplePubSub{subs: make(map[Topic][]chan Message)}
}

func (p *simplePubSub) Publish(ctx context.Context, topic Topic, msg Message) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, ch := range p.subs[topic] {
		select {
		case ch <- msg:
		default:
			slog.WarnContext(ctx, "pubsub: subscriber full, message dropped", "topic", topic)
		}
	}
}

func (p *simplePubSub) Subscribe(topic Topic) <-chan Message {
	ch := make(chan Message, subscriberBuffer)
	p.mu.Lock()
	p.subs[topic] = append(p.subs[topic], ch)
	p.mu.Unlock()
	return ch
}

// Unsubscribe は購読を解除しチャネルを閉じます。
func (p *simplePubSub) Unsubscribe(topic Topic, ch <-chan Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	subs := p.subs[topic]
	for i, c := range subs {
		if c == ch {
			close(c)
			p.subs[topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(p.subs[topic]) == 0 {
		delete(p.subs, topic)
	}
}
