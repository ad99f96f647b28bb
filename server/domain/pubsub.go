package domain

import (
	"context"
	"log/slog"
	"sync"
)

//go:generate go tool mockgen -destination=./mocks/pubsub_mock.go -package=mocks . PubSub

type Topic string

func SessionTopic(id SessionID) Topic {
	return Topic("session:" + id.String())
}

func RoomTopic(id RoomID) Topic {
	return Topic("room:" + id.String())
}

// MessageKind は pubsub 上のメッセージ種別
type MessageKind uint8

const (
	MessageData MessageKind = iota
	MessageJoin
	MessageLeave
)

type Message struct {
	SessionID SessionID
	Kind      MessageKind
	Data      []byte
}

// PubSub はセッションとルームをつなぐプロセス内メッセージバスです。
type PubSub interface {
	Publish(ctx context.Context, topic Topic, msg Message)
	Subscribe(topic Topic) <-chan Message
	Unsubscribe(topic Topic, ch <-chan Message)
}

const defaultSubscriberBuffer = 1024

// SimplePubSub はチャネルで配送するPubSub実装。購読者が詰まっている場合は破棄する。
type SimplePubSub struct {
	mu     sync.RWMutex
	subs   map[Topic][]chan Message
	buffer int
}

func NewSimplePubSub() *SimplePubSub {
	return &SimplePubSub{
		subs:   make(map[Topic][]chan Message),
		buffer: defaultSubscriberBuffer,
	}
}

func (p *SimplePubSub) Publish(ctx context.Context, topic Topic, msg Message) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, ch := range p.subs[topic] {
		select {
		case ch <- msg:
		default:
			slog.WarnContext(ctx, "pubsub: subscriber full, message dropped", "topic", topic, "sessionID", msg.SessionID)
		}
	}
}

func (p *SimplePubSub) Subscribe(topic Topic) <-chan Message {
	ch := make(chan Message, p.buffer)
	p.mu.Lock()
	p.subs[topic] = append(p.subs[topic], ch)
	p.mu.Unlock()
	return ch
}

// Unsubscribe は購読を解除してチャネルを閉じる
func (p *SimplePubSub) Unsubscribe(topic Topic, ch <-chan Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	subs := p.subs[topic]
	for i, c := range subs {
		if (<-chan Message)(c) != ch {
			continue
		}
		close(c)
		subs = append(subs[:i], subs[i+1:]...)
		break
	}
	if len(subs) == 0 {
		delete(p.subs, topic)
		return
	}
	p.subs[topic] = subs
}

// Subscribers はトピックの購読者数を返す
func (p *SimplePubSub) Subscribers(topic Topic) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subs[topic])
}
