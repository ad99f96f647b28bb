package domain

import (
	"context"
	"testing"
)

func TestSimplePubSub_PublishSubscribe(t *testing.T) {
	ps := NewSimplePubSub()
	id := NewSessionID()
	topic := SessionTopic(id)

	ch := ps.Subscribe(topic)
	other := ps.Subscribe(Topic("other"))

	ps.Publish(context.Background(), topic, Message{SessionID: id, Data: []byte("hello")})

	select {
	case msg := <-ch:
		if msg.SessionID != id || string(msg.Data) != "hello" {
			t.Errorf("msg = %+v", msg)
		}
	default:
		t.Fatal("message not delivered")
	}
	select {
	case msg := <-other:
		t.Errorf("unexpected delivery on other topic: %+v", msg)
	default:
	}
}

func TestSimplePubSub_Unsubscribe(t *testing.T) {
	ps := NewSimplePubSub()
	topic := Topic("room:x")

	a := ps.Subscribe(topic)
	b := ps.Subscribe(topic)
	ps.Unsubscribe(topic, a)

	if _, ok := <-a; ok {
		t.Error("unsubscribed channel should be closed")
	}
	if got := ps.Subscribers(topic); got != 1 {
		t.Errorf("Subscribers = %d, want 1", got)
	}

	ps.Publish(context.Background(), topic, Message{Kind: MessageJoin})
	if msg := <-b; msg.Kind != MessageJoin {
		t.Errorf("Kind = %d, want join", msg.Kind)
	}

	ps.Unsubscribe(topic, b)
	if got := ps.Subscribers(topic); got != 0 {
		t.Errorf("Subscribers = %d, want 0", got)
	}
}

func TestSimplePubSub_DropsWhenFull(t *testing.T) {
	ps := NewSimplePubSub()
	ps.buffer = 1
	topic := Topic("t")
	ch := ps.Subscribe(topic)

	ps.Publish(context.Background(), topic, Message{Data: []byte("1")})
	ps.Publish(context.Background(), topic, Message{Data: []byte("2")})

	if msg := <-ch; string(msg.Data) != "1" {
		t.Errorf("first message = %q", msg.Data)
	}
	select {
	case msg := <-ch:
		t.Errorf("second message should have been dropped, got %q", msg.Data)
	default:
	}
}
