package domain

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

//go:generate go tool mockgen -destination=./mocks/room_manager_mock.go -package=mocks . RoomManager

// RoomID はルームを識別するUUIDです。ゼロ値は「未指定」を表す。
type RoomID uuid.UUID

// DefaultRoomID は参加先が指定されなかったときに使うルーム
var DefaultRoomID = RoomID(uuid.NewSHA1(uuid.NameSpaceOID, []byte("conquest/default")))

func (id RoomID) IsEmpty() bool {
	return uuid.UUID(id) == uuid.Nil
}

func (id RoomID) String() string {
	return uuid.UUID(id).String()
}

func (id RoomID) Bytes() [16]byte {
	return [16]byte(id)
}

var (
	ErrRoomBusy     = errors.New("room send channel is full")
	ErrRoomNotFound = errors.New("room not found")
)

// RoomManager はセッションの参加先ルームを決める。
type RoomManager interface {
	GetRoom(ctx context.Context, sessionID SessionID) (RoomID, error)
}

// SimpleRoomManager は全セッションを単一のルームに割り当てる
type SimpleRoomManager struct {
	roomID RoomID
}

func NewSimpleRoomManager(roomID RoomID) *SimpleRoomManager {
	if roomID.IsEmpty() {
		roomID = DefaultRoomID
	}
	return &SimpleRoomManager{roomID: roomID}
}

func (m *SimpleRoomManager) GetRoom(ctx context.Context, sessionID SessionID) (RoomID, error) {
	return m.roomID, nil
}

type roomSendKind uint8

const (
	roomSendBroadcast roomSendKind = iota
	roomSendTo
)

type roomSend struct {
	kind      roomSendKind
	sessionID SessionID
	data      []byte
}

type RoomOption func(*Room)

func WithTickInterval(d time.Duration) RoomOption {
	return func(r *Room) {
		if d > 0 {
			r.tickInterval = d
		}
	}
}

// Room はセッション群とアプリケーションを1本のtickループで駆動します。
type Room struct {
	ID       RoomID
	sessions map[SessionID]struct{}

	pubsub      PubSub
	application Application

	sendCh chan roomSend

	tickInterval time.Duration
}

func NewRoom(id RoomID, pubsub PubSub, application Application, opts ...RoomOption) *Room {
	r := &Room{
		ID:           id,
		sessions:     make(map[SessionID]struct{}),
		pubsub:       pubsub,
		application:  application,
		sendCh:       make(chan roomSend, 1024),
		tickInterval: time.Second / 20,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Room) Broadcast(ctx context.Context, data []byte) {
	for sessionID := range r.sessions {
		r.SendTo(ctx, sessionID, data)
	}
}

func (r *Room) SendTo(ctx context.Context, sessionID SessionID, data []byte) {
	r.pubsub.Publish(ctx, SessionTopic(sessionID), Message{SessionID: sessionID, Data: data})
}

// EnqueueBroadcast はループ外から次のtickでのブロードキャストを予約する
func (r *Room) EnqueueBroadcast(ctx context.Context, data []byte) error {
	return r.enqueueSend(ctx, roomSend{kind: roomSendBroadcast, data: data})
}

func (r *Room) EnqueueSendTo(ctx context.Context, sessionID SessionID, data []byte) error {
	return r.enqueueSend(ctx, roomSend{kind: roomSendTo, sessionID: sessionID, data: data})
}

func (r *Room) enqueueSend(ctx context.Context, msg roomSend) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case r.sendCh <- msg:
		return nil
	default:
		return ErrRoomBusy
	}
}

// Sessions は参加中のセッション数を返す。tickループと同じgoroutineからのみ呼ぶこと。
func (r *Room) Sessions() int {
	return len(r.sessions)
}

func (r *Room) Run(ctx context.Context) error {
	// join/leave とデータを同じトピックで受け、到着順を保つ
	msgCh := r.pubsub.Subscribe(RoomTopic(r.ID))
	defer r.pubsub.Unsubscribe(RoomTopic(r.ID), msgCh)

	ticker := time.NewTicker(r.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.tick(ctx, msgCh)
		}
	}
}

func (r *Room) tick(ctx context.Context, msgCh <-chan Message) {
RECEIVE_LOOP:
	for {
		select {
		case msg := <-msgCh:
			if msg.Kind != MessageData {
				r.handleControlMessage(ctx, msg)
				continue
			}
			if _, ok := r.sessions[msg.SessionID]; !ok {
				slog.DebugContext(ctx, "room: message from non-member dropped", "roomID", r.ID, "sessionID", msg.SessionID)
				continue
			}
			if err := r.application.HandleMessage(ctx, msg.SessionID, msg.Data); err != nil {
				slog.WarnContext(ctx, "room handle message failed", "roomID", r.ID, "sessionID", msg.SessionID, "err", err)
			}
		default:
			break RECEIVE_LOOP
		}
	}
SEND_LOOP:
	for {
		select {
		case msg := <-r.sendCh:
			r.handleSendMessage(ctx, msg)
		default:
			break SEND_LOOP
		}
	}
	for _, out := range r.application.Tick(ctx) {
		if out.SessionID.IsEmpty() {
			r.Broadcast(ctx, out.Data)
			continue
		}
		if _, ok := r.sessions[out.SessionID]; !ok {
			continue
		}
		r.SendTo(ctx, out.SessionID, out.Data)
	}
}

func (r *Room) handleControlMessage(ctx context.Context, msg Message) {
	switch msg.Kind {
	case MessageJoin:
		if _, ok := r.sessions[msg.SessionID]; ok {
			return
		}
		if err := r.application.Join(ctx, msg.SessionID); err != nil {
			slog.WarnContext(ctx, "room: join rejected", "roomID", r.ID, "sessionID", msg.SessionID, "err", err)
			return
		}
		r.sessions[msg.SessionID] = struct{}{}
	case MessageLeave:
		if _, ok := r.sessions[msg.SessionID]; !ok {
			return
		}
		delete(r.sessions, msg.SessionID)
		r.application.Leave(ctx, msg.SessionID)
	default:
		slog.WarnContext(ctx, "room: unknown control message", "roomID", r.ID, "kind", msg.Kind)
	}
}

func (r *Room) handleSendMessage(ctx context.Context, msg roomSend) {
	switch msg.kind {
	case roomSendBroadcast:
		r.Broadcast(ctx, msg.data)
	case roomSendTo:
		r.SendTo(ctx, msg.sessionID, msg.data)
	}
}
