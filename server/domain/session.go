package domain

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// SessionID はセッションを識別するUUIDです。ヘッダーには16バイトで載る。
type SessionID uuid.UUID

func NewSessionID() SessionID {
	return SessionID(uuid.New())
}

func SessionIDFromBytes(b [16]byte) SessionID {
	return SessionID(b)
}

func (id SessionID) Bytes() [16]byte {
	return [16]byte(id)
}

func (id SessionID) String() string {
	return uuid.UUID(id).String()
}

func (id SessionID) IsEmpty() bool {
	return uuid.UUID(id) == uuid.Nil
}

// Session は1接続の論理的な接続状態を表す構造体です。
type Session struct {
	id SessionID

	// activity
	lastRead  atomic.Int64
	lastWrite atomic.Int64
	lastPong  atomic.Int64

	// lifecycle
	closed atomic.Bool
}

func NewSession() *Session {
	s := &Session{
		id: NewSessionID(),
	}
	now := time.Now().UnixNano()
	s.lastRead.Store(now)
	s.lastWrite.Store(now)
	s.lastPong.Store(now)
	return s
}

func (s *Session) ID() SessionID {
	return s.id
}

func (s *Session) TouchRead() {
	s.lastRead.Store(time.Now().UnixNano())
}

func (s *Session) TouchWrite() {
	s.lastWrite.Store(time.Now().UnixNano())
}

func (s *Session) TouchPong() {
	s.lastPong.Store(time.Now().UnixNano())
}

// Close はセッションを閉じる。既に閉じていればfalseを返す。
func (s *Session) Close() bool {
	return s.closed.CompareAndSwap(false, true)
}

func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// IsIdle は読み込み・pong のいずれかが timeout を超えて途絶えているかを返す。
// 書き込みは focus フレームが来ない限り発生しないので判定に含めない。
func (s *Session) IsIdle(timeout time.Duration) (bool, IdleReason) {
	if timeout <= 0 {
		return false, IdleDisabled
	}
	var reason IdleReason
	if isIdleSince(s.lastRead.Load(), timeout) {
		reason |= IdleRead
	}
	if isIdleSince(s.lastPong.Load(), timeout) {
		reason |= IdlePong
	}
	return reason != IdleNone, reason
}

func isIdleSince(lastNano int64, timeout time.Duration) bool {
	return time.Since(time.Unix(0, lastNano)) > timeout
}

type IdleReason uint8

const (
	IdleNone     IdleReason = 0
	IdleRead     IdleReason = 1 << 0
	IdlePong     IdleReason = 1 << 2
	IdleDisabled IdleReason = 1 << 7 // timeout<=0 のとき
)

func (r IdleReason) Has(x IdleReason) bool { return r&x != 0 }

func (r IdleReason) String() string {
	switch r {
	case IdleNone:
		return "none"
	case IdleDisabled:
		return "disabled"
	case IdleRead:
		return "read"
	case IdlePong:
		return "pong"
	case IdleRead | IdlePong:
		return "read|pong"
	}
	return fmt.Sprintf("unknown(%d)", uint8(r))
}
