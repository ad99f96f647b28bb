package domain

import (
	"testing"
	"time"
)

// TestNewSession_InitializesTimestamps は NewSession がタイムスタンプを初期化することを確認します。
func TestNewSession_InitializesTimestamps(t *testing.T) {
	s := NewSession()

	if s.lastRead.Load() == 0 {
		t.Errorf("lastRead is not initialized")
	}
	if s.lastWrite.Load() == 0 {
		t.Errorf("lastWrite is not initialized")
	}
	if s.lastPong.Load() == 0 {
		t.Errorf("lastPong is not initialized")
	}
	if s.ID().IsEmpty() {
		t.Errorf("session id is empty")
	}
}

func TestSessionID_BytesRoundTrip(t *testing.T) {
	id := NewSessionID()
	if got := SessionIDFromBytes(id.Bytes()); got != id {
		t.Errorf("SessionIDFromBytes = %s, want %s", got, id)
	}
}

func TestSession_IsIdle(t *testing.T) {
	s := NewSession()

	if idle, reason := s.IsIdle(0); idle || reason != IdleDisabled {
		t.Errorf("IsIdle(0) = (%v, %s), want (false, disabled)", idle, reason)
	}
	if idle, _ := s.IsIdle(time.Hour); idle {
		t.Errorf("fresh session should not be idle")
	}

	past := time.Now().Add(-time.Minute).UnixNano()
	s.lastRead.Store(past)
	s.lastPong.Store(past)
	idle, reason := s.IsIdle(time.Second)
	if !idle || reason.String() != "read|pong" {
		t.Errorf("IsIdle = (%v, %s), want (true, read|pong)", idle, reason)
	}
}

func TestSession_CloseOnce(t *testing.T) {
	s := NewSession()
	if !s.Close() {
		t.Fatal("first Close should return true")
	}
	if s.Close() {
		t.Error("second Close should return false")
	}
	if !s.IsClosed() {
		t.Error("session should be closed")
	}
}
