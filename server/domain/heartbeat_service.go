package domain

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// HeartbeatService は定期的にpingメッセージを送信する死活監視サービスです。
// クライアントはpongを返し、Session.IsIdle がそれを見て切断を判断する。
type HeartbeatService struct {
	pingInterval time.Duration
	session      *Session
	writeCh      chan<- []byte

	sent    atomic.Uint64
	dropped atomic.Uint64
}

func NewHeartbeatService(pingInterval time.Duration, session *Session, writeCh chan<- []byte) *HeartbeatService {
	return &HeartbeatService{
		pingInterval: pingInterval,
		session:      session,
		writeCh:      writeCh,
	}
}

// Run はpingInterval間隔でpingメッセージをwriteChに送信します。
// ctxがキャンセルされるかセッションが閉じると終了します。
func (h *HeartbeatService) Run(ctx context.Context) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if h.session.IsClosed() {
				return
			}
			select {
			case h.writeCh <- EncodePingMessage(h.session.ID()):
				h.sent.Add(1)
			default:
				h.dropped.Add(1)
				slog.WarnContext(ctx, "heartbeat: writeCh full, ping dropped", "sessionID", h.session.ID())
			}
		}
	}
}

func (h *HeartbeatService) Sent() uint64 {
	return h.sent.Load()
}

func (h *HeartbeatService) Dropped() uint64 {
	return h.dropped.Load()
}
