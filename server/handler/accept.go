package handler

import (
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	adapterwebsocket "conquest/server/adapter/websocket"
	"conquest/server/domain"
)

type AcceptHandler struct {
	pubsub      domain.PubSub
	roomManager domain.RoomManager
	endpointCfg domain.EndpointConfig
	originHosts []string
}

func NewAcceptHandler(pubsub domain.PubSub, roomManager domain.RoomManager, endpointCfg domain.EndpointConfig, originHosts []string) *AcceptHandler {
	return &AcceptHandler{
		pubsub:      pubsub,
		roomManager: roomManager,
		endpointCfg: endpointCfg,
		originHosts: originHosts,
	}
}

func (h *AcceptHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// 空なら同一オリジンのみ許可
		OriginPatterns: h.originHosts,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to accept", "err", err)
		return
	}

	session := domain.NewSession()
	transport := adapterwebsocket.NewTransportFrom(conn)
	connection := domain.NewConnection(session.ID(), transport)
	endpoint, err := domain.NewSessionEndpoint(session, connection, h.pubsub, h.roomManager, h.endpointCfg)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create session endpoint", "err", err)
		connection.Close("internal error")
		return
	}
	slog.DebugContext(ctx, "accepted new connection", "sessionID", session.ID(), "remote", r.RemoteAddr)
	if err := endpoint.Run(); err != nil {
		slog.ErrorContext(ctx, "session endpoint stopped with error", "sessionID", session.ID(), "err", err)
		return
	}
	slog.DebugContext(ctx, "connection closed", "sessionID", session.ID())
}
