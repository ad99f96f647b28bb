package server

import (
	"net/http"

	"conquest/server/domain"
	"conquest/server/handler"
)

type RouteConfig struct {
	Endpoint    domain.EndpointConfig
	OriginHosts []string
	Stats       handler.StatsFunc
}

func Route(pubsub domain.PubSub, roomManager domain.RoomManager, cfg RouteConfig) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /ws", handler.NewAcceptHandler(pubsub, roomManager, cfg.Endpoint, cfg.OriginHosts))
	mux.Handle("GET /healthz", handler.NewHealthHandler(cfg.Stats))
	return mux
}
