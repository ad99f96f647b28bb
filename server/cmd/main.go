package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"conquest/application/service"
	"conquest/application/state/memory"
	core "conquest/domain"
	"conquest/server"
	"conquest/server/application"
	"conquest/server/config"
	"conquest/server/domain"
	"conquest/utils"
)

func main() {
	configPath := flag.String("config", utils.GetEnvDefault("CONQUEST_CONFIG", ""), "path to conquest.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	level, _ := cfg.SlogLevel()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// チェーン状態のスナップショット
	var records []memory.PlanetRecord
	if cfg.StateFile != "" {
		records, err = config.LoadStates(cfg.StateFile)
		if err != nil {
			log.Fatalf("load states: %v", err)
		}
	}
	store := memory.NewConcurrentStore(memory.NewStore(records))
	stats := store.Stats()
	slog.InfoContext(ctx, "planet states loaded", "planets", len(records), "owned", stats.Owned, "natives", stats.Natives)

	galaxy := application.NewGalaxy(application.GalaxyConfig{
		Seed:      cfg.Galaxy.Seed,
		Density:   cfg.Galaxy.Density,
		CacheSize: cfg.Galaxy.CacheSize,
	})
	metrics := application.NewCounterMetrics()
	captures, err := service.NewCaptureService(galaxy, store, metrics, service.RealClock{}, service.SimpleValidator{}, core.NewCombatSimulator(cfg.CombatConfig()))
	if err != nil {
		log.Fatalf("capture service: %v", err)
	}
	app := application.NewConquestApplication(application.ConquestConfig{
		CellSize:     cfg.Focus.CellSize,
		MaxFocusArea: cfg.Focus.MaxArea,
		RefreshEvery: cfg.Focus.RefreshEveryTicks,
	}, galaxy, store, captures)

	pubsub := domain.NewSimplePubSub()
	roomManager := domain.NewSimpleRoomManager(domain.DefaultRoomID)
	room := domain.NewRoom(domain.DefaultRoomID, pubsub, app, domain.WithTickInterval(cfg.TickInterval))
	go func() {
		if err := room.Run(ctx); err != nil {
			slog.ErrorContext(ctx, "room error", "err", err)
		}
	}()

	handler := server.Route(pubsub, roomManager, server.RouteConfig{
		Endpoint: domain.EndpointConfig{
			IdleTimeout:  cfg.Session.IdleTimeout,
			PingInterval: cfg.Session.PingInterval,
			CameraRate:   rate.Limit(cfg.Session.CameraRate),
			CameraBurst:  cfg.Session.CameraBurst,
		},
		OriginHosts: cfg.Origins,
		Stats:       metrics.Counters,
	})
	s := server.NewServer(cfg.Listen, handler)

	go func() {
		if err := s.Serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()
	slog.InfoContext(ctx, "server listening", "addr", cfg.Listen, "seed", cfg.Galaxy.Seed, "roomID", domain.DefaultRoomID)

	<-ctx.Done()
	slog.InfoContext(ctx, "shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(ctx, "graceful shutdown failed", "error", err)
		if err := s.Close(); err != nil {
			slog.ErrorContext(ctx, "forced close failed", "error", err)
		}
	}
	slog.InfoContext(ctx, "server shutdown complete")
}
