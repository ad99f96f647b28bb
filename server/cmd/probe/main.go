package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/coder/websocket"

	"conquest/server/domain"
	"conquest/utils"
)

const defaultAttacker = "0x00000000000000000000000000000000000000aa"

type probeConfig struct {
	url      string
	attacker [20]byte
	interval time.Duration
	step     float32
	view     float32
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := utils.GetEnvDefault("ADDR", "localhost")
	port := utils.GetEnvDefault("PORT", "9090")
	countStr := utils.GetEnvDefault("PROBE_COUNT", "1")
	count, err := strconv.Atoi(countStr)
	if err != nil || count <= 0 {
		slog.Error("invalid PROBE_COUNT", "value", countStr)
		os.Exit(1)
	}
	attacker, err := domain.ParseAddress(utils.GetEnvDefault("PROBE_ADDRESS", defaultAttacker))
	if err != nil {
		slog.Error("invalid PROBE_ADDRESS", "err", err)
		os.Exit(1)
	}

	cfg := probeConfig{
		url:      fmt.Sprintf("ws://%s:%s/ws", addr, port),
		attacker: attacker,
		interval: utils.GetEnvDuration("PROBE_INTERVAL", 100*time.Millisecond),
		step:     4,
		view:     96,
	}
	slog.Info("starting probes", "count", count, "server", cfg.url)

	var wg sync.WaitGroup
	for i := range count {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			runProbe(ctx, cfg, id)
		}(i)
	}
	wg.Wait()
	slog.Info("all probes stopped")
}

func runProbe(ctx context.Context, cfg probeConfig, id int) {
	logger := slog.With("probeID", id)
	for {
		if ctx.Err() != nil {
			return
		}
		err := probeSession(ctx, cfg, float32(id)*1000, logger)
		if err != nil && ctx.Err() == nil {
			logger.Warn("probe session ended, reconnecting", "err", err)
			time.Sleep(2 * time.Second)
		}
	}
}

// probeSession はカメラを x 方向に流し続け、届いたフォーカス集合の先頭の惑星に占領プレビューを投げる
func probeSession(ctx context.Context, cfg probeConfig, originY float32, logger *slog.Logger) error {
	conn, _, err := websocket.Dial(ctx, cfg.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.CloseNow()
	logger.Info("connected")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		sessionID atomic.Pointer[domain.SessionID]
		joined    = make(chan struct{})
		target    atomic.Pointer[domain.FocusPlanet]
		requests  atomic.Uint32
		writeMu   sync.Mutex
	)
	write := func(data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.Write(ctx, websocket.MessageBinary, data)
	}

	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				readErr <- err
				return
			}
			frame, err := domain.ParseFrame(data)
			if err != nil {
				continue
			}
			switch frame.PayloadHeader.DataType {
			case domain.DataTypeControl:
				switch domain.ControlSubType(frame.PayloadHeader.SubType) {
				case domain.ControlSubTypeAssign:
					id := domain.SessionIDFromBytes(frame.Header.SessionID)
					sessionID.Store(&id)
					logger.Info("session assigned", "sessionID", id)
					if err := write(domain.EncodeJoinMessage(id, domain.RoomID{})); err != nil {
						readErr <- err
						return
					}
					close(joined)
				case domain.ControlSubTypePing:
					if id := sessionID.Load(); id != nil {
						if err := write(domain.EncodePongMessage(*id)); err != nil {
							readErr <- err
							return
						}
					}
				}
			case domain.DataTypeFocus:
				focus, err := domain.DecodeFocusFrame(frame.Body)
				if err != nil {
					logger.Warn("bad focus frame", "err", err)
					continue
				}
				logger.Info("focus", "seq", frame.Header.Seq, "rect", focus.Rect, "planets", len(focus.Planets))
				if len(focus.Planets) > 0 {
					p := focus.Planets[0]
					target.Store(&p)
				}
			case domain.DataTypeCapture:
				logCapture(logger, frame)
			}
		}
	}()

	select {
	case <-joined:
	case err := <-readErr:
		return err
	case <-ctx.Done():
		return nil
	}
	id := *sessionID.Load()

	ticker := time.NewTicker(cfg.interval)
	defer ticker.Stop()
	x := float32(0)
	var seq uint16
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		case <-ticker.C:
			x += cfg.step
			seq++
			cam := domain.CameraPayload{X: x, Y: originY, Width: cfg.view, Height: cfg.view}
			if err := write(domain.EncodeMessage(id, seq, domain.DataTypeCamera, domain.CameraSubTypeUpdate, cam.Encode())); err != nil {
				return fmt.Errorf("send camera: %w", err)
			}
			if seq%20 != 0 {
				continue
			}
			p := target.Swap(nil)
			if p == nil {
				continue
			}
			req := domain.CapturePayload{X: p.X, Y: p.Y, RequestID: requests.Add(1), Attacker: cfg.attacker}
			if err := write(domain.EncodeMessage(id, seq, domain.DataTypeCapture, uint8(domain.CaptureSubTypeRequest), req.Encode())); err != nil {
				return fmt.Errorf("send capture: %w", err)
			}
		}
	}
}

func logCapture(logger *slog.Logger, frame *domain.Frame) {
	switch domain.CaptureSubType(frame.PayloadHeader.SubType) {
	case domain.CaptureSubTypeResult:
		res, err := domain.DecodeCaptureResultFrame(frame.Body)
		if err != nil {
			logger.Warn("bad capture result", "err", err)
			return
		}
		logger.Info("capture preview",
			"requestID", res.RequestID,
			"x", res.X,
			"y", res.Y,
			"success", res.Success,
			"left", res.NumSpaceshipsLeft,
		)
	case domain.CaptureSubTypeError:
		res, err := domain.DecodeCaptureErrorFrame(frame.Body)
		if err != nil {
			logger.Warn("bad capture error", "err", err)
			return
		}
		logger.Warn("capture preview rejected", "requestID", res.RequestID, "err", res.Error)
	}
}
