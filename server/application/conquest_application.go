package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"conquest/application/request"
	"conquest/application/service"
	core "conquest/domain"
	"conquest/server/domain"
	"conquest/utils"
)

var (
	ErrUnknownSession = errors.New("application: session has not joined")
	ErrInvalidCamera  = errors.New("application: invalid camera")
	ErrFocusTooLarge  = errors.New("application: focus area too large")
)

const (
	DefaultMaxFocusArea = 64 * 64
	// maxGridCoord を超えるカメラは int32 のグリッドに収まらない
	maxGridCoord = 1 << 30
)

// CapturePreviewer は占領プレビューを計算する
type CapturePreviewer interface {
	Preview(ctx context.Context, payload request.Capture) (service.CapturePreview, error)
}

// ConquestConfig はアプリケーションの動作設定
type ConquestConfig struct {
	CellSize float64
	// MaxFocusArea は1セッションが一度にフォーカスできるセル数の上限
	MaxFocusArea int64
	// RefreshEvery は何tickごとにチェーン状態を取り直すか。0なら取り直さない。
	RefreshEvery int
}

// focusSession はセッション1つ分のフォーカス状態。Join で作られ Leave で破棄される。
type focusSession struct {
	id          domain.SessionID
	index       *core.FocusIndex
	unsubscribe func()

	pending []*core.FocusEntry
	dirty   bool
	seq     uint16
}

// ConquestApplication はセッションごとのカメラを FocusIndex に反映し、
// 変化したフォーカス集合と占領プレビューを各セッションに返す Application です。
type ConquestApplication struct {
	cfg      ConquestConfig
	galaxy   core.PlanetInfoSource
	states   core.PlanetStateSource
	previews CapturePreviewer

	sessions map[domain.SessionID]*focusSession
	outbox   []domain.Outbound
	ticks    int
}

var _ domain.Application = (*ConquestApplication)(nil)

func NewConquestApplication(cfg ConquestConfig, galaxy core.PlanetInfoSource, states core.PlanetStateSource, previews CapturePreviewer) *ConquestApplication {
	if cfg.CellSize <= 0 {
		cfg.CellSize = core.DefaultCellSize
	}
	if cfg.MaxFocusArea <= 0 {
		cfg.MaxFocusArea = DefaultMaxFocusArea
	}
	return &ConquestApplication{
		cfg:      cfg,
		galaxy:   galaxy,
		states:   states,
		previews: previews,
		sessions: make(map[domain.SessionID]*focusSession),
	}
}

func (app *ConquestApplication) Join(ctx context.Context, sessionID domain.SessionID) error {
	if _, ok := app.sessions[sessionID]; ok {
		return nil
	}
	opts := []core.FocusOption{core.WithCellSize(app.cfg.CellSize)}
	if app.states != nil {
		opts = append(opts, core.WithStateSource(app.states))
	}
	fs := &focusSession{
		id:    sessionID,
		index: core.NewFocusIndex(app.galaxy, opts...),
	}
	fs.unsubscribe = fs.index.Subscribe(func(entries []*core.FocusEntry) {
		// 購読直後の空集合は送らない
		if entries == nil {
			return
		}
		fs.pending = entries
		fs.dirty = true
	})
	app.sessions[sessionID] = fs
	slog.InfoContext(ctx, "focus session started", "sessionID", sessionID, "sessions", len(app.sessions))
	return nil
}

func (app *ConquestApplication) Leave(ctx context.Context, sessionID domain.SessionID) {
	fs, ok := app.sessions[sessionID]
	if !ok {
		return
	}
	fs.unsubscribe()
	delete(app.sessions, sessionID)
	slog.InfoContext(ctx, "focus session ended", "sessionID", sessionID, "sessions", len(app.sessions))
}

func (app *ConquestApplication) HandleMessage(ctx context.Context, sessionID domain.SessionID, data []byte) error {
	fs, ok := app.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	frame, err := domain.ParseFrame(data)
	if err != nil {
		return err
	}

	switch frame.PayloadHeader.DataType {
	case domain.DataTypeCamera:
		return app.handleCamera(ctx, fs, frame)
	case domain.DataTypeCapture:
		return app.handleCapture(ctx, fs, frame)
	default:
		slog.WarnContext(ctx, "unexpected data type", "sessionID", sessionID, "dataType", frame.PayloadHeader.DataType)
		return nil
	}
}

func (app *ConquestApplication) handleCamera(ctx context.Context, fs *focusSession, frame *domain.Frame) error {
	payload, err := domain.ParseCameraPayload(frame.Body)
	if err != nil {
		return err
	}
	cam := core.Camera{
		X:      float64(payload.X),
		Y:      float64(payload.Y),
		Width:  float64(payload.Width),
		Height: float64(payload.Height),
	}
	if !utils.FiniteCamera(cam) || cam.Width < 0 || cam.Height < 0 {
		return fmt.Errorf("%w: %+v", ErrInvalidCamera, cam)
	}
	if !app.withinGrid(cam) {
		return fmt.Errorf("%w: %+v out of range", ErrInvalidCamera, cam)
	}
	rect := core.RectFromCamera(cam, app.cfg.CellSize)
	if area := rect.Area(); area > app.cfg.MaxFocusArea {
		return fmt.Errorf("%w: %d cells (max %d)", ErrFocusTooLarge, area, app.cfg.MaxFocusArea)
	}

	fs.index.UpdateCamera(cam)
	slog.DebugContext(ctx, "handleCamera",
		"sessionID", fs.id,
		"seq", frame.Header.Seq,
		"focus", fs.index.Focus(),
		"planets", fs.index.Len(),
	)
	return nil
}

func (app *ConquestApplication) handleCapture(ctx context.Context, fs *focusSession, frame *domain.Frame) error {
	if domain.CaptureSubType(frame.PayloadHeader.SubType) != domain.CaptureSubTypeRequest {
		slog.WarnContext(ctx, "unexpected capture subtype", "sessionID", fs.id, "subType", frame.PayloadHeader.SubType)
		return nil
	}
	payload, err := domain.ParseCapturePayload(frame.Body)
	if err != nil {
		return err
	}

	req := request.Capture{
		Meta:     request.Meta{RequestID: strconv.FormatUint(uint64(payload.RequestID), 10)},
		Attacker: payload.AttackerAddress(),
		Location: core.Location{X: payload.X, Y: payload.Y},
	}
	preview, err := app.previews.Preview(ctx, req)
	if err != nil {
		slog.InfoContext(ctx, "capture preview rejected", "sessionID", fs.id, "requestID", req.Meta.RequestID, "err", err)
		msg, encErr := domain.EncodeCaptureErrorMessage(fs.id, &domain.CaptureErrorFrame{
			RequestID: payload.RequestID,
			Error:     err.Error(),
		})
		if encErr != nil {
			return encErr
		}
		app.enqueue(fs.id, msg)
		return nil
	}

	msg, err := domain.EncodeCaptureResultMessage(fs.id, &domain.CaptureResultFrame{
		RequestID:         payload.RequestID,
		X:                 preview.Location.X,
		Y:                 preview.Location.Y,
		Attacker:          preview.Attacker,
		Success:           preview.Result.Success,
		NumSpaceshipsLeft: preview.Result.NumSpaceshipsLeft,
	})
	if err != nil {
		return err
	}
	app.enqueue(fs.id, msg)
	return nil
}

// Tick は前回のtick以降に変化したフォーカス集合を1セッション1フレームにまとめて返す
func (app *ConquestApplication) Tick(ctx context.Context) []domain.Outbound {
	app.ticks++
	if app.cfg.RefreshEvery > 0 && app.ticks%app.cfg.RefreshEvery == 0 {
		for _, fs := range app.sessions {
			if fs.index.Len() > 0 {
				fs.index.RefreshStates()
			}
		}
	}

	for _, fs := range app.sessions {
		if !fs.dirty {
			continue
		}
		fs.dirty = false
		fs.seq++
		msg, err := domain.EncodeFocusMessage(fs.id, fs.seq, buildFocusFrame(fs.index.Focus(), fs.pending))
		if err != nil {
			slog.ErrorContext(ctx, "failed to encode focus frame", "sessionID", fs.id, "err", err)
			continue
		}
		app.enqueue(fs.id, msg)
	}

	if len(app.outbox) == 0 {
		return nil
	}
	out := app.outbox
	app.outbox = nil
	return out
}

// Sessions は参加中のセッション数を返す
func (app *ConquestApplication) Sessions() int {
	return len(app.sessions)
}

func (app *ConquestApplication) enqueue(id domain.SessionID, data []byte) {
	app.outbox = append(app.outbox, domain.Outbound{SessionID: id, Data: data})
}

// withinGrid はカメラの覆う範囲が int32 のグリッド座標に収まるかを返す
func (app *ConquestApplication) withinGrid(cam core.Camera) bool {
	reachX := (math.Abs(cam.X) + cam.Width/2) / app.cfg.CellSize
	reachY := (math.Abs(cam.Y) + cam.Height/2) / app.cfg.CellSize
	return reachX < maxGridCoord && reachY < maxGridCoord
}

func buildFocusFrame(rect core.Rect, entries []*core.FocusEntry) *domain.FocusFrame {
	frame := &domain.FocusFrame{
		Rect:    [4]int32{rect.X0, rect.Y0, rect.X1, rect.Y1},
		Planets: make([]domain.FocusPlanet, 0, len(entries)),
	}
	for _, e := range entries {
		s := e.Info.Stats
		p := domain.FocusPlanet{
			X:          e.Info.Location.X,
			Y:          e.Info.Location.Y,
			Subtype:    s.Subtype,
			Attack:     s.Attack,
			Defense:    s.Defense,
			Natives:    s.Natives,
			Speed:      s.Speed,
			Production: s.Production,
			Capacity:   s.Capacity,
		}
		if e.State != nil {
			p.State = &domain.FocusPlanetState{
				Owner:         e.State.Owner,
				NumSpaceships: e.State.NumSpaceships,
				Natives:       e.State.Natives,
				LastUpdated:   e.State.LastUpdated,
			}
		}
		frame.Planets = append(frame.Planets, p)
	}
	return frame
}
