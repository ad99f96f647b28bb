package application

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"conquest/application/request"
	"conquest/application/service"
	"conquest/application/state/memory"
	core "conquest/domain"
	"conquest/server/domain"
)

const attacker = "0x00000000000000000000000000000000000000aa"

// denseGalaxy は全セルに同じステータスの惑星を置く
type denseGalaxy struct{}

func (denseGalaxy) PlanetAt(x, y int32) (*core.PlanetInfo, bool) {
	return &core.PlanetInfo{
		Location: core.Location{X: x, Y: y},
		Stats:    core.PlanetStats{Attack: 5000, Defense: 5000, Natives: 150000, Speed: 5000},
	}, true
}

type conquestFixture struct {
	app     *ConquestApplication
	store   *memory.ConcurrentStore
	metrics *CounterMetrics
}

func newConquestFixture(t *testing.T, cfg ConquestConfig, records ...memory.PlanetRecord) *conquestFixture {
	t.Helper()
	store := memory.NewConcurrentStore(memory.NewStore(records))
	metrics := NewCounterMetrics()
	svc, err := service.NewCaptureService(denseGalaxy{}, store, metrics, service.RealClock{}, service.SimpleValidator{}, core.NewCombatSimulator(core.CombatConfig{}))
	if err != nil {
		t.Fatalf("NewCaptureService failed: %v", err)
	}
	if cfg.CellSize == 0 {
		cfg.CellSize = 4
	}
	return &conquestFixture{
		app:     NewConquestApplication(cfg, denseGalaxy{}, store, svc),
		store:   store,
		metrics: metrics,
	}
}

func cameraMessage(id domain.SessionID, x, y, w, h float32) []byte {
	cam := domain.CameraPayload{X: x, Y: y, Width: w, Height: h}
	return domain.EncodeMessage(id, 1, domain.DataTypeCamera, domain.CameraSubTypeUpdate, cam.Encode())
}

func captureMessage(t *testing.T, id domain.SessionID, x, y int32, requestID uint32, addr string) []byte {
	t.Helper()
	raw, err := domain.ParseAddress(addr)
	if err != nil {
		t.Fatalf("ParseAddress failed: %v", err)
	}
	p := domain.CapturePayload{X: x, Y: y, RequestID: requestID, Attacker: raw}
	return domain.EncodeMessage(id, 1, domain.DataTypeCapture, uint8(domain.CaptureSubTypeRequest), p.Encode())
}

func decodeFocus(t *testing.T, out domain.Outbound) (*domain.Frame, *domain.FocusFrame) {
	t.Helper()
	frame, err := domain.ParseFrame(out.Data)
	if err != nil {
		t.Fatalf("ParseFrame failed: %v", err)
	}
	if frame.PayloadHeader.DataType != domain.DataTypeFocus {
		t.Fatalf("DataType = %d, want focus", frame.PayloadHeader.DataType)
	}
	focus, err := domain.DecodeFocusFrame(frame.Body)
	if err != nil {
		t.Fatalf("DecodeFocusFrame failed: %v", err)
	}
	return frame, focus
}

func TestConquestApplication_CameraProducesFocusFrame(t *testing.T) {
	ctx := context.Background()
	f := newConquestFixture(t, ConquestConfig{})
	id := domain.NewSessionID()

	if err := f.app.Join(ctx, id); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if out := f.app.Tick(ctx); out != nil {
		t.Fatalf("Tick before any camera = %d messages, want none", len(out))
	}

	if err := f.app.HandleMessage(ctx, id, cameraMessage(id, 0, 0, 8, 8)); err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	out := f.app.Tick(ctx)
	if len(out) != 1 || out[0].SessionID != id {
		t.Fatalf("Tick = %+v, want one frame for the session", out)
	}
	frame, focus := decodeFocus(t, out[0])
	if frame.Header.Seq != 1 {
		t.Errorf("Seq = %d, want 1", frame.Header.Seq)
	}
	if focus.Rect != [4]int32{-1, -1, 1, 1} {
		t.Errorf("Rect = %v", focus.Rect)
	}
	if len(focus.Planets) != 9 {
		t.Fatalf("planets = %d, want 9", len(focus.Planets))
	}
	for i := 1; i < len(focus.Planets); i++ {
		if focus.Planets[i-1].Y > focus.Planets[i].Y {
			t.Fatalf("planets not sorted by y: %+v", focus.Planets)
		}
	}
}

func TestConquestApplication_CoalescesUpdatesPerTick(t *testing.T) {
	ctx := context.Background()
	f := newConquestFixture(t, ConquestConfig{})
	id := domain.NewSessionID()
	f.app.Join(ctx, id)

	f.app.HandleMessage(ctx, id, cameraMessage(id, 0, 0, 8, 8))
	f.app.HandleMessage(ctx, id, cameraMessage(id, 40, 0, 8, 8))

	out := f.app.Tick(ctx)
	if len(out) != 1 {
		t.Fatalf("Tick = %d messages, want 1", len(out))
	}
	_, focus := decodeFocus(t, out[0])
	if focus.Rect != [4]int32{9, -1, 11, 1} {
		t.Errorf("Rect = %v, want the latest camera", focus.Rect)
	}

	// 同じカメラでは集合が変わらないので送らない
	f.app.HandleMessage(ctx, id, cameraMessage(id, 40, 0, 8, 8))
	if out := f.app.Tick(ctx); out != nil {
		t.Errorf("identical camera produced %d messages", len(out))
	}
}

func TestConquestApplication_AttachesChainState(t *testing.T) {
	ctx := context.Background()
	f := newConquestFixture(t, ConquestConfig{RefreshEvery: 2}, memory.PlanetRecord{
		Location: core.Location{X: 0, Y: 0},
		State:    core.PlanetState{Owner: attacker, NumSpaceships: 77},
	})
	id := domain.NewSessionID()
	f.app.Join(ctx, id)
	f.app.HandleMessage(ctx, id, cameraMessage(id, 0, 0, 4, 4))

	out := f.app.Tick(ctx) // tick 1
	_, focus := decodeFocus(t, out[0])
	var origin *domain.FocusPlanet
	for i := range focus.Planets {
		if focus.Planets[i].X == 0 && focus.Planets[i].Y == 0 {
			origin = &focus.Planets[i]
		}
	}
	if origin == nil || origin.State == nil || origin.State.NumSpaceships != 77 {
		t.Fatalf("origin = %+v, want attached state", origin)
	}

	if err := f.store.UpsertPlanetState(ctx, core.Location{X: 0, Y: 0}, core.PlanetState{Owner: attacker, NumSpaceships: 90}); err != nil {
		t.Fatal(err)
	}
	out = f.app.Tick(ctx) // tick 2 で取り直す
	if len(out) != 1 {
		t.Fatalf("refresh tick = %d messages, want 1", len(out))
	}
	_, focus = decodeFocus(t, out[0])
	for _, p := range focus.Planets {
		if p.X == 0 && p.Y == 0 && (p.State == nil || p.State.NumSpaceships != 90) {
			t.Errorf("refreshed state = %+v, want 90 ships", p.State)
		}
	}
}

func TestConquestApplication_RejectsBadCamera(t *testing.T) {
	ctx := context.Background()
	f := newConquestFixture(t, ConquestConfig{MaxFocusArea: 100})
	id := domain.NewSessionID()
	f.app.Join(ctx, id)

	tests := []struct {
		name string
		msg  []byte
		want error
	}{
		{"too large", cameraMessage(id, 0, 0, 400, 400), ErrFocusTooLarge},
		{"nan", cameraMessage(id, float32(math.NaN()), 0, 8, 8), ErrInvalidCamera},
		{"negative size", cameraMessage(id, 0, 0, -8, 8), ErrInvalidCamera},
		{"out of grid", cameraMessage(id, 1e30, 0, 8, 8), ErrInvalidCamera},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := f.app.HandleMessage(ctx, id, tt.msg); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if out := f.app.Tick(ctx); out != nil {
		t.Errorf("rejected cameras produced %d messages", len(out))
	}
}

func TestConquestApplication_UnknownSessionAndLeave(t *testing.T) {
	ctx := context.Background()
	f := newConquestFixture(t, ConquestConfig{})
	id := domain.NewSessionID()

	if err := f.app.HandleMessage(ctx, id, cameraMessage(id, 0, 0, 8, 8)); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("err = %v, want ErrUnknownSession", err)
	}

	f.app.Join(ctx, id)
	f.app.HandleMessage(ctx, id, cameraMessage(id, 0, 0, 8, 8))
	f.app.Leave(ctx, id)
	if f.app.Sessions() != 0 {
		t.Errorf("Sessions = %d, want 0", f.app.Sessions())
	}
	if out := f.app.Tick(ctx); out != nil {
		t.Errorf("left session still received %d messages", len(out))
	}
	f.app.Leave(ctx, id) // 2回目は何もしない
}

func TestConquestApplication_CapturePreview(t *testing.T) {
	ctx := context.Background()
	defender := "0x00000000000000000000000000000000000000bb"
	f := newConquestFixture(t, ConquestConfig{}, memory.PlanetRecord{
		Location: core.Location{X: 5, Y: 5},
		State:    core.PlanetState{Owner: defender, NumSpaceships: 30},
	})
	id := domain.NewSessionID()
	f.app.Join(ctx, id)

	f.app.HandleMessage(ctx, id, captureMessage(t, id, 1, 2, 11, attacker))
	f.app.HandleMessage(ctx, id, captureMessage(t, id, 5, 5, 12, attacker))

	out := f.app.Tick(ctx)
	if len(out) != 2 {
		t.Fatalf("Tick = %d messages, want 2", len(out))
	}

	want := []domain.CaptureResultFrame{
		// 原住民のみ: 150000*5000/10000 = 75000 を失い 25000 残る
		{RequestID: 11, X: 1, Y: 2, Attacker: attacker, Success: true, NumSpaceshipsLeft: 25000},
		// 他プレイヤーの艦隊がいる惑星は攻撃できない
		{RequestID: 12, X: 5, Y: 5, Attacker: attacker, Success: false, NumSpaceshipsLeft: 30},
	}
	for i, o := range out {
		frame, err := domain.ParseFrame(o.Data)
		if err != nil {
			t.Fatal(err)
		}
		if domain.CaptureSubType(frame.PayloadHeader.SubType) != domain.CaptureSubTypeResult {
			t.Fatalf("message %d subtype = %d, want result", i, frame.PayloadHeader.SubType)
		}
		got, err := domain.DecodeCaptureResultFrame(frame.Body)
		if err != nil {
			t.Fatal(err)
		}
		if *got != want[i] {
			t.Errorf("message %d = %+v, want %+v", i, got, want[i])
		}
	}

	counters := f.metrics.Counters()
	if counters["captures.success"] != 1 || counters["captures.failure"] != 1 {
		t.Errorf("counters = %v", counters)
	}
}

type failingPreviewer struct{}

func (failingPreviewer) Preview(ctx context.Context, payload request.Capture) (service.CapturePreview, error) {
	return service.CapturePreview{}, fmt.Errorf("%w: no planet", service.ErrInvalidPayload)
}

func TestConquestApplication_CaptureErrorFrame(t *testing.T) {
	ctx := context.Background()
	app := NewConquestApplication(ConquestConfig{}, denseGalaxy{}, nil, failingPreviewer{})
	id := domain.NewSessionID()
	app.Join(ctx, id)

	if err := app.HandleMessage(ctx, id, captureMessage(t, id, 0, 0, 7, attacker)); err != nil {
		t.Fatalf("rejected preview should not fail the message: %v", err)
	}
	out := app.Tick(ctx)
	if len(out) != 1 {
		t.Fatalf("Tick = %d messages, want 1", len(out))
	}
	frame, err := domain.ParseFrame(out[0].Data)
	if err != nil {
		t.Fatal(err)
	}
	if domain.CaptureSubType(frame.PayloadHeader.SubType) != domain.CaptureSubTypeError {
		t.Fatalf("subtype = %d, want error", frame.PayloadHeader.SubType)
	}
	got, err := domain.DecodeCaptureErrorFrame(frame.Body)
	if err != nil {
		t.Fatal(err)
	}
	if got.RequestID != 7 || got.Error == "" {
		t.Errorf("error frame = %+v", got)
	}
}
