package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"conquest/application/request"
	"conquest/application/state"
	"conquest/domain"
)

var (
	ErrInvalidPayload = errors.New("service: invalid payload")
	ErrPlanetNotFound = errors.New("service: no planet at location")
)

// CapturePreview は占領プレビューの結果と、計算に使ったスナップショット。
type CapturePreview struct {
	Location domain.Location
	Attacker string
	Planet   domain.PlanetInfo
	State    domain.PlanetState
	Result   domain.CombatResult
}

// CaptureService は艦隊送出前に占領結果をプレビューするサービス。
// 入力検証 → チェーン状態の参照 → 戦闘シミュレーションの順に処理する。
type CaptureService struct {
	planets   domain.PlanetInfoSource
	state     state.PlanetStateReader
	metrics   state.MetricsRecorder
	clock     Clock
	validate  Validator
	simulator Simulator
}

func NewCaptureService(planets domain.PlanetInfoSource, s state.PlanetStateReader, m state.MetricsRecorder, clock Clock, validator Validator, simulator Simulator) (*CaptureService, error) {
	if planets == nil || s == nil || m == nil || clock == nil || validator == nil || simulator == nil {
		return nil, fmt.Errorf("service: missing dependencies: planets=%v state=%v metrics=%v clock=%v validator=%v simulator=%v",
			planets, s, m, clock, validator, simulator)
	}
	return &CaptureService{
		planets:   planets,
		state:     s,
		metrics:   m,
		clock:     clock,
		validate:  validator,
		simulator: simulator,
	}, nil
}

func (s *CaptureService) Preview(ctx context.Context, payload request.Capture) (CapturePreview, error) {
	start := s.clock.Now()
	defer s.record("capture", start)

	if err := s.validate.Capture(payload); err != nil {
		return CapturePreview{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	info, ok := s.planets.PlanetAt(payload.Location.X, payload.Location.Y)
	if !ok || info == nil {
		return CapturePreview{}, fmt.Errorf("%w: %w (%d,%d)", ErrInvalidPayload, ErrPlanetNotFound, payload.Location.X, payload.Location.Y)
	}
	// defense == 0 はシミュレータの前提条件違反なのでここで弾く
	if err := s.validate.Planet(*info); err != nil {
		return CapturePreview{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	st, found, err := s.state.GetPlanetState(ctx, payload.Location)
	if err != nil {
		return CapturePreview{}, err
	}
	if !found {
		st = domain.NativeState()
	}

	result := s.simulator.SimulateCapture(payload.Attacker, *info, st)
	if result.Success {
		s.metrics.IncrementCounter(ctx, "captures.success", 1)
	} else {
		s.metrics.IncrementCounter(ctx, "captures.failure", 1)
	}

	return CapturePreview{
		Location: payload.Location,
		Attacker: payload.Attacker,
		Planet:   *info,
		State:    st,
		Result:   result,
	}, nil
}

func (s *CaptureService) record(endpoint string, started time.Time) {
	duration := s.clock.Since(started)
	ctx := context.Background()
	s.metrics.RecordLatency(ctx, endpoint, duration)
	s.metrics.IncrementCounter(ctx, "requests."+endpoint, 1)
}

type Clock interface {
	Now() time.Time
	Since(time.Time) time.Duration
}

type Validator interface {
	Capture(request.Capture) error
	Planet(domain.PlanetInfo) error
}

type Simulator interface {
	SimulateCapture(attacker string, info domain.PlanetInfo, st domain.PlanetState) domain.CombatResult
}

// RealClock は time パッケージをそのまま使う Clock。
type RealClock struct{}

func (RealClock) Now() time.Time                  { return time.Now() }
func (RealClock) Since(t time.Time) time.Duration { return time.Since(t) }
