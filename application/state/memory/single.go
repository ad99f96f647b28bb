package memory

import (
	"context"
	"time"

	"conquest/application/state"
	"conquest/domain"
)

// SingleThreadStore は Room の tick ループなど単一の制御フローから使うためのロックなし実装。
type SingleThreadStore struct {
	base *Store
	clk  func() time.Time
}

func NewSingleThreadStore(base *Store) *SingleThreadStore {
	return &SingleThreadStore{
		base: base,
		clk:  time.Now,
	}
}

func (s *SingleThreadStore) WithClock(clock func() time.Time) *SingleThreadStore {
	if clock != nil {
		s.clk = clock
	}
	return s
}

func (s *SingleThreadStore) GetPlanetState(ctx context.Context, loc domain.Location) (domain.PlanetState, bool, error) {
	_ = ctx
	st, ok := s.base.get(loc)
	return st, ok, nil
}

func (s *SingleThreadStore) UpsertPlanetState(ctx context.Context, loc domain.Location, st domain.PlanetState) error {
	_ = ctx
	return s.base.upsert(loc, st, s.now())
}

func (s *SingleThreadStore) PlanetState(loc domain.Location) (domain.PlanetState, bool) {
	return s.base.get(loc)
}

func (s *SingleThreadStore) Snapshot() []PlanetRecord {
	return s.base.snapshot()
}

func (s *SingleThreadStore) now() time.Time {
	if s.clk == nil {
		return time.Now()
	}
	return s.clk()
}

var (
	_ state.PlanetStates       = (*SingleThreadStore)(nil)
	_ domain.PlanetStateSource = (*SingleThreadStore)(nil)
)
