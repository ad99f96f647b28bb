package memory

import (
	"context"
	"sync"
	"time"

	"conquest/application/state"
	"conquest/domain"
)

// ConcurrentStore は Store をラップし、排他制御付きで PlanetStates を実装する。
type ConcurrentStore struct {
	base *Store
	clk  func() time.Time
	mu   sync.RWMutex
}

// NewConcurrentStore は新しい ConcurrentStore を生成する。
func NewConcurrentStore(base *Store) *ConcurrentStore {
	return &ConcurrentStore{
		base: base,
		clk:  time.Now,
	}
}

// WithClock はテスト用に時間ソースを差し替える。
func (c *ConcurrentStore) WithClock(clock func() time.Time) *ConcurrentStore {
	if clock != nil {
		c.clk = clock
	}
	return c
}

func (c *ConcurrentStore) GetPlanetState(ctx context.Context, loc domain.Location) (domain.PlanetState, bool, error) {
	_ = ctx
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.base.get(loc)
	return st, ok, nil
}

func (c *ConcurrentStore) UpsertPlanetState(ctx context.Context, loc domain.Location, st domain.PlanetState) error {
	_ = ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.base.upsert(loc, st, c.now())
}

// PlanetState は FocusIndex に状態を付与するための参照口。
func (c *ConcurrentStore) PlanetState(loc domain.Location) (domain.PlanetState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.base.get(loc)
}

func (c *ConcurrentStore) Snapshot() []PlanetRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.base.snapshot()
}

func (c *ConcurrentStore) Stats() StoreStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.base.stats
}

func (c *ConcurrentStore) now() time.Time {
	if c.clk == nil {
		return time.Now()
	}
	return c.clk()
}

var (
	_ state.PlanetStates       = (*ConcurrentStore)(nil)
	_ domain.PlanetStateSource = (*ConcurrentStore)(nil)
)
