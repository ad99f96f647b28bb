package memory

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"conquest/domain"
)

var (
	ErrInvalidOwner = errors.New("memory: occupied planet must have an owner")
)

// Store はチェーンから同期した惑星状態をインメモリに保持する共通ストレージ。
// 並行実装・単一ループ実装は本ストアをラップして利用し、ロック戦略のみを差し替える。
type Store struct {
	planets map[domain.Location]*domain.PlanetState
	stats   StoreStats
}

// StoreStats は取り込み状況の集計値。
type StoreStats struct {
	Owned       int
	Natives     int
	Upserts     int
	LastUpdated time.Time
}

// PlanetRecord はスナップショットの1行。
type PlanetRecord struct {
	Location domain.Location
	State    domain.PlanetState
}

// NewStore は初期状態をコピーしつつストアを生成する。
func NewStore(records []PlanetRecord) *Store {
	store := &Store{
		planets: make(map[domain.Location]*domain.PlanetState, len(records)),
	}
	for i := range records {
		r := records[i]
		st := r.State
		store.planets[r.Location] = &st
	}
	store.stats = store.computeStats()
	return store
}

func (s *Store) get(loc domain.Location) (domain.PlanetState, bool) {
	st, ok := s.planets[loc]
	if !ok {
		return domain.PlanetState{}, false
	}
	return *st, true
}

// ValidateState は原住民のいない艦隊に所有者があることを確かめる。
// ストアへの書き込みとフィクスチャの読み込みで同じ規則を使う。
func ValidateState(loc domain.Location, st domain.PlanetState) error {
	if !st.Natives && st.NumSpaceships > 0 && st.Owner == "" {
		return fmt.Errorf("%w: %+v", ErrInvalidOwner, loc)
	}
	return nil
}

// tsを受け取るのはこの関数がstoreすることのみに集中するため
func (s *Store) upsert(loc domain.Location, st domain.PlanetState, ts time.Time) error {
	if err := ValidateState(loc, st); err != nil {
		return err
	}
	if st.LastUpdated == 0 {
		st.LastUpdated = ts.Unix()
	}
	if old, ok := s.planets[loc]; ok {
		s.stats.count(*old, -1)
	}
	s.planets[loc] = &st
	s.stats.count(st, 1)
	s.stats.Upserts++
	s.stats.LastUpdated = ts
	return nil
}

func (s *Store) snapshot() []PlanetRecord {
	out := make([]PlanetRecord, 0, len(s.planets))
	for loc, st := range s.planets {
		out = append(out, PlanetRecord{Location: loc, State: *st})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Location.Y != out[j].Location.Y {
			return out[i].Location.Y < out[j].Location.Y
		}
		return out[i].Location.X < out[j].Location.X
	})
	return out
}

func (s *Store) computeStats() StoreStats {
	stats := StoreStats{Upserts: s.stats.Upserts, LastUpdated: s.stats.LastUpdated}
	for _, st := range s.planets {
		stats.count(*st, 1)
	}
	return stats
}

// count は st の分類に応じて Owned/Natives を delta だけ動かす
func (stats *StoreStats) count(st domain.PlanetState, delta int) {
	if st.Natives {
		stats.Natives += delta
	} else if st.Owner != "" {
		stats.Owned += delta
	}
}
