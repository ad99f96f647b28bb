package application

import (
	"encoding/binary"
	"sync"

	"lukechampine.com/blake3"

	core "conquest/domain"
)

const (
	DefaultGalaxyDensity   = 24 // 256 中 24 ≒ 9% のセルに惑星がある
	DefaultGalaxyCacheSize = 1 << 16
	planetSubtypes         = 8
)

// GalaxyConfig は銀河生成のパラメータ
type GalaxyConfig struct {
	Seed string
	// Density はハッシュ先頭バイトの閾値。この値未満なら惑星がある。
	Density uint8
	// CacheSize は PlanetAt の結果を保持する座標数の上限
	CacheSize int
}

type galaxyCell struct {
	info *core.PlanetInfo // nil は空セル
}

// Galaxy はシードから座標ごとの惑星を決定的に生成する PlanetInfoSource 実装です。
// 同じシード・座標からは常に同じ惑星が得られる。
type Galaxy struct {
	seed    []byte
	density uint8

	mu       sync.Mutex
	cache    map[core.Location]galaxyCell
	order    []core.Location // 追い出し順 (リングバッファ)
	next     int
	capacity int
}

var _ core.PlanetInfoSource = (*Galaxy)(nil)

func NewGalaxy(cfg GalaxyConfig) *Galaxy {
	if cfg.Density == 0 {
		cfg.Density = DefaultGalaxyDensity
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultGalaxyCacheSize
	}
	return &Galaxy{
		seed:     []byte(cfg.Seed),
		density:  cfg.Density,
		cache:    make(map[core.Location]galaxyCell, cfg.CacheSize),
		order:    make([]core.Location, 0, cfg.CacheSize),
		capacity: cfg.CacheSize,
	}
}

// PlanetAt は (x, y) の惑星を返す。返した PlanetInfo は共有されるので変更しないこと。
func (g *Galaxy) PlanetAt(x, y int32) (*core.PlanetInfo, bool) {
	loc := core.Location{X: x, Y: y}

	g.mu.Lock()
	defer g.mu.Unlock()

	if cell, ok := g.cache[loc]; ok {
		return cell.info, cell.info != nil
	}
	info := g.generate(loc)
	g.remember(loc, galaxyCell{info: info})
	return info, info != nil
}

// CacheLen はメモ化済みの座標数を返す
func (g *Galaxy) CacheLen() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.cache)
}

func (g *Galaxy) remember(loc core.Location, cell galaxyCell) {
	if len(g.order) < g.capacity {
		g.order = append(g.order, loc)
	} else {
		delete(g.cache, g.order[g.next])
		g.order[g.next] = loc
		g.next = (g.next + 1) % g.capacity
	}
	g.cache[loc] = cell
}

func (g *Galaxy) generate(loc core.Location) *core.PlanetInfo {
	h := g.hash(loc)
	if h[0] >= g.density {
		return nil
	}
	u16 := func(i int) uint32 { return uint32(binary.LittleEndian.Uint16(h[i : i+2])) }
	u32 := func(i int) uint32 { return binary.LittleEndian.Uint32(h[i : i+4]) }

	return &core.PlanetInfo{
		Location: loc,
		Stats: core.PlanetStats{
			Subtype:    h[1] % planetSubtypes,
			Attack:     4000 + u16(2)%6000,
			Defense:    4000 + u16(4)%6000,
			Speed:      4500 + u16(6)%1500,
			Production: 1800 + u16(8)%3600,
			Natives:    20000 + u32(10)%230000,
			Capacity:   100000 + u32(14)%400000,
		},
	}
}

func (g *Galaxy) hash(loc core.Location) [32]byte {
	buf := make([]byte, len(g.seed)+8)
	n := copy(buf, g.seed)
	binary.LittleEndian.PutUint32(buf[n:], uint32(loc.X))
	binary.LittleEndian.PutUint32(buf[n+4:], uint32(loc.Y))
	return blake3.Sum256(buf)
}
