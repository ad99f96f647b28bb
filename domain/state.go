package domain

import "strings"

// Location は惑星グリッド上の座標です。
type Location struct {
	X int32
	Y int32
}

// PlanetStats は座標から決定的に導出される惑星の静的ステータス。
type PlanetStats struct {
	Subtype    uint8
	Attack     uint32
	Defense    uint32
	Natives    uint32 // 原住民の守備隊数
	Speed      uint32
	Production uint32
	Capacity   uint32
}

// PlanetInfo は座標ごとの不変な惑星情報。生成後に変更されることはない。
type PlanetInfo struct {
	Location Location
	Stats    PlanetStats
}

// PlanetState はチェーンから同期した惑星の動的な状態のスナップショット。
// コアはこれを読むだけで変更しない。
type PlanetState struct {
	Owner         string
	NumSpaceships uint32
	Natives       bool
	LastUpdated   int64 // 最終同期時刻 (unix秒)
}

// NativeState は誰にも占有されていない惑星のスナップショットを返す。
func NativeState() PlanetState {
	return PlanetState{Natives: true}
}

// IsOwnedBy は所有者アドレスが address と一致するかを返す。
func (s PlanetState) IsOwnedBy(address string) bool {
	return SameAddress(s.Owner, address)
}

// SameAddress はアドレスを大文字小文字を区別せずに比較する。空アドレス同士は一致しない。
func SameAddress(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.EqualFold(a, b)
}
