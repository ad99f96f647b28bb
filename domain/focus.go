package domain

import "sort"

//go:generate go tool mockgen -destination=./mocks/source_mock.go -package=mocks . PlanetInfoSource,PlanetStateSource

// PlanetInfoSource は座標から静的な惑星情報を引く銀河生成関数です。
// 決定的で副作用を持たないこと。惑星がない座標では false を返す。
type PlanetInfoSource interface {
	PlanetAt(x, y int32) (*PlanetInfo, bool)
}

// PlanetStateSource はフォーカス中の惑星にチェーン状態を付与するための参照口です。
type PlanetStateSource interface {
	PlanetState(loc Location) (PlanetState, bool)
}

// FocusEntry はフォーカス集合の1要素。視界に残っている間は同じポインタが使われ続ける。
type FocusEntry struct {
	Info  *PlanetInfo
	State *PlanetState
}

type FocusOption func(*FocusIndex)

// WithStateSource は視界に入った惑星へチェーン状態を付与する。
func WithStateSource(src PlanetStateSource) FocusOption {
	return func(f *FocusIndex) {
		f.states = src
	}
}

// WithCellSize はカメラ座標からグリッドへの変換係数を設定する。
func WithCellSize(cellSize float64) FocusOption {
	return func(f *FocusIndex) {
		if cellSize > 0 {
			f.cellSize = cellSize
		}
	}
}

// FocusIndex は移動する矩形ビューポート内の惑星集合を差分更新で保持します。
// Update は単一の制御フロー (Room の tick ループなど) から呼ぶこと。
type FocusIndex struct {
	source   PlanetInfoSource
	states   PlanetStateSource
	cellSize float64

	last    Rect
	planets []*FocusEntry

	observable *Observable[[]*FocusEntry]
}

// NewFocusIndex は空の集合と空の矩形から始まる FocusIndex を生成します。
func NewFocusIndex(source PlanetInfoSource, opts ...FocusOption) *FocusIndex {
	f := &FocusIndex{
		source:     source,
		cellSize:   DefaultCellSize,
		last:       EmptyRect,
		observable: NewObservable[[]*FocusEntry](nil),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Update はフォーカス矩形を rect に変更し、出入りした惑星を反映して購読者へ通知します。
// 直前と同じ矩形なら何もしない。
func (f *FocusIndex) Update(rect Rect) {
	if rect == f.last {
		return
	}

	// 退出判定はこの呼び出しの前から存在した要素だけを対象にする
	numBefore := len(f.planets)

	// 新しい矩形のうち、古い矩形に含まれていなかった座標を全走査する
	// int32 の上限で x++ が一周しないよう int64 で数える
	for x64 := int64(rect.X0); x64 <= int64(rect.X1); x64++ {
		for y64 := int64(rect.Y0); y64 <= int64(rect.Y1); y64++ {
			x, y := int32(x64), int32(y64)
			if f.last.Contains(x, y) {
				continue
			}
			info, ok := f.source.PlanetAt(x, y)
			if !ok || info == nil {
				continue
			}
			f.planets = append(f.planets, f.newEntry(info))
		}
	}

	f.last = rect

	for i := 0; i < numBefore; i++ {
		if rect.ContainsLocation(f.planets[i].Info.Location) {
			continue
		}
		f.planets = append(f.planets[:i], f.planets[i+1:]...)
		i--
		numBefore--
	}

	sort.SliceStable(f.planets, func(i, j int) bool {
		return f.planets[i].Info.Location.Y < f.planets[j].Info.Location.Y
	})

	f.publish()
}

// UpdateCamera はカメラ状態から矩形を求めて Update する。
func (f *FocusIndex) UpdateCamera(cam Camera) {
	f.Update(RectFromCamera(cam, f.cellSize))
}

// RefreshStates は現在の要素のチェーン状態を取り直して通知します。要素自体は作り直さない。
func (f *FocusIndex) RefreshStates() {
	if f.states == nil {
		return
	}
	for _, e := range f.planets {
		e.State = f.lookupState(e.Info.Location)
	}
	f.publish()
}

// Planets は現在のフォーカス集合のコピーを y 昇順で返す。
func (f *FocusIndex) Planets() []*FocusEntry {
	out := make([]*FocusEntry, len(f.planets))
	copy(out, f.planets)
	return out
}

// Focus は最後に適用した矩形を返す。
func (f *FocusIndex) Focus() Rect {
	return f.last
}

func (f *FocusIndex) Len() int {
	return len(f.planets)
}

// Subscribe はフォーカス集合の購読を登録します。fn は現在の集合で即座に呼ばれる。
func (f *FocusIndex) Subscribe(fn func([]*FocusEntry)) func() {
	return f.observable.Subscribe(fn)
}

func (f *FocusIndex) newEntry(info *PlanetInfo) *FocusEntry {
	return &FocusEntry{Info: info, State: f.lookupState(info.Location)}
}

func (f *FocusIndex) lookupState(loc Location) *PlanetState {
	if f.states == nil {
		return nil
	}
	st, ok := f.states.PlanetState(loc)
	if !ok {
		return nil
	}
	return &st
}

func (f *FocusIndex) publish() {
	f.observable.Set(f.Planets())
}
