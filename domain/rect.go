package domain

import "math"

// DefaultCellSize はカメラ座標から惑星グリッドへの変換係数。
const DefaultCellSize = 4.0

// Rect は惑星グリッド上の矩形 (両端を含む) です。
type Rect struct {
	X0, Y0 int32
	X1, Y1 int32
}

// EmptyRect はどの座標も含まない矩形。FocusIndex の初期値として使う。
var EmptyRect = Rect{X0: 0, Y0: 0, X1: -1, Y1: -1}

// IsEmpty は矩形が座標を1つも含まない場合にtrueを返す。
func (r Rect) IsEmpty() bool {
	return r.X0 > r.X1 || r.Y0 > r.Y1
}

func (r Rect) Contains(x, y int32) bool {
	return x >= r.X0 && x <= r.X1 && y >= r.Y0 && y <= r.Y1
}

func (r Rect) ContainsLocation(l Location) bool {
	return r.Contains(l.X, l.Y)
}

// Area は矩形に含まれる座標の数を返す。
func (r Rect) Area() int64 {
	if r.IsEmpty() {
		return 0
	}
	return (int64(r.X1) - int64(r.X0) + 1) * (int64(r.Y1) - int64(r.Y0) + 1)
}

// Camera は連続座標系でのカメラ状態です。
type Camera struct {
	X, Y          float64
	Width, Height float64
}

// RectFromCamera はカメラの表示範囲を覆うグリッド矩形を返す。
// cellSize が0以下の場合は DefaultCellSize を使う。
func RectFromCamera(cam Camera, cellSize float64) Rect {
	if cellSize <= 0 {
		cellSize = DefaultCellSize
	}
	halfW := cam.Width / 2
	halfH := cam.Height / 2
	return Rect{
		X0: int32(math.Floor((cam.X - halfW) / cellSize)),
		Y0: int32(math.Floor((cam.Y - halfH) / cellSize)),
		X1: int32(math.Ceil((cam.X + halfW) / cellSize)),
		Y1: int32(math.Ceil((cam.Y + halfH) / cellSize)),
	}
}
