package state

import (
	"context"
	"time"

	"conquest/domain"
)

// PlanetStateReader はチェーンから同期済みの惑星状態を読み出す。
// 見つからない場合は ok=false を返し、エラーにはしない。
type PlanetStateReader interface {
	GetPlanetState(ctx context.Context, loc domain.Location) (domain.PlanetState, bool, error)
}

// PlanetStateWriter は同期フィードやフィクスチャから状態を取り込む。
type PlanetStateWriter interface {
	UpsertPlanetState(ctx context.Context, loc domain.Location, st domain.PlanetState) error
}

type PlanetStates interface {
	PlanetStateReader
	PlanetStateWriter
}

type MetricsRecorder interface {
	RecordLatency(ctx context.Context, endpoint string, duration time.Duration)
	RecordContention(ctx context.Context, endpoint string, wait time.Duration)
	IncrementCounter(ctx context.Context, name string, delta int)
}
