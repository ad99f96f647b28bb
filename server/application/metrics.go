package application

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"time"

	"conquest/application/state"
)

// CounterMetrics はカウンタをプロセス内に保持し、レイテンシはdebugログに流す MetricsRecorder です。
type CounterMetrics struct {
	mu       sync.Mutex
	counters map[string]int
	slowest  map[string]time.Duration
}

var _ state.MetricsRecorder = (*CounterMetrics)(nil)

func NewCounterMetrics() *CounterMetrics {
	return &CounterMetrics{
		counters: make(map[string]int),
		slowest:  make(map[string]time.Duration),
	}
}

func (m *CounterMetrics) RecordLatency(ctx context.Context, endpoint string, duration time.Duration) {
	m.mu.Lock()
	if duration > m.slowest[endpoint] {
		m.slowest[endpoint] = duration
	}
	m.mu.Unlock()
	slog.DebugContext(ctx, "latency", "endpoint", endpoint, "duration", duration)
}

func (m *CounterMetrics) RecordContention(ctx context.Context, endpoint string, wait time.Duration) {
	m.IncrementCounter(ctx, "contention."+endpoint, 1)
}

func (m *CounterMetrics) IncrementCounter(ctx context.Context, name string, delta int) {
	m.mu.Lock()
	m.counters[name] += delta
	m.mu.Unlock()
}

// Counters は現在のカウンタのコピーを返す
func (m *CounterMetrics) Counters() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.counters)
}

// Slowest はエンドポイントごとの最大レイテンシを返す
func (m *CounterMetrics) Slowest(endpoint string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slowest[endpoint]
}
