package domain

import "sync"

// Observable は値を1つ保持し、変更を購読者へ同期的に通知する状態コンテナです。
// Set はオーナーが単一の制御フローから呼ぶこと。購読者リストだけはロックで保護する。
type Observable[T any] struct {
	mu     sync.Mutex
	value  T
	nextID uint64
	subs   []subscriber[T]
}

type subscriber[T any] struct {
	id uint64
	fn func(T)
}

func NewObservable[T any](initial T) *Observable[T] {
	return &Observable[T]{value: initial}
}

func (o *Observable[T]) Get() T {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.value
}

// Set は値を更新してから、購読順に全購読者へ通知します。
func (o *Observable[T]) Set(v T) {
	o.mu.Lock()
	o.value = v
	subs := make([]subscriber[T], len(o.subs))
	copy(subs, o.subs)
	o.mu.Unlock()

	for _, s := range subs {
		s.fn(v)
	}
}

// Subscribe は fn を登録し、現在の値で即座に1回呼び出します。
// 戻り値の関数を呼ぶと購読を解除します。
func (o *Observable[T]) Subscribe(fn func(T)) func() {
	o.mu.Lock()
	o.nextID++
	id := o.nextID
	o.subs = append(o.subs, subscriber[T]{id: id, fn: fn})
	current := o.value
	o.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() { o.unsubscribe(id) })
	}
}

// Len は現在の購読者数を返す。
func (o *Observable[T]) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.subs)
}

func (o *Observable[T]) unsubscribe(id uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, s := range o.subs {
		if s.id == id {
			o.subs = append(o.subs[:i], o.subs[i+1:]...)
			return
		}
	}
}
