package domain

import "context"

// Outbound はアプリケーションが次のtickで送り出すメッセージ。
// SessionID が空ならルーム全体へブロードキャストする。
type Outbound struct {
	SessionID SessionID
	Data      []byte
}

// Application はRoomのtickループ上で動くアプリケーションロジックです。
// すべてのメソッドはRoomの単一goroutineから呼ばれる。
type Application interface {
	Join(ctx context.Context, sessionID SessionID) error
	Leave(ctx context.Context, sessionID SessionID)
	HandleMessage(ctx context.Context, sessionID SessionID, data []byte) error
	Tick(ctx context.Context) []Outbound
}
