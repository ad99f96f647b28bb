package request

import (
	"time"

	"conquest/domain"
)

// Meta はリクエスト共通のトレーシング情報を保持する。
type Meta struct {
	// RequestID はクライアントから渡された一意な識別子。
	RequestID string
	// OccurredAt はリクエストがクライアントで発生した時刻。
	OccurredAt time.Time
}

// Capture は艦隊送出前の占領プレビューを要求するリクエスト。
type Capture struct {
	Meta     Meta
	Attacker string // 送出元のウォレットアドレス
	Location domain.Location
}
