package handler

import (
	"encoding/json"
	"net/http"
)

// StatsFunc はヘルスチェックに載せる統計を返す
type StatsFunc func() map[string]int

func NewHealthHandler(stats StatsFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{"status": "ok"}
		if stats != nil {
			body["counters"] = stats()
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(body)
	}
}
