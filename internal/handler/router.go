// Package handler は運用用HTTPエンドポイントのルーティングを提供する。
// 収穫はワーカーループが駆動し、ここでは状態の観測のみを公開する。
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/feedharvest/internal/model"
)

// SummaryProvider は直近の実行サマリーの取得インターフェース。
type SummaryProvider interface {
	LastSummary() (*model.RunSummary, bool)
}

// MirrorStateProvider はミラー健全性状態の取得インターフェース。
type MirrorStateProvider interface {
	States() map[string]model.HealthState
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Summary        SummaryProvider
	MirrorStates   MirrorStateProvider
	MetricsHandler http.Handler
}

// NewRouter は運用エンドポイントのルーティングを構成したchi.Routerを返す。
//
//	GET /health  - 稼働確認
//	GET /metrics - Prometheusスクレイプ
//	GET /summary - 直近の実行サマリー（初回実行前は404）
//	GET /mirrors - ミラー健全性状態のスナップショット
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Get("/summary", handleSummary(deps.Summary))
	r.Get("/mirrors", handleMirrors(deps.MirrorStates))

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSummary は直近の実行サマリーを返す。
// まだ1回も実行が完了していない場合は404を返す。
func handleSummary(provider SummaryProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if provider == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no run completed yet"})
			return
		}
		summary, ok := provider.LastSummary()
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no run completed yet"})
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

// handleMirrors はミラー健全性状態のスナップショットを返す。
func handleMirrors(provider MirrorStateProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if provider == nil {
			writeJSON(w, http.StatusOK, map[string]model.HealthState{})
			return
		}
		writeJSON(w, http.StatusOK, provider.States())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
