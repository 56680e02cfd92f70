// Package model はドメインモデルを定義する。
package model

import "time"

// Post は正規化された収穫済み投稿を表す。
// Content は常にマークアップ除去済みであり、URL は空文字列または
// 構文的に正しい絶対URLのいずれかである。
type Post struct {
	Title       string    `json:"title"`
	Source      string    `json:"source"`
	URL         string    `json:"url"`
	Content     string    `json:"content"`
	Sentiment   string    `json:"sentiment"`
	Category    string    `json:"category"`
	PublishedAt time.Time `json:"published_at"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// Account は購読リストから導出された収穫対象アカウントを表す。
// パース後はイミュータブルとして扱う。
type Account struct {
	Handle   string
	Title    string
	URL      string
	Category string
}

// EndpointMode はミラーエンドポイントのトランスポート種別を表す。
type EndpointMode string

const (
	// ModeRenderProxy はフェッチ・抽出型のリーダープロキシ。
	// 常に利用可能とみなされるベースライン。
	ModeRenderProxy EndpointMode = "render-proxy"
	// ModeDirectMirror は直接アクセス可能なフロントエンドミラー。
	ModeDirectMirror EndpointMode = "direct-mirror"
)

// MirrorEndpoint は投稿を配信可能な代替フロントエンドを表す。
type MirrorEndpoint struct {
	BaseURL string       `json:"base_url"`
	Mode    EndpointMode `json:"mode"`
}

// IsBaseline はエンドポイントがレンダープロキシ（ベースライン）かを返す。
func (e MirrorEndpoint) IsBaseline() bool {
	return e.Mode == ModeRenderProxy
}

// HealthState はミラーエンドポイントの健全性状態を表す。
type HealthState string

const (
	// StateHealthy は正常応答を返す状態。
	StateHealthy HealthState = "healthy"
	// StateDegraded は対話的チャレンジの背後にあるが到達可能な状態。
	// レンダリングセッションは通過できるため利用可能として扱う。
	StateDegraded HealthState = "degraded"
	// StateBlocked はログインウォール等で利用不能な状態。
	StateBlocked HealthState = "blocked"
	// StateRateLimited はレート制限中の状態。
	StateRateLimited HealthState = "rate-limited"
)

// Usable は収穫試行に使用できる健全性状態かを返す。
func (s HealthState) Usable() bool {
	return s == StateHealthy || s == StateDegraded
}

// ExtractMethod は投稿の抽出方法を表す。
type ExtractMethod string

const (
	// MethodProfile はプロフィール/タイムラインの直接取得。
	MethodProfile ExtractMethod = "profile"
	// MethodSearch はアカウントスコープの検索クエリによる取得。
	MethodSearch ExtractMethod = "search"
)

// StrategyRecord はアカウントごとに最後に成功した
// （エンドポイント, 抽出方法）の組み合わせを表す。
// ファストパスのヒントであり、盲信してはならない。
type StrategyRecord struct {
	Endpoint    MirrorEndpoint `json:"endpoint"`
	Method      ExtractMethod  `json:"method"`
	LastSuccess time.Time      `json:"last_success"`
}

// HealthRecord はアカウントごとの成功/失敗履歴を表す。
type HealthRecord struct {
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastSuccess         time.Time `json:"last_success"`
	LastFingerprint     string    `json:"last_fingerprint"`
	PausedUntil         time.Time `json:"paused_until,omitzero"`
}
