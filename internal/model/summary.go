// Package model はドメインモデルを定義する。
package model

import "time"

// StrategyKind は収穫に成功した戦略の種別を表す。
type StrategyKind string

const (
	// StrategyFastPath はキャッシュ済み戦略の再生による成功。
	StrategyFastPath StrategyKind = "fast_path"
	// StrategyRaced は複数ミラーのレースによる成功。
	StrategyRaced StrategyKind = "raced"
	// StrategySearch は検索フォールバックによる成功。
	StrategySearch StrategyKind = "search"
	// StrategyFailed は全戦略の失敗。
	StrategyFailed StrategyKind = "failed"
)

// AccountResult は1アカウントの処理結果を表す。
type AccountResult struct {
	Handle     string       `json:"handle"`
	Title      string       `json:"title"`
	Success    bool         `json:"success"`
	Skipped    bool         `json:"skipped"`
	ItemCount  int          `json:"item_count"`
	Strategy   StrategyKind `json:"strategy"`
	Endpoint   string       `json:"endpoint,omitempty"`
	DurationMS int64        `json:"duration_ms"`
	Error      string       `json:"error,omitempty"`
}

// FailedAccount は失敗アカウントと理由の組を表す。
type FailedAccount struct {
	Handle string `json:"handle"`
	Reason string `json:"reason"`
}

// RunSummary は1回の収穫実行の集計結果を表す。
// JSONアーティファクトとして書き出され、成否の唯一の参照点となる。
type RunSummary struct {
	RunID           string               `json:"run_id"`
	StartedAt       time.Time            `json:"started_at"`
	FinishedAt      time.Time            `json:"finished_at"`
	DurationMS      int64                `json:"duration_ms"`
	TotalAccounts   int                  `json:"total_accounts"`
	SuccessfulFeeds int                  `json:"successful_feeds"`
	FailedFeeds     int                  `json:"failed_feeds"`
	SkippedFeeds    int                  `json:"skipped_feeds"`
	TotalPosts      int                  `json:"total_posts"`
	StrategyCounts  map[StrategyKind]int `json:"strategy_counts"`
	EndpointWins    map[string]int       `json:"endpoint_wins"`
	FailedAccounts  []FailedAccount      `json:"failed_accounts"`
	Accounts        []AccountResult      `json:"accounts"`
}
