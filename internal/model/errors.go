// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// HarvestError は統一エラーフォーマットを表す。
// エラー分類と運用者向けの対処方法を含む。
type HarvestError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: catalog, probe, attempt, run
	Action   string // 運用者向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *HarvestError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeCatalogNotFound = "CATALOG_NOT_FOUND"
	ErrCodeProbeFailed     = "PROBE_FAILED"
	ErrCodeAttemptFailed   = "ATTEMPT_FAILED"
	ErrCodeBlockedContent  = "BLOCKED_CONTENT"
	ErrCodeRendererInit    = "RENDERER_INIT"
	ErrCodeNoHealthyMirror = "NO_HEALTHY_MIRROR"
	ErrCodeIngestFailed    = "INGEST_FAILED"
)

// NewCatalogNotFoundError は購読ファイル未検出エラーを生成する。
// このカタログに対しては致命的だが、プロセス全体は継続する。
func NewCatalogNotFoundError(path string) *HarvestError {
	return &HarvestError{
		Code:     ErrCodeCatalogNotFound,
		Message:  fmt.Sprintf("購読ファイルが見つかりません: %s", path),
		Category: "catalog",
		Action:   "CATALOGS に指定したOPMLファイルのパスを確認してください。",
	}
}

// NewProbeFailedError はミラー疎通確認の失敗エラーを生成する。
// 該当ミラーは unhealthy に降格されるのみで、伝播はしない。
func NewProbeFailedError(baseURL string, reason string) *HarvestError {
	return &HarvestError{
		Code:     ErrCodeProbeFailed,
		Message:  fmt.Sprintf("ミラーの疎通確認に失敗しました: %s: %s", baseURL, reason),
		Category: "probe",
		Action:   "一時的な障害の可能性があります。次回の疎通確認まで待機してください。",
	}
}

// NewAttemptFailedError は個別の収穫試行の失敗エラーを生成する。
func NewAttemptFailedError(reason string) *HarvestError {
	return &HarvestError{
		Code:     ErrCodeAttemptFailed,
		Message:  fmt.Sprintf("収穫試行に失敗しました: %s", reason),
		Category: "attempt",
		Action:   "他のミラーでの試行が継続されます。対応は不要です。",
	}
}

// NewBlockedContentError はブロック済みコンテンツの検出エラーを生成する。
// ログインウォール、レート制限、アカウント凍結などが該当する。
func NewBlockedContentError(marker string) *HarvestError {
	return &HarvestError{
		Code:     ErrCodeBlockedContent,
		Message:  fmt.Sprintf("ブロック済みコンテンツを検出しました: %s", marker),
		Category: "attempt",
		Action:   "レスポンス全体を破棄しました。別のミラーでの試行が継続されます。",
	}
}

// NewRendererInitError はレンダリングバックエンドの初期化失敗エラーを生成する。
// 1回の自動再起動の後も失敗した場合は実行レベルで致命的となる。
func NewRendererInitError(reason string) *HarvestError {
	return &HarvestError{
		Code:     ErrCodeRendererInit,
		Message:  fmt.Sprintf("レンダリングバックエンドの初期化に失敗しました: %s", reason),
		Category: "run",
		Action:   "ネットワーク設定と POOL_SIZE を確認し、プロセスを再起動してください。",
	}
}

// NewNoHealthyMirrorError は利用可能なミラーが存在しないエラーを生成する。
func NewNoHealthyMirrorError() *HarvestError {
	return &HarvestError{
		Code:     ErrCodeNoHealthyMirror,
		Message:  "利用可能なミラーエンドポイントがありません。",
		Category: "attempt",
		Action:   "MIRROR_URLS と BASELINE_URL の設定を確認してください。",
	}
}

// NewIngestFailedError は下流パイプラインへの受け渡し失敗エラーを生成する。
func NewIngestFailedError(reason string) *HarvestError {
	return &HarvestError{
		Code:     ErrCodeIngestFailed,
		Message:  fmt.Sprintf("取り込みパイプラインへの受け渡しに失敗しました: %s", reason),
		Category: "run",
		Action:   "INGEST_URL の接続先が稼働しているか確認してください。投稿は次回バッチで再送されません。",
	}
}

// IsCode はエラーが指定コードのHarvestErrorかを判定する。
func IsCode(err error, code string) bool {
	var he *HarvestError
	if errors.As(err, &he) {
		return he.Code == code
	}
	return false
}
