package mirror

import (
	"net/http"
	"strings"

	"github.com/hitoshi/feedharvest/internal/model"
)

// ProbeClassifier は疎通確認レスポンスの健全性判定ポリシーを定義する。
// 403やチャレンジ応答をどう扱うかはヒューリスティックであり、
// このシームの背後に隔離することでポリシーだけを差し替え可能にする。
type ProbeClassifier interface {
	// Classify はHTTPステータスとレスポンスボディから健全性状態を判定する。
	Classify(statusCode int, body string) model.HealthState
}

// defaultClassifier は標準の判定ポリシー。
// レンダリングセッションは対話的チャレンジを通過できるため、
// 403やチャレンジページは degraded（利用可能）として扱う。
type defaultClassifier struct{}

// NewDefaultClassifier は標準のProbeClassifierを生成する。
func NewDefaultClassifier() *defaultClassifier {
	return &defaultClassifier{}
}

// challengeMarkers は対話的チャレンジページを示すマーカー。
var challengeMarkers = []string{
	"Just a moment...",
	"Attention Required! | Cloudflare",
}

// blockedMarkers はハードなログインウォールやアカウント不在を示すマーカー。
var blockedMarkers = []string{
	"403 | Nitter",
	"This account doesn't exist",
	"User not found",
	"Account suspended",
}

// healthyMarkers は有効なコンテンツを示すマーカー。
var healthyMarkers = []string{
	"<rss",
	"<?xml",
	"timeline",
	"tweet-content",
	`class="main-thread"`,
	`class="profile-card"`,
	"Markdown Content:",
}

// Classify は疎通確認レスポンスを健全性状態に分類する。
func (c *defaultClassifier) Classify(statusCode int, body string) model.HealthState {
	if strings.Contains(body, "Rate limit exceeded") {
		return model.StateRateLimited
	}

	for _, marker := range blockedMarkers {
		if strings.Contains(body, marker) {
			return model.StateBlocked
		}
	}

	if statusCode == http.StatusForbidden {
		return model.StateDegraded
	}
	for _, marker := range challengeMarkers {
		if strings.Contains(body, marker) {
			return model.StateDegraded
		}
	}

	if statusCode != http.StatusOK {
		return model.StateBlocked
	}

	for _, marker := range healthyMarkers {
		if strings.Contains(body, marker) {
			return model.StateHealthy
		}
	}

	// 200だが認識可能なコンテンツが無い応答は利用不能として扱う
	return model.StateBlocked
}
