package parse

import "strings"

// rejectMarkers はレスポンス全体を破棄すべきブロックコンテンツのマーカー。
// ログインウォール、レート制限、アカウント凍結などが該当する。
var rejectMarkers = []string{
	"Just a moment...",
	"Making sure you are not a bot",
	"Attention Required! | Cloudflare",
	"403 | Nitter",
	"This account doesn't exist",
	"Account suspended",
	"upstream connect error",
	"reset reason: remote connection failure",
	"retryAfter",
	`"code":429`,
	"RateLimitTriggeredError",
}

// rejectMarkersLower は小文字化した本文に対して照合するマーカー。
var rejectMarkersLower = []string{
	"try searching for another",
	"people on x are the first to know",
	"don’t miss what’s happening",
	"rate limit exceeded",
	`"message":"per ip rate limit`,
}

// DetectBlocked は本文がブロックコンテンツかを判定する。
// 一致したマーカーを返す。部分的に有効な投稿が含まれていても
// レスポンス全体を信用しない。
func DetectBlocked(body string) (bool, string) {
	for _, marker := range rejectMarkers {
		if strings.Contains(body, marker) {
			return true, marker
		}
	}

	lower := strings.ToLower(body)
	for _, marker := range rejectMarkersLower {
		if strings.Contains(lower, marker) {
			return true, marker
		}
	}

	// ログインウォール: Log in と Sign up が同時に現れるページ
	if strings.Contains(body, "Log in") && strings.Contains(body, "Sign up") {
		return true, "login wall"
	}

	// JSONエラーレスポンスがテキストとして渡ってきた場合
	trimmed := strings.TrimSpace(body)
	if strings.HasPrefix(trimmed, "{") && strings.Contains(trimmed, `"data":null`) {
		return true, "json error response"
	}

	return false, ""
}
