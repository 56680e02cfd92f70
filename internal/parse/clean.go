package parse

import (
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// stripPolicy は全マークアップを除去するサニタイズポリシー。
var stripPolicy = bluemonday.StrictPolicy()

var (
	pinnedPrefixPattern = regexp.MustCompile(`(?i)^Pinned\s+`)
	pinnedTweetPattern  = regexp.MustCompile(`(?i)Pinned Tweet`)

	// 繰り返しがちな定型プレフィックス。タイトルの一意性を下げるため除去する。
	stockPrefixPattern = regexp.MustCompile(`(?i)^(ICYMI|O/N|Thread|Update|Breaking|Megathread)\s*[:|-]?\s*`)

	// 画像タグで始まる行
	imageLinePattern = regexp.MustCompile(`(?m)^\s*\[?!\[[^\n]*?\]\([^\n]*?\).*?$`)

	// リーダープロキシ特有の画像アーティファクト
	namedImagePattern = regexp.MustCompile(`\[!\[(?:Image \d+:|Square profile picture|Article cover image)[\s\S]*?\]\([\s\S]*?\)`)

	// リンク付きマークダウン画像と単独マークダウン画像
	linkedImagePattern     = regexp.MustCompile(`\[!\[[\s\S]*?\]\([\s\S]*?\)\]\([\s\S]*?\)`)
	standaloneImagePattern = regexp.MustCompile(`!\[[\s\S]*?\]\([\s\S]*?\)`)

	// 残存する "Image 1:" 形式のアーティファクト
	imageArtifactPattern     = regexp.MustCompile(`(?i)^Image\s*\d*:?\s*`)
	imageArtifactLinePattern = regexp.MustCompile(`(?i)\nImage\s*\d*:?\s*`)

	// マークダウンリンク [text](url) → text
	markdownLinkPattern = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)

	// 行頭のタイムスタンプ "1:04 "
	leadingTimePattern = regexp.MustCompile(`^\s*\d{1,2}:\d{2}\s+`)

	whitespacePattern = regexp.MustCompile(`\s+`)

	mirrorHostPattern = regexp.MustCompile(`nitter\.[^/]+`)
)

// CleanText はマークアップと抽出アーティファクトを除去した平文を返す。
// 戻り値が生のマークアップを含むことはない。
func CleanText(text string) string {
	if text == "" {
		return ""
	}

	s := pinnedPrefixPattern.ReplaceAllString(text, "")
	s = pinnedTweetPattern.ReplaceAllString(s, "")

	// "ICYMI O/N" のような組み合わせに備えて複数回適用する
	for i := 0; i < 3; i++ {
		s = stockPrefixPattern.ReplaceAllString(s, "")
	}

	s = imageLinePattern.ReplaceAllString(s, "")
	s = namedImagePattern.ReplaceAllString(s, "")
	s = linkedImagePattern.ReplaceAllString(s, "")
	s = standaloneImagePattern.ReplaceAllString(s, "")
	s = imageArtifactPattern.ReplaceAllString(s, "")
	s = imageArtifactLinePattern.ReplaceAllString(s, "\n")

	s = markdownLinkPattern.ReplaceAllString(s, "$1")
	s = leadingTimePattern.ReplaceAllString(s, "")

	s = stripPolicy.Sanitize(s)
	s = html.UnescapeString(s)

	s = whitespacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// CanonicalizePermalink は単一投稿のパーマリンクを安定した正規ホストに
// 書き換える。どのミラーが生成したURLでも下流には常に同じ形が渡る。
// 投稿以外のURLは変更しない。
func CanonicalizePermalink(rawURL string, canonicalHost string) string {
	if rawURL == "" || !strings.Contains(rawURL, "/status/") {
		return rawURL
	}

	switch {
	case strings.Contains(rawURL, "twitter.com"):
		return strings.Replace(rawURL, "twitter.com", canonicalHost, 1)
	case strings.Contains(rawURL, canonicalHost):
		return rawURL
	case strings.Contains(rawURL, "x.com"):
		return strings.Replace(rawURL, "x.com", canonicalHost, 1)
	default:
		return mirrorHostPattern.ReplaceAllString(rawURL, canonicalHost)
	}
}

// ValidateURL はURLが構文的に正しい絶対URLであれば返し、
// そうでなければ空文字列を返す。
func ValidateURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return ""
	}
	return rawURL
}

// Truncate は文字列をrune単位で最大長に切り詰める。
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
