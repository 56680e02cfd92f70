// Package parse は収穫レスポンスの形式判定と正規化された投稿への変換を提供する。
// パース処理は全て純粋関数であり、同一入力に対して常に同一の出力を返す。
package parse

import (
	"strings"
	"time"

	"github.com/hitoshi/feedharvest/internal/model"
)

// readerDumpContentLimit はリーダープロキシ出力から抽出する本文の上限文字数。
const readerDumpContentLimit = 1000

// titleLimit は投稿タイトルの上限文字数。
const titleLimit = 200

// Parser はレスポンスボディを正規化された投稿のリストに変換する。
type Parser struct {
	freshness     time.Duration
	maxPosts      int
	canonicalHost string
	now           func() time.Time
}

// NewParser はParserを生成する。
// freshnessより古い投稿はパース時点で除外される。
func NewParser(freshness time.Duration, maxPosts int, canonicalHost string) *Parser {
	return &Parser{
		freshness:     freshness,
		maxPosts:      maxPosts,
		canonicalHost: canonicalHost,
		now:           time.Now,
	}
}

// Parse はレスポンスボディの形式を判定して投稿リストを返す。
// 形式判定の優先順位はシンジケーションXML、タイムラインHTML、
// リーダープロキシ出力の順。ブロックコンテンツのマーカーに一致した
// 場合はレスポンス全体を破棄してゼロ件を返す。
func (p *Parser) Parse(body string, account model.Account, endpoint model.MirrorEndpoint) []model.Post {
	if blocked, _ := DetectBlocked(body); blocked {
		return nil
	}

	if posts := p.parseSyndication(body, account); len(posts) > 0 {
		return posts
	}

	if strings.Contains(body, "timeline-item") {
		if posts := p.parseTimeline(body, account); len(posts) > 0 {
			return posts
		}
	}

	if isReaderDump(body, endpoint) {
		return p.parseReaderDump(body, account)
	}

	return nil
}

// isReaderDump はリーダープロキシのダンプ形式かを判定する。
// ベースライン由来のレスポンスは常にダンプ形式として扱う。
func isReaderDump(body string, endpoint model.MirrorEndpoint) bool {
	if endpoint.IsBaseline() {
		return true
	}
	return strings.Contains(body, "Markdown Content:") ||
		strings.Contains(body, "URL Source:") ||
		strings.HasPrefix(strings.TrimSpace(body), "Title:")
}

// fresh は投稿のタイムスタンプが鮮度の地平線内かを返す。
// タイムスタンプを抽出できなかった投稿（ゼロ値）は除外しない。
func (p *Parser) fresh(t time.Time) bool {
	if t.IsZero() {
		return true
	}
	return p.now().Sub(t) <= p.freshness
}

// newPost はクリーニングと正規化を適用した投稿を組み立てる。
func (p *Parser) newPost(title string, content string, rawURL string, published time.Time, account model.Account) model.Post {
	fetched := p.now()
	if published.IsZero() {
		published = fetched
	}

	return model.Post{
		Title:       Truncate(CleanText(title), titleLimit),
		Source:      "X - " + account.Title,
		URL:         ValidateURL(CanonicalizePermalink(rawURL, p.canonicalHost)),
		Content:     CleanText(content),
		Sentiment:   "neutral",
		Category:    account.Category,
		PublishedAt: published,
		FetchedAt:   fetched,
	}
}
