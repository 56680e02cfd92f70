// Package catalog は購読リスト（OPML）の解析とアカウントの導出を提供する。
package catalog

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/hitoshi/feedharvest/internal/model"
)

// platformDomains は対象プラットフォームとみなすドメインパターン。
// URLにいずれかが含まれるエントリだけを収穫対象とする。
var platformDomains = []string{
	"lightbrd.com",
	"xcancel.com",
	"nitter",
	"x.com",
	"twitter.com",
}

// handleFromURLPattern はURL解析に失敗した場合のハンドル抽出パターン。
var handleFromURLPattern = regexp.MustCompile(`(?:x\.com|twitter\.com|nitter\.[^/]+)/([^/?#]+)`)

// handleFromTitlePattern はタイトルからのハンドル抽出パターン。
var handleFromTitlePattern = regexp.MustCompile(`@?(\w+)`)

// opmlDocument はOPMLファイルのルート構造。
type opmlDocument struct {
	XMLName xml.Name `xml:"opml"`
	Body    opmlBody `xml:"body"`
}

type opmlBody struct {
	Outlines []opmlOutline `xml:"outline"`
}

// opmlOutline はOPMLのoutline要素。カテゴリのネストを許容する。
type opmlOutline struct {
	Type     string        `xml:"type,attr"`
	Text     string        `xml:"text,attr"`
	Title    string        `xml:"title,attr"`
	XMLURL   string        `xml:"xmlUrl,attr"`
	HTMLURL  string        `xml:"htmlUrl,attr"`
	Outlines []opmlOutline `xml:"outline"`
}

// Parser は購読カタログの解析を行う。
type Parser struct {
	baselineURL string
}

// NewParser はParserを生成する。baselineURLはレンダープロキシの基底URL。
func NewParser(baselineURL string) *Parser {
	return &Parser{baselineURL: strings.TrimRight(baselineURL, "/")}
}

// Parse はOPMLファイルを解析してアカウント一覧を返す。
// 対象プラットフォームのドメインに一致しないエントリは除外し、
// 残ったエントリのURLはベースライン形式に正規化する。
// 不正なエントリは個別にスキップし、致命的エラーにはしない。
func (p *Parser) Parse(path string, category string) ([]model.Account, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, model.NewCatalogNotFoundError(path)
		}
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}

	var doc opmlDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}

	var accounts []model.Account
	walkOutlines(doc.Body.Outlines, func(o opmlOutline) {
		if !strings.EqualFold(o.Type, "rss") {
			return
		}
		if o.XMLURL == "" || !isPlatformURL(o.XMLURL) {
			return
		}

		title := o.Text
		if title == "" {
			title = o.Title
		}
		handle := ExtractHandle(o.XMLURL, title)
		if handle == "" {
			// ハンドルを導出できないエントリはスキップする
			return
		}

		accounts = append(accounts, model.Account{
			Handle:   handle,
			Title:    title,
			URL:      p.baselineURL + "/" + handle,
			Category: category,
		})
	})

	return accounts, nil
}

// walkOutlines はネストされたoutlineツリーを深さ優先で走査する。
func walkOutlines(outlines []opmlOutline, fn func(opmlOutline)) {
	for _, o := range outlines {
		fn(o)
		walkOutlines(o.Outlines, fn)
	}
}

// isPlatformURL はURLが対象プラットフォームのものかを判定する。
func isPlatformURL(rawURL string) bool {
	for _, domain := range platformDomains {
		if strings.Contains(rawURL, domain) {
			return true
		}
	}
	return false
}

// ExtractHandle はフィードURLとタイトルから正規ハンドルを導出する。
// URLのパス末尾セグメントを優先し、失敗した場合はタイトルから抽出する。
// 末尾が "rss" や "search" のパスはその手前のセグメントを使用する。
func ExtractHandle(rawURL string, title string) string {
	handle := handleFromPath(rawURL)

	if handle == "" {
		if m := handleFromURLPattern.FindStringSubmatch(rawURL); m != nil {
			handle = m[1]
		}
	}

	if handle == "" && title != "" {
		if m := handleFromTitlePattern.FindStringSubmatch(title); m != nil {
			handle = m[1]
		}
	}

	if handle == "" && title != "" && !strings.Contains(title, " ") {
		handle = title
	}

	return handle
}

// handleFromPath はURLのパスセグメントからハンドルを取り出す。
func handleFromPath(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	var parts []string
	for _, p := range strings.Split(parsed.Path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	for i := len(parts) - 1; i >= 0; i-- {
		seg := parts[i]
		if seg == "rss" || seg == "search" || strings.Contains(seg, ":") {
			continue
		}
		return seg
	}
	return ""
}

// Prioritizer はアカウントの処理順序を決定するシーム。
type Prioritizer interface {
	// Prioritize はアカウント一覧を処理順に並べ替えて返す。
	Prioritize(accounts []model.Account) []model.Account
}

// identityPrioritizer は全アカウントを受け取った順のまま処理する。
type identityPrioritizer struct{}

// NewIdentityPrioritizer は順序を変更しないPrioritizerを生成する。
func NewIdentityPrioritizer() *identityPrioritizer {
	return &identityPrioritizer{}
}

// Prioritize はアカウント一覧をそのまま返す。
func (p *identityPrioritizer) Prioritize(accounts []model.Account) []model.Account {
	return accounts
}
