package parse

import (
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/hitoshi/feedharvest/internal/model"
)

// minChunkLength は投稿候補チャンクの最小文字数。これ未満はゴミとして捨てる。
const minChunkLength = 20

var (
	titleLinePattern       = regexp.MustCompile(`(?m)Title:\s*(.+)$`)
	urlSourcePattern       = regexp.MustCompile(`(?m)URL Source:\s*(.+)$`)
	markdownContentPattern = regexp.MustCompile(`(?s)Markdown Content:\s*(.+)$`)

	// 投稿セクションの見出し。"Name's posts" の直後に下線が続く形式。
	postsHeaderPattern  = regexp.MustCompile(`(?is)(?:’s|'s) posts\s*\n-+\s*\n(.+)`)
	equalsHeaderPattern = regexp.MustCompile(`(?s)={5,}\s*\n(.+)`)

	// 区切り線。リーダープロキシは伝統的に --- で投稿を区切る。
	dashSeparatorPattern = regexp.MustCompile(`\n-{3,}\n`)

	// 投稿先頭の著者ヘッダー。[Name](https://x.com/handle) の後に [@handle] が続く。
	authorHeaderPattern = regexp.MustCompile(`\n\[[^\n]*\]\(https?://x\.com/[^/)]+\)\s+\[@`)

	// 投稿固有のパーマリンク
	statusLinkPattern = regexp.MustCompile(`\[[^\]]*\]\((https?://[^\s)]+/status/\d+)\)`)
	rawStatusPattern  = regexp.MustCompile(`(https?://[^\s]+/status/\d+)`)

	// 本文中の埋め込み日時マーカー
	embeddedDatePattern = regexp.MustCompile(`FixupX•(\d{4}-\d{2}-\d{2} \d{2}:\d{2})`)
	monthDatePattern    = regexp.MustCompile(`\b(Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec) \d{1,2}, 20[0-9]{2}\b`)
	relativeTimePattern = regexp.MustCompile(`\d+[hm] ago`)

	// 投稿先頭に残るアーティファクト
	leadingImageLinePattern = regexp.MustCompile(`(?m)^!?\[?Image \d+[^\n]*\n?`)
	leadingImagePattern     = regexp.MustCompile(`^!\[[^\]]*\]\([^)]*\)\s*`)
	headerLinePattern       = regexp.MustCompile(`(?im)^(Title|URL Source|Markdown Content):[^\n]*\n`)
	anyLinkPattern          = regexp.MustCompile(`\[[^\]]*\]\([^)]*\)`)
	rawURLPattern           = regexp.MustCompile(`https?://\S+`)
)

// parseReaderDump はリーダープロキシのダンプ形式を投稿に変換する。
// ダンプは1つのブロブであり、タイトル行、ソースURL行、本文からなる。
// 本文はヒューリスティックに個別の投稿へ分割する。
func (p *Parser) parseReaderDump(body string, account model.Account) []model.Post {
	content := body
	if strings.HasPrefix(strings.TrimSpace(body), "<") {
		// レンダリング経由では <pre> タグにダンプが包まれることがある
		if inner := unwrapPre(body); inner != "" {
			content = inner
		}
	}

	pageTitle := account.Title
	if m := titleLinePattern.FindStringSubmatch(content); m != nil {
		pageTitle = strings.TrimSpace(m[1])
	}

	pageURL := "https://x.com/" + account.Handle
	if m := urlSourcePattern.FindStringSubmatch(content); m != nil {
		pageURL = strings.TrimSpace(m[1])
	}

	bodyContent := content
	if m := markdownContentPattern.FindStringSubmatch(content); m != nil {
		bodyContent = strings.TrimSpace(m[1])
	}

	postContent := trimProfileHeader(bodyContent)
	if len(postContent) < 50 {
		// 切り出しに失敗した場合は先頭数行だけ読み飛ばして全体を使う
		postContent = strings.TrimSpace(SplitPositional(bodyContent))
	}

	// 分割ヒューリスティックを順に試す
	chunks := SplitBySeparator(postContent)
	if len(chunks) <= 1 {
		chunks = SplitByAuthorHeader(postContent)
	}
	if len(chunks) == 0 {
		chunks = []string{postContent}
	}

	var posts []model.Post
	for _, chunk := range chunks {
		if len(posts) >= p.maxPosts {
			break
		}

		postBody := strings.TrimSpace(chunk)
		if len(postBody) < minChunkLength {
			continue
		}
		if strings.Contains(postBody, "Pinned Tweet") && len(postBody) < 30 {
			continue
		}

		itemURL := extractPostURL(postBody, pageURL)

		published, ok := p.extractPostDate(postBody)
		if !ok {
			continue
		}

		title := pageTitle
		if lead := cleanPostLead(postBody); len(lead) > 5 {
			title = Truncate(lead, 100)
		}

		post := p.newPost(title, postBody, itemURL, published, account)
		post.Content = Truncate(post.Content, readerDumpContentLimit)
		posts = append(posts, post)
	}

	return posts
}

// trimProfileHeader は本文の先頭からプロフィール情報（bio）を取り除き、
// 投稿セクションだけを残す。明示的な見出しを優先し、無ければ
// 最初の投稿マーカーの位置で切る。どちらも見つからなければ本文全体を返す。
func trimProfileHeader(bodyContent string) string {
	if m := postsHeaderPattern.FindStringSubmatch(bodyContent); m != nil && len(m[1]) > 20 {
		return strings.TrimSpace(m[1])
	}
	if m := equalsHeaderPattern.FindStringSubmatch(bodyContent); m != nil && len(m[1]) > 20 {
		return strings.TrimSpace(m[1])
	}

	// 区切り線の手前をヘッダーとみなす
	parts := dashSeparatorPattern.Split(bodyContent, -1)
	if len(parts) > 2 {
		return strings.TrimSpace(strings.Join(parts[1:], "\n---\n"))
	}
	if len(parts) == 2 && len(parts[1]) > 50 {
		return strings.TrimSpace(parts[1])
	}

	// 最初の投稿マーカー（Pinned、相対時刻、絶対日付）を探す
	firstPost := strings.Index(bodyContent, "Pinned")
	if loc := relativeTimePattern.FindStringIndex(bodyContent); loc != nil && loc[0] > firstPost {
		firstPost = loc[0]
	}
	if loc := monthDatePattern.FindStringIndex(bodyContent); loc != nil && loc[0] > firstPost {
		firstPost = loc[0]
	}
	if firstPost > 50 && firstPost < 1000 {
		return strings.TrimSpace(bodyContent[firstPost:])
	}

	return strings.TrimSpace(bodyContent)
}

// SplitBySeparator は明示的な区切り線（---）で本文を投稿チャンクに分割する。
func SplitBySeparator(content string) []string {
	parts := dashSeparatorPattern.Split(content, -1)
	var chunks []string
	for _, part := range parts {
		if strings.TrimSpace(part) != "" {
			chunks = append(chunks, part)
		}
	}
	return chunks
}

// SplitByAuthorHeader は各投稿の先頭に繰り返される著者ヘッダーの位置で
// 本文を分割する。区切り線が無い形式のダンプ向けのフォールバック。
func SplitByAuthorHeader(content string) []string {
	locs := authorHeaderPattern.FindAllStringIndex(content, -1)
	if len(locs) == 0 {
		return []string{content}
	}

	var chunks []string
	prev := 0
	for _, loc := range locs {
		if loc[0] > prev {
			chunks = append(chunks, content[prev:loc[0]])
		}
		prev = loc[0]
	}
	chunks = append(chunks, content[prev:])
	return chunks
}

// SplitPositional は先頭数行（タイトル、URL、空行）をヘッダーとみなして
// 読み飛ばす位置ベースの最終フォールバック。
func SplitPositional(content string) string {
	lines := strings.Split(content, "\n")
	if len(lines) > 5 {
		return strings.Join(lines[3:], "\n")
	}
	return content
}

// extractPostURL はチャンクから投稿固有のパーマリンクを抽出する。
// 見つからない場合はページURLにフォールバックする。
func extractPostURL(postBody string, pageURL string) string {
	if m := statusLinkPattern.FindStringSubmatch(postBody); m != nil {
		return m[1]
	}
	if m := rawStatusPattern.FindStringSubmatch(postBody); m != nil {
		return m[1]
	}
	return pageURL
}

// extractPostDate はチャンク中の日時マーカーを解釈する。
// 鮮度の地平線より古い日時が見つかった場合は ok=false を返す。
// マーカーが無い場合は発見時刻へのフォールバックを示すゼロ値を返す。
func (p *Parser) extractPostDate(postBody string) (time.Time, bool) {
	if m := embeddedDatePattern.FindStringSubmatch(postBody); m != nil {
		t, err := time.Parse("2006-01-02 15:04", m[1])
		if err == nil {
			return t, p.fresh(t)
		}
	}

	if m := monthDatePattern.FindString(postBody); m != "" {
		t, err := time.Parse("Jan 2, 2006", m)
		if err == nil {
			return t, p.fresh(t)
		}
	}

	return time.Time{}, true
}

// cleanPostLead はタイトル生成用に投稿チャンクの先頭を整形する。
func cleanPostLead(postBody string) string {
	s := leadingImageLinePattern.ReplaceAllString(postBody, "")
	s = leadingImagePattern.ReplaceAllString(s, "")
	s = pinnedPrefixPattern.ReplaceAllString(s, "")
	s = headerLinePattern.ReplaceAllString(s, "")
	s = anyLinkPattern.ReplaceAllString(s, "")
	s = rawURLPattern.ReplaceAllString(s, "")
	s = whitespacePattern.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	// リンク解釈の失敗で残る "](" アーティファクト
	if strings.HasPrefix(s, "](") {
		s = strings.TrimSpace(s[2:])
	}
	return s
}

// unwrapPre はHTML中の<pre>タグ内テキストを取り出す。
// <pre>が存在しない場合は空文字列を返す。
func unwrapPre(body string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(body))
	var sb strings.Builder
	depth := 0

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(sb.String())
		case html.StartTagToken:
			if name, _ := tokenizer.TagName(); string(name) == "pre" {
				depth++
			}
		case html.EndTagToken:
			if name, _ := tokenizer.TagName(); string(name) == "pre" && depth > 0 {
				depth--
			}
		case html.TextToken:
			if depth > 0 {
				sb.Write(tokenizer.Text())
			}
		}
	}
}
