package parse

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/hitoshi/feedharvest/internal/model"
)

// timelineDateLayouts はタイムラインHTMLの日時属性のフォーマット候補。
var timelineDateLayouts = []string{
	"Jan 2, 2006 · 3:04 PM MST",
	"Jan 2, 2006 · 15:04 MST",
	"Jan 2, 2006, 3:04 PM",
	time.RFC1123,
	time.RFC1123Z,
	"2006-01-02 15:04",
}

// parseTimeline はレンダリング済みのタイムラインHTMLを投稿に変換する。
// RSSエンドポイントがHTMLプロフィールにリダイレクトされた場合や、
// RSSが無効でもHTMLが生きているミラーからの回収経路。
func (p *Parser) parseTimeline(body string, account model.Account) []model.Post {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil
	}

	var posts []model.Post
	doc.Find(".timeline-item").EachWithBreak(func(i int, item *goquery.Selection) bool {
		if len(posts) >= p.maxPosts {
			return false
		}

		text := strings.TrimSpace(item.Find(".tweet-content").Text())
		if text == "" {
			return true
		}

		dateText, _ := item.Find(".tweet-date a").Attr("title")
		published := parseTimelineDate(dateText)
		if !p.fresh(published) {
			return true
		}

		link, _ := item.Find(".tweet-link").Attr("href")
		if link != "" && !strings.HasPrefix(link, "http") {
			// 相対リンクは正規ホストで絶対化する
			link = "https://" + p.canonicalHost + link
		}

		post := p.newPost(Truncate(text, 100), text, link, published, account)
		posts = append(posts, post)
		return true
	})

	return posts
}

// parseTimelineDate は日時属性文字列を解釈する。
// どのフォーマットにも一致しない場合はゼロ値を返す。
func parseTimelineDate(dateText string) time.Time {
	dateText = strings.TrimSpace(dateText)
	if dateText == "" {
		return time.Time{}
	}
	for _, layout := range timelineDateLayouts {
		if t, err := time.Parse(layout, dateText); err == nil {
			return t
		}
	}
	return time.Time{}
}
