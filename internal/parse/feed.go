package parse

import (
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/feedharvest/internal/model"
)

// parseSyndication はシンジケーションXML（RSS/Atom）を投稿に変換する。
// XMLとして解釈できない場合はゼロ件を返し、他の形式判定に委ねる。
// <pre>タグにXMLが包まれて返ってくるミラーにも対応する。
func (p *Parser) parseSyndication(body string, account model.Account) []model.Post {
	feed, err := gofeed.NewParser().ParseString(body)
	if err != nil || len(feed.Items) == 0 {
		if !strings.Contains(body, "<pre") {
			return nil
		}
		inner := unwrapPre(body)
		if inner == "" {
			return nil
		}
		feed, err = gofeed.NewParser().ParseString(inner)
		if err != nil || len(feed.Items) == 0 {
			return nil
		}
	}

	var posts []model.Post
	for _, item := range feed.Items {
		if len(posts) >= p.maxPosts {
			break
		}

		title := strings.TrimSpace(item.Title)
		description := strings.TrimSpace(item.Description)
		if title == "" && description == "" {
			continue
		}

		var published time.Time
		if item.PublishedParsed != nil {
			published = *item.PublishedParsed
		}
		if !p.fresh(published) {
			continue
		}

		// 投稿本文は通常descriptionに入る
		content := description
		if content == "" {
			content = title
		}
		if title == "" {
			title = description
		}

		posts = append(posts, p.newPost(title, content, strings.TrimSpace(item.Link), published, account))
	}

	return posts
}
