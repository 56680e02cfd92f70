package parse

import (
	"strings"
	"testing"
)

func TestCleanText(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"Pinnedプレフィックス除去", "Pinned This is the post", "This is the post"},
		{"定型プレフィックス除去", "ICYMI: Breaking: the actual news", "the actual news"},
		{"マークダウンリンクはテキストに置換", "see [the docs](https://example.com/docs) here", "see the docs here"},
		{"マークダウン画像除去", "text ![alt](https://example.com/img.png) more", "text more"},
		{"HTMLタグ除去", "<p>hello <b>world</b></p>", "hello world"},
		{"エンティティ復号", "a &amp; b &lt;c&gt;", "a & b <c>"},
		{"空白の正規化", "a\n\n  b\t c", "a b c"},
		{"行頭タイムスタンプ除去", "1:04 the post text", "the post text"},
		{"空入力", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CleanText(tc.input); got != tc.want {
				t.Errorf("CleanText(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestCleanText_NeverEmitsMarkup(t *testing.T) {
	inputs := []string{
		`<div class="tweet"><a href="x">link</a></div>`,
		"[![Image 1: cover](https://a.example/i.png)](https://a.example/post)",
		"<script>alert(1)</script>safe text",
	}

	for _, in := range inputs {
		got := CleanText(in)
		if strings.ContainsAny(got, "<>") {
			t.Errorf("CleanText(%q) = %q, マークアップが残っている", in, got)
		}
	}
}

func TestCanonicalizePermalink(t *testing.T) {
	cases := []struct {
		name string
		url  string
		want string
	}{
		{"x.comの投稿", "https://x.com/sama/status/123", "https://fixupx.com/sama/status/123"},
		{"twitter.comの投稿", "https://twitter.com/sama/status/123", "https://fixupx.com/sama/status/123"},
		{"ミラーの投稿", "https://nitter.poast.org/sama/status/123", "https://fixupx.com/sama/status/123"},
		{"既に正規形", "https://fixupx.com/sama/status/123", "https://fixupx.com/sama/status/123"},
		{"投稿以外のURLは不変", "https://x.com/sama", "https://x.com/sama"},
		{"空URL", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanonicalizePermalink(tc.url, "fixupx.com"); got != tc.want {
				t.Errorf("CanonicalizePermalink(%q) = %q, want %q", tc.url, got, tc.want)
			}
		})
	}
}

func TestValidateURL(t *testing.T) {
	if got := ValidateURL("https://fixupx.com/sama/status/1"); got == "" {
		t.Error("正しい絶対URLはそのまま返すべき")
	}
	if got := ValidateURL("/relative/path"); got != "" {
		t.Errorf("相対URLは空文字列になるべき: %q", got)
	}
	if got := ValidateURL("::broken::"); got != "" {
		t.Errorf("不正なURLは空文字列になるべき: %q", got)
	}
	if got := ValidateURL(""); got != "" {
		t.Errorf("空入力は空のまま: %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("hello", 10); got != "hello" {
		t.Errorf("上限未満は不変であるべき: %q", got)
	}
	if got := Truncate("hello world", 5); got != "hello" {
		t.Errorf("Truncate = %q, want hello", got)
	}
	// rune単位で切り詰める
	if got := Truncate("こんにちは世界", 5); got != "こんにちは" {
		t.Errorf("Truncate = %q, want こんにちは", got)
	}
}
