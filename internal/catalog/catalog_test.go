package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hitoshi/feedharvest/internal/model"
)

const testBaseline = "https://r.jina.ai/http://x.com"

// writeOPML はテスト用OPMLファイルを一時ディレクトリに書き出す。
func writeOPML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "subscriptions.opml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("OPMLファイルの作成に失敗した: %v", err)
	}
	return path
}

func TestParse_PlatformEntriesOnly(t *testing.T) {
	opml := `<?xml version="1.0" encoding="UTF-8"?>
<opml version="1.0">
  <body>
    <outline type="rss" text="Sam Altman" xmlUrl="https://nitter.net/sama/rss"/>
    <outline type="rss" text="Tech Blog" xmlUrl="https://blog.example.com/feed.xml"/>
    <outline type="rss" text="OpenAI" xmlUrl="https://x.com/OpenAI"/>
  </body>
</opml>`
	path := writeOPML(t, opml)

	accounts, err := NewParser(testBaseline).Parse(path, "ai")
	if err != nil {
		t.Fatalf("Parse がエラーを返した: %v", err)
	}

	if len(accounts) != 2 {
		t.Fatalf("アカウント数 = %d, want 2 (プラットフォーム外のフィードは除外されるべき)", len(accounts))
	}
	if accounts[0].Handle != "sama" {
		t.Errorf("accounts[0].Handle = %q, want sama", accounts[0].Handle)
	}
	if accounts[1].Handle != "OpenAI" {
		t.Errorf("accounts[1].Handle = %q, want OpenAI", accounts[1].Handle)
	}
}

func TestParse_RewritesToBaselineForm(t *testing.T) {
	opml := `<opml version="1.0"><body>
    <outline type="rss" text="Sam Altman" xmlUrl="https://nitter.poast.org/sama/rss"/>
  </body></opml>`
	path := writeOPML(t, opml)

	accounts, err := NewParser(testBaseline).Parse(path, "ai")
	if err != nil {
		t.Fatalf("Parse がエラーを返した: %v", err)
	}
	if len(accounts) != 1 {
		t.Fatalf("アカウント数 = %d, want 1", len(accounts))
	}

	want := testBaseline + "/sama"
	if accounts[0].URL != want {
		t.Errorf("URL = %q, want %q (ベースライン形式に正規化されるべき)", accounts[0].URL, want)
	}
	if accounts[0].Category != "ai" {
		t.Errorf("Category = %q, want ai", accounts[0].Category)
	}
}

func TestParse_NestedOutlines(t *testing.T) {
	opml := `<opml version="1.0"><body>
    <outline text="AI">
      <outline type="rss" text="Sam Altman" xmlUrl="https://nitter.net/sama/rss"/>
      <outline type="rss" text="Yann LeCun" xmlUrl="https://nitter.net/ylecun/rss"/>
    </outline>
  </body></opml>`
	path := writeOPML(t, opml)

	accounts, err := NewParser(testBaseline).Parse(path, "ai")
	if err != nil {
		t.Fatalf("Parse がエラーを返した: %v", err)
	}
	if len(accounts) != 2 {
		t.Errorf("ネストされたoutlineのアカウント数 = %d, want 2", len(accounts))
	}
}

func TestParse_MalformedEntriesSkipped(t *testing.T) {
	opml := `<opml version="1.0"><body>
    <outline type="rss" text="" xmlUrl="https://nitter.net/"/>
    <outline type="rss" text="Sam Altman" xmlUrl="https://nitter.net/sama/rss"/>
  </body></opml>`
	path := writeOPML(t, opml)

	accounts, err := NewParser(testBaseline).Parse(path, "news")
	if err != nil {
		t.Fatalf("不正エントリは個別にスキップされるべき: %v", err)
	}
	if len(accounts) != 1 {
		t.Errorf("アカウント数 = %d, want 1", len(accounts))
	}
}

func TestParse_MissingFileIsCatalogNotFound(t *testing.T) {
	_, err := NewParser(testBaseline).Parse(filepath.Join(t.TempDir(), "nope.opml"), "news")
	if err == nil {
		t.Fatal("存在しないファイルではエラーを返すべき")
	}
	if !model.IsCode(err, model.ErrCodeCatalogNotFound) {
		t.Errorf("エラーコード = %v, want CATALOG_NOT_FOUND", err)
	}
}

func TestExtractHandle_FromPath(t *testing.T) {
	cases := []struct {
		url   string
		title string
		want  string
	}{
		{"https://nitter.net/sama/rss", "Sam Altman", "sama"},
		{"https://r.jina.ai/http://x.com/sama", "Sam Altman", "sama"},
		{"https://x.com/OpenAI", "OpenAI News", "OpenAI"},
		{"", "@karpathy", "karpathy"},
		{"", "singleword", "singleword"},
	}

	for _, tc := range cases {
		if got := ExtractHandle(tc.url, tc.title); got != tc.want {
			t.Errorf("ExtractHandle(%q, %q) = %q, want %q", tc.url, tc.title, got, tc.want)
		}
	}
}

func TestPrioritize_Identity(t *testing.T) {
	accounts := []model.Account{
		{Handle: "a"},
		{Handle: "b"},
		{Handle: "c"},
	}

	got := NewIdentityPrioritizer().Prioritize(accounts)
	if len(got) != 3 {
		t.Fatalf("アカウント数 = %d, want 3", len(got))
	}
	for i, a := range accounts {
		if got[i].Handle != a.Handle {
			t.Errorf("順序が変更された: got[%d] = %q, want %q", i, got[i].Handle, a.Handle)
		}
	}
}
