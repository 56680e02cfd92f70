package app

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hitoshi/feedharvest/internal/config"
	"github.com/hitoshi/feedharvest/internal/model"
)

const testOPML = `<?xml version="1.0" encoding="UTF-8"?>
<opml version="2.0">
  <body>
    <outline type="rss" text="Sam Altman" xmlUrl="https://nitter.net/sama/rss"/>
    <outline type="rss" text="Tech Blog" xmlUrl="https://example.com/blog/rss"/>
  </body>
</opml>`

func TestInit_LoadsConfigAndLogsJSON(t *testing.T) {
	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err != nil {
		t.Fatalf("Init がエラーを返した: %v", err)
	}
	if cfg.BaselineURL == "" {
		t.Error("BaselineURL にデフォルト値が設定されるべき")
	}

	// ログ出力がJSON構造化形式であること
	logLine := struct {
		Level string `json:"level"`
	}{}
	if buf.Len() > 0 {
		line := strings.SplitN(buf.String(), "\n", 2)[0]
		if err := json.Unmarshal([]byte(line), &logLine); err != nil {
			t.Errorf("ログ出力がJSONではない: %s", line)
		}
	}
}

func TestWire_LoadsCatalogAccounts(t *testing.T) {
	dir := t.TempDir()
	opmlPath := filepath.Join(dir, "subscriptions.opml")
	if err := os.WriteFile(opmlPath, []byte(testOPML), 0644); err != nil {
		t.Fatalf("フィクスチャの書き込みに失敗: %v", err)
	}

	cfg := testConfig(dir)
	cfg.Catalogs = []config.CatalogSpec{{Category: "ai", Path: opmlPath}}

	d, err := wire(cfg)
	if err != nil {
		t.Fatalf("wire がエラーを返した: %v", err)
	}

	// プラットフォーム外のフィードは除外される
	if len(d.accounts) != 1 {
		t.Fatalf("アカウント数 = %d, want 1", len(d.accounts))
	}
	if d.accounts[0].Handle != "sama" {
		t.Errorf("Handle = %q, want sama", d.accounts[0].Handle)
	}
	if d.accounts[0].Category != "ai" {
		t.Errorf("Category = %q, want ai", d.accounts[0].Category)
	}
}

func TestWire_AllCatalogsMissingFails(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.Catalogs = []config.CatalogSpec{{Category: "ai", Path: filepath.Join(dir, "missing.opml")}}

	_, err := wire(cfg)
	if err == nil {
		t.Fatal("全カタログが読めない場合はエラーを返すべき")
	}
}

func TestWire_MissingCatalogSkippedWhenOthersLoad(t *testing.T) {
	dir := t.TempDir()
	opmlPath := filepath.Join(dir, "subscriptions.opml")
	if err := os.WriteFile(opmlPath, []byte(testOPML), 0644); err != nil {
		t.Fatalf("フィクスチャの書き込みに失敗: %v", err)
	}

	cfg := testConfig(dir)
	cfg.Catalogs = []config.CatalogSpec{
		{Category: "finance", Path: filepath.Join(dir, "missing.opml")},
		{Category: "ai", Path: opmlPath},
	}

	d, err := wire(cfg)
	if err != nil {
		t.Fatalf("欠落カタログはスキップして継続すべき: %v", err)
	}
	if len(d.accounts) != 1 {
		t.Fatalf("アカウント数 = %d, want 1", len(d.accounts))
	}
	if d.accounts[0].Category != "ai" {
		t.Errorf("Category = %q, want ai", d.accounts[0].Category)
	}
}

func TestSummaryHolder(t *testing.T) {
	holder := &summaryHolder{}

	if _, ok := holder.LastSummary(); ok {
		t.Error("初回実行前はサマリーが存在しないべき")
	}

	holder.set(&model.RunSummary{RunID: "run-1"})
	summary, ok := holder.LastSummary()
	if !ok {
		t.Fatal("設定後はサマリーが取得できるべき")
	}
	if summary.RunID != "run-1" {
		t.Errorf("RunID = %q, want run-1", summary.RunID)
	}
}

// testConfig はワイヤリングテスト用の最小構成を返す。
func testConfig(dir string) *config.Config {
	return &config.Config{
		BaselineURL:      "https://r.jina.ai/http://x.com",
		MirrorURLs:       []string{"https://nitter.example.com"},
		ProbeHandle:      "elonmusk",
		PoolSize:         2,
		BatchSize:        5,
		MaxPostsPerFeed:  5,
		FetchMaxSize:     1024,
		CanonicalHost:    "fixupx.com",
		UserAgent:        "Feedharvest/1.0",
		FailureThreshold: 5,
		StrategyPath:     filepath.Join(dir, "strategies.json"),
		HealthPath:       filepath.Join(dir, "health.json"),
		SummaryPath:      filepath.Join(dir, "summary.json"),
	}
}
