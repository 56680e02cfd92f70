// Package config は環境変数からのアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// CatalogSpec は1つの購読カタログ（OPMLファイル + カテゴリラベル）を表す。
type CatalogSpec struct {
	Category string
	Path     string
}

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Catalog
	Catalogs    []CatalogSpec
	MaxAccounts int

	// Mirror
	BaselineURL   string
	MirrorURLs    []string
	ProbeHandle   string
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
	ProbeCeiling  time.Duration

	// Harvest
	PoolSize         int
	AttemptTimeout   time.Duration
	BatchSize        int
	FeedDelay        time.Duration
	BatchDelay       time.Duration
	FreshnessHorizon time.Duration
	MaxPostsPerFeed  int
	FetchMaxSize     int64
	CanonicalHost    string
	UserAgent        string

	// Health
	FailureThreshold int
	PauseDuration    time.Duration

	// State files
	StrategyPath string
	HealthPath   string
	SummaryPath  string

	// Ingest
	IngestURL     string
	IngestTimeout time.Duration

	// Worker
	HarvestInterval time.Duration
	ServerPort      string

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// 全項目にデフォルト値があり、必須環境変数は存在しない。
// CATALOGS の書式が不正な場合のみエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	catalogs, err := parseCatalogs(getEnvString("CATALOGS", "news=subscriptions.opml"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse CATALOGS: %w", err)
	}
	cfg.Catalogs = catalogs
	cfg.MaxAccounts = getEnvInt("MAX_ACCOUNTS", 0)

	cfg.BaselineURL = getEnvString("BASELINE_URL", "https://r.jina.ai/http://x.com")
	cfg.MirrorURLs = splitList(getEnvString("MIRROR_URLS",
		"https://nitter.lucabased.xyz,https://nitter.privacydev.net,https://nitter.poast.org"))
	cfg.ProbeHandle = getEnvString("PROBE_HANDLE", "elonmusk")
	cfg.ProbeInterval = getEnvDuration("PROBE_INTERVAL", 30*time.Minute)
	cfg.ProbeTimeout = getEnvDuration("PROBE_TIMEOUT", 5*time.Second)
	cfg.ProbeCeiling = getEnvDuration("PROBE_CEILING", 3*time.Second)

	cfg.PoolSize = getEnvInt("POOL_SIZE", 2)
	cfg.AttemptTimeout = getEnvDuration("ATTEMPT_TIMEOUT", 8*time.Second)
	cfg.BatchSize = getEnvInt("BATCH_SIZE", 5)
	cfg.FeedDelay = getEnvDuration("FEED_DELAY", 1500*time.Millisecond)
	cfg.BatchDelay = getEnvDuration("BATCH_DELAY", 5*time.Second)
	cfg.FreshnessHorizon = getEnvDuration("FRESHNESS_HORIZON", 120*time.Hour)
	cfg.MaxPostsPerFeed = getEnvInt("MAX_POSTS_PER_FEED", 5)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 5242880)
	cfg.CanonicalHost = getEnvString("CANONICAL_HOST", "fixupx.com")
	cfg.UserAgent = getEnvString("USER_AGENT", "Feedharvest/1.0")

	cfg.FailureThreshold = getEnvInt("FAILURE_THRESHOLD", 5)
	cfg.PauseDuration = getEnvDuration("PAUSE_DURATION", 24*time.Hour)

	cfg.StrategyPath = getEnvString("STRATEGY_PATH", "feed_strategies.json")
	cfg.HealthPath = getEnvString("HEALTH_PATH", "feed_health.json")
	cfg.SummaryPath = getEnvString("SUMMARY_PATH", "last_run_summary.json")

	cfg.IngestURL = getEnvString("INGEST_URL", "")
	cfg.IngestTimeout = getEnvDuration("INGEST_TIMEOUT", 10*time.Second)

	cfg.HarvestInterval = getEnvDuration("HARVEST_INTERVAL", time.Hour)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	return cfg, nil
}

// parseCatalogs は "category=path,category2=path2" 形式の文字列を解析する。
func parseCatalogs(raw string) ([]CatalogSpec, error) {
	var specs []CatalogSpec
	for _, entry := range splitList(raw) {
		category, path, ok := strings.Cut(entry, "=")
		if !ok || category == "" || path == "" {
			return nil, fmt.Errorf("invalid catalog entry: %q (want category=path)", entry)
		}
		specs = append(specs, CatalogSpec{
			Category: strings.TrimSpace(category),
			Path:     strings.TrimSpace(path),
		})
	}
	return specs, nil
}

// splitList はカンマ区切りリストを分割し、空要素を除去する。
func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
