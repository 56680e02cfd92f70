// Package app はアプリケーションの起動と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/feedharvest/internal/catalog"
	"github.com/hitoshi/feedharvest/internal/config"
	"github.com/hitoshi/feedharvest/internal/handler"
	"github.com/hitoshi/feedharvest/internal/harvest"
	"github.com/hitoshi/feedharvest/internal/health"
	"github.com/hitoshi/feedharvest/internal/ingest"
	"github.com/hitoshi/feedharvest/internal/logger"
	"github.com/hitoshi/feedharvest/internal/metrics"
	"github.com/hitoshi/feedharvest/internal/mirror"
	"github.com/hitoshi/feedharvest/internal/model"
	"github.com/hitoshi/feedharvest/internal/parse"
	"github.com/hitoshi/feedharvest/internal/render"
	"github.com/hitoshi/feedharvest/internal/security"
	"github.com/hitoshi/feedharvest/internal/strategy"
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 設定読み込み前にログを使えるようにする
	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupDefault(w, cfg.LogLevel)
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("baseline_url", cfg.BaselineURL),
		slog.Int("mirror_count", len(cfg.MirrorURLs)),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	default:
		return runHarvest(cfg)
	}
}

// deps は収穫1回分のワイヤリング済み依存関係。
type deps struct {
	registry    *mirror.Registry
	healthStore *health.Store
	strategies  *strategy.Cache
	pool        *render.Pool
	parser      *parse.Parser
	collector   *metrics.Collector
	ingester    *ingest.Client
	accounts    []model.Account
	gatherer    prometheus.Gatherer
}

// wire は全依存関係を構築し、購読カタログを読み込む。
func wire(cfg *config.Config) (*deps, error) {
	guard := security.NewSSRFGuard()

	promRegistry := prometheus.NewRegistry()
	collector := metrics.NewCollector(promRegistry)

	registry := mirror.NewRegistry(mirror.Options{
		BaselineURL: cfg.BaselineURL,
		MirrorURLs:  cfg.MirrorURLs,
		Client:      guard.NewSafeClient(cfg.ProbeTimeout),
		ProbeHandle: cfg.ProbeHandle,
		Interval:    cfg.ProbeInterval,
		Ceiling:     cfg.ProbeCeiling,
		UserAgent:   cfg.UserAgent,
		Recorder:    collector,
	})

	healthStore := health.NewStore(cfg.HealthPath, cfg.FailureThreshold, cfg.PauseDuration)
	healthStore.Load()

	strategies := strategy.NewCache(cfg.StrategyPath)
	strategies.Load()

	pool := render.NewPool(cfg.PoolSize, guard, cfg.AttemptTimeout, cfg.FetchMaxSize, cfg.UserAgent)

	parser := parse.NewParser(cfg.FreshnessHorizon, cfg.MaxPostsPerFeed, cfg.CanonicalHost)

	// 取り込み先は同一パイプライン内の信頼済みエンドポイントのため
	// SSRFガードは適用しない
	ingester := ingest.NewClient(
		&http.Client{Timeout: cfg.IngestTimeout},
		slog.Default(), cfg.IngestURL, cfg.UserAgent,
	)

	// カタログの欠落はそのカタログに対してのみ致命的であり、他の
	// カタログの処理は継続する。全カタログが読めなかった場合のみ
	// 実行レベルで失敗させる。
	catalogParser := catalog.NewParser(cfg.BaselineURL)
	var accounts []model.Account
	var catalogErr error
	for _, spec := range cfg.Catalogs {
		parsed, err := catalogParser.Parse(spec.Path, spec.Category)
		if err != nil {
			catalogErr = err
			slog.Error("カタログの読み込みに失敗、スキップします",
				slog.String("path", spec.Path),
				slog.String("category", spec.Category),
				slog.String("error", err.Error()),
			)
			continue
		}
		accounts = append(accounts, parsed...)
	}
	if len(accounts) == 0 && catalogErr != nil {
		return nil, fmt.Errorf("no catalog could be loaded: %w", catalogErr)
	}
	accounts = catalog.NewIdentityPrioritizer().Prioritize(accounts)

	slog.Info("カタログを読み込みました",
		slog.Int("catalog_count", len(cfg.Catalogs)),
		slog.Int("account_count", len(accounts)),
	)

	return &deps{
		registry:    registry,
		healthStore: healthStore,
		strategies:  strategies,
		pool:        pool,
		parser:      parser,
		collector:   collector,
		ingester:    ingester,
		accounts:    accounts,
		gatherer:    promRegistry,
	}, nil
}

// newEngine は1回の収穫実行用のエンジンを生成する。
// 自動再起動の使用回数は実行ごとにリセットされるため、実行のたびに生成する。
func newEngine(cfg *config.Config, d *deps) *harvest.Engine {
	return harvest.NewEngine(
		d.registry, d.healthStore, d.strategies, d.pool, d.parser,
		d.collector, slog.Default(),
		harvest.Options{
			PoolSize:       cfg.PoolSize,
			AttemptTimeout: cfg.AttemptTimeout,
			BatchSize:      cfg.BatchSize,
			FeedDelay:      cfg.FeedDelay,
			BatchDelay:     cfg.BatchDelay,
			MaxAccounts:    cfg.MaxAccounts,
		},
	)
}

// runHarvest は1回の収穫を実行し、サマリーを書き出して終了する。
func runHarvest(cfg *config.Config) error {
	d, err := wire(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	summary, err := executeRun(ctx, cfg, d)
	if err != nil {
		return err
	}

	if summary.SuccessfulFeeds == 0 && summary.TotalAccounts > 0 {
		return fmt.Errorf("harvest run %s produced no successful feeds", summary.RunID)
	}
	return nil
}

// executeRun は収穫1回分を実行し、サマリーアーティファクトを書き出す。
func executeRun(ctx context.Context, cfg *config.Config, d *deps) (*model.RunSummary, error) {
	engine := newEngine(cfg, d)

	summary, err := engine.Run(ctx, d.accounts, func(ctx context.Context, posts []model.Post) error {
		return d.ingester.SubmitBatch(ctx, posts)
	})
	if err != nil {
		return nil, fmt.Errorf("harvest run failed: %w", err)
	}

	if err := harvest.WriteSummary(cfg.SummaryPath, summary); err != nil {
		slog.Error("サマリーの書き出しに失敗しました", slog.String("error", err.Error()))
	}
	return summary, nil
}

// summaryHolder は直近の実行サマリーを保持する。
// handler.SummaryProviderを実装する。
type summaryHolder struct {
	mu      sync.RWMutex
	summary *model.RunSummary
}

func (h *summaryHolder) LastSummary() (*model.RunSummary, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.summary, h.summary != nil
}

func (h *summaryHolder) set(summary *model.RunSummary) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.summary = summary
}

// runWorker はワーカーモードで起動する。
// 運用サーバーを立ち上げ、収穫を定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンする。
func runWorker(cfg *config.Config) error {
	d, err := wire(cfg)
	if err != nil {
		return err
	}

	holder := &summaryHolder{}
	router := handler.NewRouter(&handler.RouterDeps{
		Summary:        holder,
		MirrorStates:   d.registry,
		MetricsHandler: metrics.Handler(d.gatherer),
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		slog.Info("ops server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	slog.Info("worker starting",
		slog.Duration("harvest_interval", cfg.HarvestInterval),
		slog.Int("account_count", len(d.accounts)),
	)

	runOnce := func() {
		summary, err := executeRun(ctx, cfg, d)
		if err != nil {
			slog.Error("収穫実行に失敗しました", slog.String("error", err.Error()))
			return
		}
		holder.set(summary)
	}

	// 起動直後に1回実行し、以降は定期実行する
	runOnce()

	ticker := time.NewTicker(cfg.HarvestInterval)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			runOnce()
		}
	}

	slog.Info("shutting down worker...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// 運用サーバーの /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
