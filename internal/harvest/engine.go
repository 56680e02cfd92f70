// Package harvest はアカウント横断の収穫オーケストレーションを提供する。
// アカウントごとに、キャッシュ済み戦略の再生、健全ミラー間のレース、
// 検索フォールバックの順で試行し、正規化済み投稿をバッチで受け渡す。
package harvest

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/hitoshi/feedharvest/internal/health"
	"github.com/hitoshi/feedharvest/internal/model"
	"github.com/hitoshi/feedharvest/internal/parse"
	"github.com/hitoshi/feedharvest/internal/render"
)

// MirrorLister は利用可能なミラーエンドポイントの取得インターフェース。
type MirrorLister interface {
	GetHealthyEndpoints(ctx context.Context) []model.MirrorEndpoint
}

// HealthTracker はアカウント健全性の記録インターフェース。
type HealthTracker interface {
	ShouldSkip(handle string) (bool, string)
	RecordSuccess(handle string, fingerprint string)
	RecordFailure(handle string)
	Persist() error
}

// StrategyStore は成功戦略キャッシュのインターフェース。
type StrategyStore interface {
	Get(handle string) (model.StrategyRecord, bool)
	Save(handle string, endpoint model.MirrorEndpoint, method model.ExtractMethod)
	Persist() error
}

// SessionPool はレンダリングセッションプールのインターフェース。
type SessionPool interface {
	Ready() bool
	Start() error
	Restart() error
	Session(i int) render.Session
	Size() int
}

// PostParser はレスポンスボディを投稿に変換するインターフェース。
type PostParser interface {
	Parse(body string, account model.Account, endpoint model.MirrorEndpoint) []model.Post
}

// MetricsCollector は収穫メトリクスの記録インターフェース。
type MetricsCollector interface {
	RecordFeedSuccess(strategy string)
	RecordFeedFailure(reason string)
	RecordFeedSkipped()
	RecordPostsEmitted(count int)
	RecordEndpointWin(baseURL string)
	RecordRaceLatency(duration time.Duration)
}

// BatchFunc はバッチごとに新規投稿を受け取るコールバック。
type BatchFunc func(ctx context.Context, posts []model.Post) error

// Options はEngineの動作パラメータ。
type Options struct {
	PoolSize       int
	AttemptTimeout time.Duration
	BatchSize      int
	FeedDelay      time.Duration
	BatchDelay     time.Duration
	MaxAccounts    int
}

// Engine は収穫のオーケストレーター。
// 健全性ストアと戦略キャッシュのミューテーションはこのループからのみ行う。
type Engine struct {
	mirrors    MirrorLister
	health     HealthTracker
	strategies StrategyStore
	pool       SessionPool
	parser     PostParser
	collector  MetricsCollector
	logger     *slog.Logger
	limiter    *rate.Limiter
	opts       Options
	now        func() time.Time

	// レンダリングバックエンドの自動再起動は実行ごとに1回だけ許す
	restartUsed bool
}

// NewEngine はEngineを生成する。
func NewEngine(
	mirrors MirrorLister,
	healthStore HealthTracker,
	strategies StrategyStore,
	pool SessionPool,
	parser PostParser,
	collector MetricsCollector,
	logger *slog.Logger,
	opts Options,
) *Engine {
	return &Engine{
		mirrors:    mirrors,
		health:     healthStore,
		strategies: strategies,
		pool:       pool,
		parser:     parser,
		collector:  collector,
		logger:     logger,
		limiter:    rate.NewLimiter(rate.Every(opts.FeedDelay), 1),
		opts:       opts,
		now:        time.Now,
	}
}

// Run は全アカウントをバッチ処理して実行サマリーを返す。
// 個々のアカウントの失敗は記録されるだけで実行を中断しない。
// レンダリングバックエンドが起動できない場合のみ実行レベルで失敗する。
func (e *Engine) Run(ctx context.Context, accounts []model.Account, emit BatchFunc) (*model.RunSummary, error) {
	if e.opts.MaxAccounts > 0 && len(accounts) > e.opts.MaxAccounts {
		accounts = accounts[:e.opts.MaxAccounts]
	}

	if !e.pool.Ready() {
		if err := e.pool.Start(); err != nil {
			return nil, err
		}
	}

	runID := uuid.New().String()
	startedAt := e.now()
	summary := &model.RunSummary{
		RunID:          runID,
		StartedAt:      startedAt,
		TotalAccounts:  len(accounts),
		StrategyCounts: make(map[model.StrategyKind]int),
		EndpointWins:   make(map[string]int),
	}

	e.logger.Info("収穫実行を開始",
		slog.String("run_id", runID),
		slog.Int("total_accounts", len(accounts)),
		slog.Int("batch_size", e.opts.BatchSize),
	)

	for start := 0; start < len(accounts); start += e.opts.BatchSize {
		end := start + e.opts.BatchSize
		if end > len(accounts) {
			end = len(accounts)
		}

		batchPosts, err := e.runBatch(ctx, accounts[start:end], summary)
		if err != nil {
			return nil, err
		}

		// 次のアカウントに進む前にバッチ分を下流へ受け渡す
		if len(batchPosts) > 0 && emit != nil {
			if err := emit(ctx, batchPosts); err != nil {
				e.logger.Error("バッチの受け渡しに失敗しました",
					slog.String("run_id", runID),
					slog.String("error", err.Error()),
				)
			}
			e.collector.RecordPostsEmitted(len(batchPosts))
		}

		if end < len(accounts) {
			if err := sleepCtx(ctx, e.opts.BatchDelay); err != nil {
				return nil, err
			}
		}
	}

	summary.FinishedAt = e.now()
	summary.DurationMS = summary.FinishedAt.Sub(startedAt).Milliseconds()

	if err := e.health.Persist(); err != nil {
		e.logger.Warn("健全性ストアの永続化に失敗", slog.String("error", err.Error()))
	}
	if err := e.strategies.Persist(); err != nil {
		e.logger.Warn("戦略キャッシュの永続化に失敗", slog.String("error", err.Error()))
	}

	e.logger.Info("収穫実行を完了",
		slog.String("run_id", runID),
		slog.Int("successful", summary.SuccessfulFeeds),
		slog.Int("failed", summary.FailedFeeds),
		slog.Int("skipped", summary.SkippedFeeds),
		slog.Int("total_posts", summary.TotalPosts),
		slog.Duration("duration_ms", summary.FinishedAt.Sub(startedAt)),
	)

	return summary, nil
}

// runBatch は1バッチ分のアカウントを処理して産出された投稿を返す。
func (e *Engine) runBatch(ctx context.Context, accounts []model.Account, summary *model.RunSummary) ([]model.Post, error) {
	if !e.pool.Ready() {
		if err := e.restartPool(); err != nil {
			return nil, err
		}
	}

	var batchPosts []model.Post
	for _, account := range accounts {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		result, posts := e.harvestAccount(ctx, account)
		batchPosts = append(batchPosts, posts...)
		e.recordResult(summary, result)
	}

	return batchPosts, nil
}

// restartPool はレンダリングバックエンドの1回限りの自動再起動を試みる。
func (e *Engine) restartPool() error {
	if e.restartUsed {
		return model.NewRendererInitError("restart already attempted")
	}
	e.restartUsed = true
	return e.pool.Restart()
}

// recordResult はアカウント結果をサマリーに集計する。
func (e *Engine) recordResult(summary *model.RunSummary, result model.AccountResult) {
	summary.Accounts = append(summary.Accounts, result)
	summary.TotalPosts += result.ItemCount

	switch {
	case result.Skipped:
		summary.SkippedFeeds++
		e.collector.RecordFeedSkipped()
	case result.Success:
		summary.SuccessfulFeeds++
		summary.StrategyCounts[result.Strategy]++
		if result.Endpoint != "" {
			summary.EndpointWins[result.Endpoint]++
		}
		e.collector.RecordFeedSuccess(string(result.Strategy))
	default:
		summary.FailedFeeds++
		summary.StrategyCounts[model.StrategyFailed]++
		summary.FailedAccounts = append(summary.FailedAccounts, model.FailedAccount{
			Handle: result.Handle,
			Reason: result.Error,
		})
		e.collector.RecordFeedFailure(result.Error)
	}
}

// harvestAccount は1アカウントの収穫手順を実行する。
func (e *Engine) harvestAccount(ctx context.Context, account model.Account) (model.AccountResult, []model.Post) {
	started := e.now()
	result := model.AccountResult{
		Handle: account.Handle,
		Title:  account.Title,
	}

	if skip, reason := e.health.ShouldSkip(account.Handle); skip {
		e.logger.Info("アカウントをスキップ",
			slog.String("handle", account.Handle),
			slog.String("reason", reason),
		)
		result.Skipped = true
		result.Error = reason
		return result, nil
	}

	posts, strategy, endpoint, err := e.attemptStrategies(ctx, account)
	result.DurationMS = e.now().Sub(started).Milliseconds()
	result.Strategy = strategy
	result.Endpoint = endpoint.BaseURL

	if len(posts) == 0 {
		reason := "no posts from any strategy"
		if err != nil {
			reason = err.Error()
		}
		e.logger.Warn("アカウントの収穫に失敗",
			slog.String("handle", account.Handle),
			slog.String("reason", reason),
		)
		result.Error = reason
		result.Strategy = model.StrategyFailed
		result.Endpoint = ""
		e.health.RecordFailure(account.Handle)
		return result, nil
	}

	result.Success = true
	result.ItemCount = len(posts)
	e.health.RecordSuccess(account.Handle, health.Fingerprint(concatTitles(posts)))

	e.logger.Info("アカウントの収穫に成功",
		slog.String("handle", account.Handle),
		slog.String("strategy", string(strategy)),
		slog.String("endpoint", endpoint.BaseURL),
		slog.Int("item_count", len(posts)),
		slog.Duration("duration_ms", e.now().Sub(started)),
	)

	return result, posts
}

// attemptStrategies はファストパス、プライマリレース、検索フォールバックを
// この順で試行する。
func (e *Engine) attemptStrategies(ctx context.Context, account model.Account) ([]model.Post, model.StrategyKind, model.MirrorEndpoint, error) {
	// ファストパス: キャッシュ済み戦略を1回だけ試す。失敗したら
	// 同じ選択を再試行せずフルレースにフォールスルーする。
	if cached, ok := e.strategies.Get(account.Handle); ok {
		posts, err := e.attempt(ctx, account, cached.Endpoint, cached.Method, 0)
		if err == nil && len(posts) > 0 {
			e.strategies.Save(account.Handle, cached.Endpoint, cached.Method)
			return posts, model.StrategyFastPath, cached.Endpoint, nil
		}
		e.logger.Debug("キャッシュ済み戦略が失敗、レースに移行",
			slog.String("handle", account.Handle),
			slog.String("endpoint", cached.Endpoint.BaseURL),
		)
	}

	endpoints := e.mirrors.GetHealthyEndpoints(ctx)
	if len(endpoints) == 0 {
		return nil, model.StrategyFailed, model.MirrorEndpoint{}, model.NewNoHealthyMirrorError()
	}

	// プライマリレース: 先頭N件のエンドポイントでプロフィール取得を競わせる
	candidates := endpoints
	if len(candidates) > e.opts.PoolSize {
		candidates = candidates[:e.opts.PoolSize]
	}

	raceStart := e.now()
	posts, winner, raceErr := e.race(ctx, account, candidates, model.MethodProfile)
	if len(posts) > 0 {
		e.collector.RecordRaceLatency(e.now().Sub(raceStart))
		e.collector.RecordEndpointWin(winner.BaseURL)
		e.strategies.Save(account.Handle, winner, model.MethodProfile)
		return posts, model.StrategyRaced, winner, nil
	}

	// 検索フォールバック: ベースライン以外のミラーで検索クエリを競わせる。
	// フォールバックであり安定とは見なさないため、戦略はキャッシュしない。
	// レース幅はプールサイズを超えない。1レース内でセッションスロットが
	// 重複しないことはこの上限で保証される。
	searchLimit := e.opts.PoolSize
	if searchLimit > 3 {
		searchLimit = 3
	}
	var searchPool []model.MirrorEndpoint
	for _, ep := range endpoints {
		if !ep.IsBaseline() {
			searchPool = append(searchPool, ep)
		}
		if len(searchPool) == searchLimit {
			break
		}
	}
	if len(searchPool) > 0 {
		posts, winner, err := e.race(ctx, account, searchPool, model.MethodSearch)
		if len(posts) > 0 {
			e.collector.RecordEndpointWin(winner.BaseURL)
			return posts, model.StrategySearch, winner, nil
		}
		if err != nil {
			raceErr = err
		}
	}

	return nil, model.StrategyFailed, model.MirrorEndpoint{}, raceErr
}

// raceResult は1試行の結果。
type raceResult struct {
	posts    []model.Post
	endpoint model.MirrorEndpoint
	err      error
}

// race は複数エンドポイントへの試行を並行に走らせ、最初に1件以上の
// 投稿を得た試行を勝者とする。勝者決定後の残りの試行は放棄され、
// 遅れて届いた結果は共有状態に書き込まれず破棄される。
// レース全体は試行タイムアウトの2倍で打ち切る。
func (e *Engine) race(ctx context.Context, account model.Account, endpoints []model.MirrorEndpoint, method model.ExtractMethod) ([]model.Post, model.MirrorEndpoint, error) {
	raceCtx, cancel := context.WithTimeout(ctx, 2*e.opts.AttemptTimeout)
	defer cancel()

	results := make(chan raceResult, len(endpoints))
	for i, ep := range endpoints {
		go func(slot int, endpoint model.MirrorEndpoint) {
			posts, err := e.attempt(raceCtx, account, endpoint, method, slot)
			results <- raceResult{posts: posts, endpoint: endpoint, err: err}
		}(i, ep)
	}

	var lastErr error
	for range endpoints {
		select {
		case res := <-results:
			if res.err == nil && len(res.posts) > 0 {
				return res.posts, res.endpoint, nil
			}
			if res.err != nil {
				lastErr = res.err
			}
		case <-raceCtx.Done():
			return nil, model.MirrorEndpoint{}, model.NewAttemptFailedError("race timed out")
		}
	}

	if lastErr == nil {
		lastErr = model.NewAttemptFailedError("no endpoint produced posts")
	}
	return nil, model.MirrorEndpoint{}, lastErr
}

// attempt は1エンドポイントへの1回の収穫試行を行う。
func (e *Engine) attempt(ctx context.Context, account model.Account, endpoint model.MirrorEndpoint, method model.ExtractMethod, slot int) ([]model.Post, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, e.opts.AttemptTimeout)
	defer cancel()

	targetURL := BuildTargetURL(endpoint, method, account.Handle)
	body, err := e.pool.Session(slot).Fetch(attemptCtx, targetURL)
	if err != nil {
		return nil, model.NewAttemptFailedError(err.Error())
	}

	if blocked, marker := parse.DetectBlocked(body); blocked {
		return nil, model.NewBlockedContentError(marker)
	}

	return e.parser.Parse(body, account, endpoint), nil
}

// BuildTargetURL はエンドポイントと抽出方法に応じた取得先URLを構築する。
// レンダープロキシはプロフィールページを、直接ミラーはRSSエンドポイントを
// 取得する。検索はアカウントスコープのクエリを使用する。
func BuildTargetURL(endpoint model.MirrorEndpoint, method model.ExtractMethod, handle string) string {
	base := strings.TrimRight(endpoint.BaseURL, "/")
	if method == model.MethodSearch {
		return base + "/search?q=from%3A" + handle + "&f=tweets"
	}
	if endpoint.IsBaseline() {
		return base + "/" + handle
	}
	return base + "/" + handle + "/rss"
}

// concatTitles はフィンガープリント計算用にタイトルを連結する。
func concatTitles(posts []model.Post) string {
	var sb strings.Builder
	for _, p := range posts {
		sb.WriteString(p.Title)
	}
	return sb.String()
}

// sleepCtx はコンテキストのキャンセルに応答するスリープ。
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
