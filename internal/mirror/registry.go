// Package mirror はミラーエンドポイントの疎通確認と健全性管理を提供する。
package mirror

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hitoshi/feedharvest/internal/model"
)

// probeBodyLimit は疎通確認で読み取るレスポンスボディの上限バイト数。
const probeBodyLimit = 256 * 1024

// ProbeRecorder は疎通確認結果のメトリクス記録インターフェース。
type ProbeRecorder interface {
	RecordProbeState(baseURL string, state string)
}

// Registry はミラーエンドポイントの健全性レジストリ。
// ベースライン（レンダープロキシ）は常に利用可能とみなし、疎通確認の対象外とする。
// 疎通確認の結果は refresh interval の間キャッシュされる。
type Registry struct {
	baseline    model.MirrorEndpoint
	mirrors     []model.MirrorEndpoint
	client      *http.Client
	classifier  ProbeClassifier
	probeHandle string
	interval    time.Duration
	ceiling     time.Duration
	userAgent   string
	recorder    ProbeRecorder
	now         func() time.Time

	mu        sync.RWMutex
	cached    []model.MirrorEndpoint
	states    map[string]model.HealthState
	lastProbe time.Time
}

// Options はRegistryの生成パラメータ。
type Options struct {
	BaselineURL string
	MirrorURLs  []string
	Client      *http.Client
	Classifier  ProbeClassifier
	ProbeHandle string
	Interval    time.Duration
	Ceiling     time.Duration
	UserAgent   string
	Recorder    ProbeRecorder
}

// NewRegistry はRegistryを生成する。
// Clientにはタイムアウト設定済みのHTTPクライアントを渡す。
func NewRegistry(opts Options) *Registry {
	mirrors := make([]model.MirrorEndpoint, 0, len(opts.MirrorURLs))
	for _, u := range opts.MirrorURLs {
		mirrors = append(mirrors, model.MirrorEndpoint{
			BaseURL: u,
			Mode:    model.ModeDirectMirror,
		})
	}
	classifier := opts.Classifier
	if classifier == nil {
		classifier = NewDefaultClassifier()
	}
	return &Registry{
		baseline: model.MirrorEndpoint{
			BaseURL: opts.BaselineURL,
			Mode:    model.ModeRenderProxy,
		},
		mirrors:     mirrors,
		client:      opts.Client,
		classifier:  classifier,
		probeHandle: opts.ProbeHandle,
		interval:    opts.Interval,
		ceiling:     opts.Ceiling,
		userAgent:   opts.UserAgent,
		recorder:    opts.Recorder,
		now:         time.Now,
		states:      make(map[string]model.HealthState),
	}
}

// GetHealthyEndpoints は利用可能なエンドポイントの順序付きリストを返す。
// 先頭は常にベースラインであり、全ミラーの疎通確認が失敗しても
// 最低1件（ベースライン）は返る。
func (r *Registry) GetHealthyEndpoints(ctx context.Context) []model.MirrorEndpoint {
	r.mu.RLock()
	if len(r.cached) > 0 && r.now().Sub(r.lastProbe) < r.interval {
		cached := make([]model.MirrorEndpoint, len(r.cached))
		copy(cached, r.cached)
		r.mu.RUnlock()
		return cached
	}
	r.mu.RUnlock()

	return r.refresh(ctx)
}

// States はミラーごとの最新の健全性状態を返す。運用系エンドポイントで使用する。
func (r *Registry) States() map[string]model.HealthState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]model.HealthState, len(r.states))
	for k, v := range r.states {
		out[k] = v
	}
	return out
}

// probeResult は1ミラーの疎通確認結果。
type probeResult struct {
	endpoint model.MirrorEndpoint
	state    model.HealthState
}

// refresh は全ミラーを並行に疎通確認してキャッシュを更新する。
// 疎通確認全体にグローバル上限（ceiling）を課し、上限までに応答しなかった
// ミラーは今回の健全セットから除外するだけで、確定失敗としては扱わない。
func (r *Registry) refresh(ctx context.Context) []model.MirrorEndpoint {
	start := r.now()
	results := make(chan probeResult, len(r.mirrors))

	for _, m := range r.mirrors {
		go func(endpoint model.MirrorEndpoint) {
			results <- probeResult{
				endpoint: endpoint,
				state:    r.probe(ctx, endpoint),
			}
		}(m)
	}

	answered := make(map[string]model.HealthState, len(r.mirrors))
	timer := time.NewTimer(r.ceiling)
	defer timer.Stop()

collect:
	for range r.mirrors {
		select {
		case res := <-results:
			answered[res.endpoint.BaseURL] = res.state
		case <-timer.C:
			break collect
		case <-ctx.Done():
			break collect
		}
	}

	// 設定順を維持して利用可能なミラーを選別する
	healthy := []model.MirrorEndpoint{r.baseline}
	for _, m := range r.mirrors {
		if state, ok := answered[m.BaseURL]; ok && state.Usable() {
			healthy = append(healthy, m)
		}
	}

	r.mu.Lock()
	r.cached = healthy
	r.lastProbe = r.now()
	for base, state := range answered {
		r.states[base] = state
	}
	r.mu.Unlock()

	if r.recorder != nil {
		for base, state := range answered {
			r.recorder.RecordProbeState(base, string(state))
		}
	}

	slog.Info("ミラー疎通確認完了",
		slog.Int("usable", len(healthy)),
		slog.Int("answered", len(answered)),
		slog.Int("total", len(r.mirrors)+1),
		slog.Duration("duration_ms", r.now().Sub(start)))

	out := make([]model.MirrorEndpoint, len(healthy))
	copy(out, healthy)
	return out
}

// probe は1ミラーに対して軽量GETを発行し健全性を判定する。
// 失敗は blocked への降格のみで、エラーとしては伝播しない。
func (r *Registry) probe(ctx context.Context, endpoint model.MirrorEndpoint) model.HealthState {
	probeURL := endpoint.BaseURL + "/" + r.probeHandle

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		return model.StateBlocked
	}
	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml")

	resp, err := r.client.Do(req)
	if err != nil {
		probeErr := model.NewProbeFailedError(endpoint.BaseURL, err.Error())
		slog.Warn("ミラー疎通確認失敗", slog.String("error", probeErr.Error()))
		return model.StateBlocked
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, probeBodyLimit))
	if err != nil {
		return model.StateBlocked
	}

	state := r.classifier.Classify(resp.StatusCode, string(body))
	slog.Debug("ミラー疎通確認",
		slog.String("base_url", endpoint.BaseURL),
		slog.Int("status", resp.StatusCode),
		slog.String("state", string(state)))
	return state
}
