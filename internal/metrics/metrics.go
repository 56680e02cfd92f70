// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 収穫エンジンとミラーレジストリから利用する。
type MetricsCollector interface {
	RecordFeedSuccess(strategy string)
	RecordFeedFailure(reason string)
	RecordFeedSkipped()
	RecordPostsEmitted(count int)
	RecordEndpointWin(baseURL string)
	RecordProbeState(baseURL string, state string)
	RecordRaceLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	feedSuccess  *prometheus.CounterVec
	feedFail     *prometheus.CounterVec
	feedSkipped  prometheus.Counter
	postsEmitted prometheus.Counter
	endpointWins *prometheus.CounterVec
	probeStates  *prometheus.CounterVec
	raceLatency  prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		feedSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedharvest_feed_success_total",
			Help: "戦略別のフィード収穫成功の合計数",
		}, []string{"strategy"}),
		feedFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedharvest_feed_fail_total",
			Help: "理由別のフィード収穫失敗の合計数",
		}, []string{"reason"}),
		feedSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedharvest_feed_skipped_total",
			Help: "一時停止によりスキップされたフィードの合計数",
		}),
		postsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedharvest_posts_emitted_total",
			Help: "下流に受け渡した正規化済み投稿の合計数",
		}),
		endpointWins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedharvest_endpoint_wins_total",
			Help: "レースに勝利したエンドポイント別の合計数",
		}, []string{"endpoint"}),
		probeStates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedharvest_probe_state_total",
			Help: "ミラー疎通確認の結果状態別の合計数",
		}, []string{"endpoint", "state"}),
		raceLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "feedharvest_race_latency_seconds",
			Help:    "アカウントごとのレース解決までのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.feedSuccess,
		c.feedFail,
		c.feedSkipped,
		c.postsEmitted,
		c.endpointWins,
		c.probeStates,
		c.raceLatency,
	)

	return c
}

// RecordFeedSuccess は戦略別のフィード収穫成功を記録する。
func (c *Collector) RecordFeedSuccess(strategy string) {
	c.feedSuccess.WithLabelValues(strategy).Inc()
}

// RecordFeedFailure はフィード収穫失敗を記録する。
func (c *Collector) RecordFeedFailure(reason string) {
	c.feedFail.WithLabelValues(reason).Inc()
}

// RecordFeedSkipped は一時停止によるスキップを記録する。
func (c *Collector) RecordFeedSkipped() {
	c.feedSkipped.Inc()
}

// RecordPostsEmitted は受け渡した投稿数を記録する。
func (c *Collector) RecordPostsEmitted(count int) {
	c.postsEmitted.Add(float64(count))
}

// RecordEndpointWin はレースに勝利したエンドポイントを記録する。
func (c *Collector) RecordEndpointWin(baseURL string) {
	c.endpointWins.WithLabelValues(baseURL).Inc()
}

// RecordProbeState はミラー疎通確認の結果を記録する。
func (c *Collector) RecordProbeState(baseURL string, state string) {
	c.probeStates.WithLabelValues(baseURL, state).Inc()
}

// RecordRaceLatency はレース解決までのレイテンシを記録する。
func (c *Collector) RecordRaceLatency(duration time.Duration) {
	c.raceLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
