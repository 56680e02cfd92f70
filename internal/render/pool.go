// Package render は収穫フェッチ用のレンダリングセッションプールを提供する。
package render

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/feedharvest/internal/model"
)

// Session は1つのレンダリングセッションを表す。
// ミラーまたはレンダープロキシからページ本文を取得する。
type Session interface {
	// Fetch はURLのレスポンスボディを文字列として取得する。
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// ClientBuilder はセッション用HTTPクライアントの生成シーム。
// 本番ではSSRF防止付きクライアントを、テストではhttptestに
// 接続可能な素のクライアントを注入する。
type ClientBuilder interface {
	NewSafeClient(timeout time.Duration) *http.Client
}

// Pool は固定サイズのレンダリングセッションプール。
// セッションはインデックスで要求され、異なるレース間で同一スロットを
// 共有することはあっても、1つのレース内ではスロットが重複しない。
type Pool struct {
	size      int
	builder   ClientBuilder
	timeout   time.Duration
	maxBody   int64
	userAgent string
	sessions  []Session
}

// NewPool はPoolを生成する。Startを呼ぶまでセッションは利用できない。
func NewPool(size int, builder ClientBuilder, timeout time.Duration, maxBody int64, userAgent string) *Pool {
	return &Pool{
		size:      size,
		builder:   builder,
		timeout:   timeout,
		maxBody:   maxBody,
		userAgent: userAgent,
	}
}

// Start はプール内の全セッションを初期化する。
// 初期化できない場合は実行レベルで致命的なエラーを返す。
func (p *Pool) Start() error {
	if p.size <= 0 {
		return model.NewRendererInitError(fmt.Sprintf("invalid pool size: %d", p.size))
	}
	if p.builder == nil {
		return model.NewRendererInitError("client builder is nil")
	}

	sessions := make([]Session, p.size)
	for i := 0; i < p.size; i++ {
		client := p.builder.NewSafeClient(p.timeout)
		if client == nil {
			return model.NewRendererInitError(fmt.Sprintf("session %d: client build failed", i))
		}
		sessions[i] = &httpSession{
			client:    client,
			maxBody:   p.maxBody,
			userAgent: p.userAgent,
		}
	}
	p.sessions = sessions

	slog.Info("レンダリングプール初期化完了", slog.Int("pool_size", p.size))
	return nil
}

// Restart は全セッションを破棄して再初期化する。
// バッチを諦める前の1回限りの自動復旧に使用する。
func (p *Pool) Restart() error {
	slog.Warn("レンダリングプールを再起動", slog.Int("pool_size", p.size))
	p.sessions = nil
	return p.Start()
}

// Ready はプールが初期化済みかを返す。
func (p *Pool) Ready() bool {
	return len(p.sessions) == p.size && p.size > 0
}

// Session はインデックスに対応するセッションを返す。
// インデックスはプールサイズで折り返されるため、任意の試行番号を渡せる。
func (p *Pool) Session(i int) Session {
	return p.sessions[i%p.size]
}

// Size はプールサイズを返す。
func (p *Pool) Size() int {
	return p.size
}

// httpSession はHTTPクライアントによるSessionの実装。
type httpSession struct {
	client    *http.Client
	maxBody   int64
	userAgent string
}

// Fetch はURLのレスポンスボディを取得する。
// ステータスコードによる拒否は行わない。チャレンジページ等の判定は
// パーサーの拒否ルールに委ねる。
func (s *httpSession) Fetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request for %s: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch failed for %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBody))
	if err != nil {
		return "", fmt.Errorf("failed to read body for %s: %w", rawURL, err)
	}

	return string(body), nil
}
