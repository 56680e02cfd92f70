// Package ingest は下流の取り込みパイプラインへの投稿の受け渡しを提供する。
// 永続化、重複排除、スコアリングは下流の責務であり、ここでは行わない。
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/feedharvest/internal/model"
)

// Client は取り込みパイプラインのHTTPクライアント。
// バッチごとに正規化済み投稿をJSONでPOSTする。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string
	userAgent  string
}

// NewClient はClientの新しいインスタンスを生成する。
// endpointが空の場合、受け渡しはログ出力のみのno-opになる。
func NewClient(httpClient *http.Client, logger *slog.Logger, endpoint string, userAgent string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   endpoint,
		userAgent:  userAgent,
	}
}

// batchPayload は取り込みリクエストのボディ。
type batchPayload struct {
	Posts []model.Post `json:"posts"`
}

// SubmitBatch は1バッチ分の投稿を取り込みパイプラインに受け渡す。
// 失敗してもバッチは再送されない。次回実行で同じ投稿が再収穫される
// 可能性があり、重複排除は下流が行う。
func (c *Client) SubmitBatch(ctx context.Context, posts []model.Post) error {
	if len(posts) == 0 {
		return nil
	}

	if c.endpoint == "" {
		c.logger.Info("取り込み先が未設定のため受け渡しをスキップ",
			slog.Int("post_count", len(posts)),
		)
		return nil
	}

	body, err := json.Marshal(batchPayload{Posts: posts})
	if err != nil {
		return model.NewIngestFailedError(fmt.Sprintf("failed to marshal batch: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return model.NewIngestFailedError(fmt.Sprintf("failed to build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("取り込みパイプラインへのリクエストに失敗しました",
			slog.String("error", err.Error()),
			slog.Int("post_count", len(posts)),
		)
		return model.NewIngestFailedError(err.Error())
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("取り込みパイプラインがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.Int("post_count", len(posts)),
		)
		return model.NewIngestFailedError(fmt.Sprintf("status %d", resp.StatusCode))
	}

	c.logger.Info("バッチを取り込みパイプラインに受け渡しました",
		slog.Int("post_count", len(posts)),
	)
	return nil
}
