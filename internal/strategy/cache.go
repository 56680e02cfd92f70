// Package strategy はアカウントごとの成功戦略のキャッシュを提供する。
package strategy

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hitoshi/feedharvest/internal/model"
)

// Cache はアカウント→成功戦略のキャッシュ。
// フラットなJSONマップとして永続化される。
// ファストパスのヒントとしてのみ使用され、再生に失敗した場合は
// 通常のレースにフォールスルーする。
// ミューテーションはHarvestEngineの単一ループからのみ行われる。
type Cache struct {
	path    string
	now     func() time.Time
	records map[string]model.StrategyRecord
}

// NewCache はCacheを生成する。
func NewCache(path string) *Cache {
	return &Cache{
		path:    path,
		now:     time.Now,
		records: make(map[string]model.StrategyRecord),
	}
}

// Load は永続化済みの戦略キャッシュを読み込む。
// ファイルが存在しない、または破損している場合は空の状態として扱う。
func (c *Cache) Load() {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("戦略ファイルの読み込みに失敗", slog.String("path", c.path), slog.String("error", err.Error()))
		}
		c.records = make(map[string]model.StrategyRecord)
		return
	}

	records := make(map[string]model.StrategyRecord)
	if err := json.Unmarshal(data, &records); err != nil {
		slog.Warn("戦略ファイルが破損しているため空として扱う", slog.String("path", c.path), slog.String("error", err.Error()))
		c.records = make(map[string]model.StrategyRecord)
		return
	}
	c.records = records
}

// Persist は戦略キャッシュをJSONファイルに書き出す。
func (c *Cache) Persist() error {
	data, err := json.MarshalIndent(c.records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal strategy records: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write strategy file %s: %w", c.path, err)
	}
	return nil
}

// Get はアカウントのキャッシュ済み戦略を返す。
func (c *Cache) Get(handle string) (model.StrategyRecord, bool) {
	rec, ok := c.records[handle]
	return rec, ok
}

// Save は成功した（エンドポイント, 抽出方法）の組を記録する。
// 成功のたびに上書きされる。
func (c *Cache) Save(handle string, endpoint model.MirrorEndpoint, method model.ExtractMethod) {
	c.records[handle] = model.StrategyRecord{
		Endpoint:    endpoint,
		Method:      method,
		LastSuccess: c.now(),
	}
}

// Len はキャッシュ済み戦略の件数を返す。
func (c *Cache) Len() int {
	return len(c.records)
}
