// Package health はアカウントごとの成功/失敗履歴と一時停止の管理を提供する。
package health

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/hitoshi/feedharvest/internal/model"
)

// fingerprintLimit はフィンガープリント計算の対象文字数上限。
const fingerprintLimit = 500

// Store はアカウント健全性レコードのストア。
// フラットなJSONマップとして永続化される。
// ミューテーションはHarvestEngineの単一ループからのみ行われるため、
// 内部ロックは持たない。
type Store struct {
	path      string
	threshold int
	pause     time.Duration
	now       func() time.Time
	records   map[string]model.HealthRecord
}

// NewStore はStoreを生成する。thresholdは一時停止までの連続失敗回数。
func NewStore(path string, threshold int, pause time.Duration) *Store {
	return &Store{
		path:      path,
		threshold: threshold,
		pause:     pause,
		now:       time.Now,
		records:   make(map[string]model.HealthRecord),
	}
}

// Load は永続化済みの健全性レコードを読み込む。
// ファイルが存在しない、または破損している場合は空の状態として扱う。
// 健全性の追跡は最適化であり、実行の正しさの要件ではない。
func (s *Store) Load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("健全性ファイルの読み込みに失敗", slog.String("path", s.path), slog.String("error", err.Error()))
		}
		s.records = make(map[string]model.HealthRecord)
		return
	}

	records := make(map[string]model.HealthRecord)
	if err := json.Unmarshal(data, &records); err != nil {
		slog.Warn("健全性ファイルが破損しているため空として扱う", slog.String("path", s.path), slog.String("error", err.Error()))
		s.records = make(map[string]model.HealthRecord)
		return
	}
	s.records = records
}

// Persist は健全性レコードをJSONファイルに書き出す。
func (s *Store) Persist() error {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal health records: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write health file %s: %w", s.path, err)
	}
	return nil
}

// ShouldSkip はアカウントが一時停止中かを判定する。
// 一時停止期間が経過していた場合は失敗カウントをリセットして
// 再判定の機会を与える。
func (s *Store) ShouldSkip(handle string) (bool, string) {
	rec, ok := s.records[handle]
	if !ok {
		return false, ""
	}

	if !rec.PausedUntil.IsZero() {
		if s.now().Before(rec.PausedUntil) {
			hoursLeft := int(rec.PausedUntil.Sub(s.now()).Hours() + 0.5)
			reason := fmt.Sprintf("paused for %dh more (%d failures)", hoursLeft, rec.ConsecutiveFailures)
			return true, reason
		}
		// 一時停止期間の経過後は失敗カウントをリセットして再挑戦させる
		rec.ConsecutiveFailures = 0
		rec.PausedUntil = time.Time{}
		s.records[handle] = rec
	}

	return false, ""
}

// RecordSuccess は成功を記録し、失敗カウントと一時停止を解除する。
func (s *Store) RecordSuccess(handle string, fingerprint string) {
	s.records[handle] = model.HealthRecord{
		ConsecutiveFailures: 0,
		LastSuccess:         s.now(),
		LastFingerprint:     fingerprint,
	}
}

// RecordFailure は失敗を記録する。
// 連続失敗が閾値に達した場合はアカウントを一時停止する。
func (s *Store) RecordFailure(handle string) {
	rec := s.records[handle]
	rec.ConsecutiveFailures++

	if rec.ConsecutiveFailures >= s.threshold {
		rec.PausedUntil = s.now().Add(s.pause)
		slog.Info("アカウントを一時停止",
			slog.String("handle", handle),
			slog.Int("failures", rec.ConsecutiveFailures),
			slog.Duration("duration_ms", s.pause))
	}

	s.records[handle] = rec
}

// LastFingerprint はアカウントの前回コンテンツフィンガープリントを返す。
func (s *Store) LastFingerprint(handle string) string {
	return s.records[handle].LastFingerprint
}

// Fingerprint は投稿タイトル連結文字列の先頭500文字に対する
// 軽量ローリングハッシュを計算する。
// 将来の「新着なし」検出のために保存されるのみで、現状の判定には使わない。
func Fingerprint(content string) string {
	var hash int32
	count := 0
	for _, r := range content {
		if count >= fingerprintLimit {
			break
		}
		hash = (hash << 5) - hash + int32(r)
		count++
	}
	return strconv.FormatInt(int64(hash), 16)
}
