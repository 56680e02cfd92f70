package harvest

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/hitoshi/feedharvest/internal/model"
)

// WriteSummary は実行サマリーをJSONアーティファクトとして書き出す。
// 前回実行の結果を上書きし、成否判定の唯一の参照点となる。
func WriteSummary(path string, summary *model.RunSummary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write run summary: %w", err)
	}
	return nil
}
