// Package cleanup はローカルメディアファイルの自動削除ジョブを提供する。
// 保持期間（デフォルト30日）を超過したダウンロード済みメディアを
// 日次バッチで削除する。アイテム自体は削除せず、local_media_pathのみNULLに戻す。
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hitoshi/mediawatch/internal/repository"
)

// batchSize は1回の実行で処理するメディアファイルの上限数。
const batchSize = 500

// CleanupJob は保持期間を超過したメディアファイルの自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	itemRepo      repository.ItemRepository
	logger        *slog.Logger
	RetentionDays int // メディアの保持日数（デフォルト: 30）
}

// NewCleanupJob は新しいCleanupJobを生成する。
// デフォルトの保持日数は30日。
func NewCleanupJob(itemRepo repository.ItemRepository, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		itemRepo:      itemRepo,
		logger:        logger,
		RetentionDays: 30,
	}
}

// Run は保持期間を超過したメディアファイルを削除する。
// updated_atがRetentionDays日前より古い完了済みアイテムのメディアを
// ディスクから削除し、local_media_pathをNULLに戻す。
// 冪等: ファイルが既に存在しない場合も削除成功として扱う。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	cutoff := time.Now().AddDate(0, 0, -j.RetentionDays)
	paths, err := j.itemRepo.ListStaleMediaPaths(ctx, cutoff, batchSize)
	if err != nil {
		j.logger.Error("クリーンアップ対象の取得に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("クリーンアップ対象の取得に失敗: %w", err)
	}

	if len(paths) == 0 {
		j.logger.Info("クリーンアップ対象のメディアはありません")
		return nil
	}

	removed := make([]string, 0, len(paths))
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			j.logger.Error("メディアファイルの削除に失敗しました",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}
		removed = append(removed, path)
	}

	if len(removed) > 0 {
		if err := j.itemRepo.ClearMediaPaths(ctx, removed); err != nil {
			return fmt.Errorf("メディアパスのクリアに失敗: %w", err)
		}
	}

	duration := time.Since(start)
	j.logger.Info("メディアクリーンアップジョブが完了しました",
		slog.Int("deleted_count", len(removed)),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
