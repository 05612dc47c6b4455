// Package ingest はフェッチ結果の検証・サニタイズ・重複排除・永続化を行う。
package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/mediawatch/internal/model"
	"github.com/hitoshi/mediawatch/internal/repository"
	"github.com/hitoshi/mediawatch/internal/security"
)

// Tx は取り込みトランザクションのインターフェース。*sql.Txが満たす。
type Tx interface {
	repository.Executor
	Commit() error
	Rollback() error
}

// TxBeginner は取り込みトランザクションの開始インターフェース。
type TxBeginner interface {
	Begin(ctx context.Context) (Tx, error)
}

// SQLTxBeginner は*sql.DBをTxBeginnerに適合させるアダプタ。
type SQLTxBeginner struct {
	DB *sql.DB
}

// Begin は新しいトランザクションを開始する。
func (b SQLTxBeginner) Begin(ctx context.Context) (Tx, error) {
	return b.DB.BeginTx(ctx, nil)
}

// Enqueuer は取り込み済みアイテムをエンリッチメントパイプラインに渡すインターフェース。
// キューが満杯の場合はfalseを返す。その場合アイテムは保存済みのまま残り、
// 次回チェックでの再処理は行われない（重複排除によりスキップされる）ため、
// 呼び出し側はエンキュー失敗をログに記録する。
type Enqueuer interface {
	EnqueueRetrieval(item *model.Item, sessionKey string) bool
}

// Result は1回の取り込みの結果サマリ。
type Result struct {
	Inserted int // 新規に保存されたアイテム数
	Skipped  int // 既知のため重複排除されたアイテム数
	Dropped  int // 必須フィールド欠落により破棄されたアイテム数

	// Latest は取り込んだアイテムのうち最も新しい公開日時とそのExternalID。
	// ウォーターマーク更新に使用した値を返す。新規挿入がない場合はnil。
	LatestAt         *time.Time
	LatestExternalID string
}

// Ingestor はフェッチ結果をアイテムとして取り込むサービス。
// アイテムの挿入とウォーターマーク更新は単一トランザクションで行う。
type Ingestor struct {
	db         TxBeginner
	itemRepo   repository.ItemRepository
	sourceRepo repository.SourceRepository
	sanitizer  security.CaptionSanitizerService
	enqueuer   Enqueuer
	logger     *slog.Logger
}

// NewIngestor はIngestorの新しいインスタンスを生成する。
func NewIngestor(
	db TxBeginner,
	itemRepo repository.ItemRepository,
	sourceRepo repository.SourceRepository,
	sanitizer security.CaptionSanitizerService,
	enqueuer Enqueuer,
	logger *slog.Logger,
) *Ingestor {
	return &Ingestor{
		db:         db,
		itemRepo:   itemRepo,
		sourceRepo: sourceRepo,
		sanitizer:  sanitizer,
		enqueuer:   enqueuer,
		logger:     logger,
	}
}

// Ingest はフェッチ結果をソースのアイテムとして取り込む。
// 必須フィールドが欠けたアイテムは破棄し、既知のアイテムはスキップする。
// 新規アイテムの挿入・ウォーターマーク・カウンタ更新は同一トランザクションで
// コミットし、コミット後に新規アイテムをパイプラインへエンキューする。
// sessionKeyは同一チェック実行内のスコアリング予算を共有するためのキー。
func (s *Ingestor) Ingest(ctx context.Context, source *model.Source, rawItems []model.RawItem, sessionKey string) (*Result, error) {
	result := &Result{}

	accepted := make([]*model.Item, 0, len(rawItems))
	for _, raw := range rawItems {
		if raw.ExternalID == "" || raw.URL == "" || raw.MediaURL == "" {
			result.Dropped++
			s.logger.Warn("必須フィールドが欠けたアイテムを破棄します",
				slog.String("source_id", source.ID),
				slog.String("external_id", raw.ExternalID),
				slog.String("url", raw.URL),
			)
			continue
		}

		item := s.buildItem(source, raw)
		accepted = append(accepted, item)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("取り込みトランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	inserted := make([]*model.Item, 0, len(accepted))
	for _, item := range accepted {
		ok, err := s.itemRepo.InsertNew(ctx, tx, item)
		if err != nil {
			return nil, fmt.Errorf("アイテムの挿入に失敗しました: %w", err)
		}
		if !ok {
			result.Skipped++
			continue
		}
		result.Inserted++
		inserted = append(inserted, item)
		s.trackLatest(result, item)
	}

	if result.Inserted > 0 {
		if result.LatestAt != nil {
			if err := s.sourceRepo.UpdateWatermark(ctx, tx, source.ID, *result.LatestAt, result.LatestExternalID); err != nil {
				return nil, fmt.Errorf("ウォーターマークの更新に失敗しました: %w", err)
			}
		}
		if err := s.sourceRepo.AddItemCounts(ctx, tx, source.ID, result.Inserted); err != nil {
			return nil, fmt.Errorf("アイテムカウンタの更新に失敗しました: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("取り込みトランザクションのコミットに失敗しました: %w", err)
	}

	for _, item := range inserted {
		if !s.enqueuer.EnqueueRetrieval(item, sessionKey) {
			s.logger.Warn("パイプラインキューが満杯のためエンキューをスキップします",
				slog.String("item_id", item.ID),
			)
		}
	}

	s.logger.Info("取り込みが完了しました",
		slog.String("source_id", source.ID),
		slog.Int("inserted", result.Inserted),
		slog.Int("skipped", result.Skipped),
		slog.Int("dropped", result.Dropped),
	)

	return result, nil
}

// buildItem はRawItemから未保存のItemを構築する。
// キャプションのサニタイズとバイラル判定をここで行う。
func (s *Ingestor) buildItem(source *model.Source, raw model.RawItem) *model.Item {
	now := time.Now()
	return &model.Item{
		ID:               uuid.New().String(),
		SourceID:         source.ID,
		UserID:           source.UserID,
		ExternalID:       raw.ExternalID,
		Caption:          s.sanitizer.Sanitize(raw.Caption),
		URL:              raw.URL,
		MediaURL:         raw.MediaURL,
		ThumbnailURL:     raw.ThumbnailURL,
		PlayCount:        raw.PlayCount,
		LikeCount:        raw.LikeCount,
		CommentCount:     raw.CommentCount,
		PublishedAt:      raw.PublishedAt,
		IsViral:          source.ViralThreshold > 0 && float64(raw.PlayCount) >= source.ViralThreshold,
		DownloadStatus:   model.DownloadStatusPending,
		TranscriptStatus: model.TranscriptStatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// trackLatest はウォーターマーク更新用に最新のアイテム位置を記録する。
func (s *Ingestor) trackLatest(result *Result, item *model.Item) {
	if item.PublishedAt == nil {
		return
	}
	if result.LatestAt == nil || item.PublishedAt.After(*result.LatestAt) {
		at := *item.PublishedAt
		result.LatestAt = &at
		result.LatestExternalID = item.ExternalID
	}
}
