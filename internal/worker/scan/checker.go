// Package scan はソース監視のバックグラウンドチェック処理を提供する。
// スケジューラとチェッカーを含む。
package scan

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/mediawatch/internal/ingest"
	"github.com/hitoshi/mediawatch/internal/metrics"
	"github.com/hitoshi/mediawatch/internal/model"
	"github.com/hitoshi/mediawatch/internal/provider"
	"github.com/hitoshi/mediawatch/internal/repository"
	"github.com/hitoshi/mediawatch/internal/retry"
)

// SourceCheckerService はソースチェックの実行インターフェース。
type SourceCheckerService interface {
	// Check は指定ソースのライトチェックを実行し、結果に応じてソース状態を更新する。
	Check(ctx context.Context, source *model.Source) error
}

// IngestService はフェッチ結果の取り込みインターフェース。
type IngestService interface {
	Ingest(ctx context.Context, source *model.Source, rawItems []model.RawItem, sessionKey string) (*ingest.Result, error)
}

// Checker は個別ソースのライトチェックを実行する。
// 資格情報の解決、リトライ付きフェッチ、取り込み、ソース状態の更新を行う。
// 自動チェックと手動チェック（check now）は同一のチェックロジックを共有する。
type Checker struct {
	sourceRepo repository.SourceRepository
	fetchers   map[model.SourceKind]provider.Fetcher
	credStore  provider.CredentialStore
	ingestor   IngestService
	logger     *slog.Logger
	collector  metrics.MetricsCollector

	credProvider    string // accountソースの資格情報検索に使うプロバイダ名
	lightCheckLimit int    // ライトチェックで取得する最新アイテム数
	defaultInterval int    // チェック間隔が未設定のソースに使う時間数

	now       func() time.Time
	retryOpts []retry.Option // テストで待機を差し替えるためのフック
}

// NewChecker はCheckerの新しいインスタンスを生成する。
func NewChecker(
	sourceRepo repository.SourceRepository,
	fetchers map[model.SourceKind]provider.Fetcher,
	credStore provider.CredentialStore,
	ingestor IngestService,
	logger *slog.Logger,
	collector metrics.MetricsCollector,
	credProvider string,
	lightCheckLimit int,
	defaultInterval int,
) *Checker {
	return &Checker{
		sourceRepo:      sourceRepo,
		fetchers:        fetchers,
		credStore:       credStore,
		ingestor:        ingestor,
		logger:          logger,
		collector:       collector,
		credProvider:    credProvider,
		lightCheckLimit: lightCheckLimit,
		defaultInterval: defaultInterval,
		now:             time.Now,
	}
}

// Check はソースのライトチェックを実行する。
// 資格情報が未設定の場合はソフト失敗として倍のバックオフを適用し、
// エラーを呼び出し元に返さない。リトライ後も失敗するフェッチはハード失敗として
// 同じバックオフを適用する。成功時はフェッチ結果を取り込み、次回チェック時刻を
// 通常間隔で設定する。
func (c *Checker) Check(ctx context.Context, source *model.Source) error {
	start := c.now()

	// 資格情報はMarkCheckingより先に解決する。ソフト失敗はparse_statusに
	// 触れない契約のため、先にparsingへ遷移させるとステータスが取り残される。
	cred, err := c.resolveCredential(ctx, source)
	if err != nil {
		c.markHardFailure(ctx, source, err.Error())
		return fmt.Errorf("資格情報の検索に失敗しました: %w", err)
	}
	if source.Kind == model.SourceKindAccount && cred == nil {
		// 資格情報未設定はソフト失敗: カウンタと倍バックオフのみ適用し、
		// parse_status/parse_errorには触れない
		c.logger.Warn("資格情報が未設定のためチェックをスキップします",
			slog.String("source_id", source.ID),
			slog.String("provider", c.credProvider),
		)
		c.collector.RecordCheckFailure(source.ID, "missing_credential")
		if err := c.sourceRepo.MarkCheckSoftFailure(ctx, source.ID, c.backoffNext(source)); err != nil {
			c.logger.Error("ソフト失敗の記録に失敗しました",
				slog.String("source_id", source.ID),
				slog.String("error", err.Error()),
			)
		}
		return nil
	}

	if err := c.sourceRepo.MarkChecking(ctx, source.ID); err != nil {
		return fmt.Errorf("チェック開始の記録に失敗しました: %w", err)
	}

	fetcher, ok := c.fetchers[source.Kind]
	if !ok {
		reason := fmt.Sprintf("未対応のソース種別です: %s", source.Kind)
		c.markHardFailure(ctx, source, reason)
		return fmt.Errorf("未対応のソース種別です: %s", source.Kind)
	}

	var rawItems []model.RawItem
	err = retry.Do(ctx, c.logger, "fetch_latest", func(ctx context.Context) error {
		items, fetchErr := fetcher.FetchLatest(ctx, cred, source.Handle, c.lightCheckLimit)
		if fetchErr != nil {
			return fetchErr
		}
		rawItems = items
		return nil
	}, c.retryOpts...)
	if err != nil {
		c.logger.Error("ソースのフェッチに失敗しました",
			slog.String("source_id", source.ID),
			slog.String("handle", source.Handle),
			slog.String("error", err.Error()),
		)
		c.collector.RecordCheckFailure(source.ID, "fetch_error")
		c.markHardFailure(ctx, source, err.Error())
		return fmt.Errorf("ソースのフェッチに失敗しました: %w", err)
	}

	sessionKey := "check:" + uuid.New().String()
	result, err := c.ingestor.Ingest(ctx, source, rawItems, sessionKey)
	if err != nil {
		c.collector.RecordCheckFailure(source.ID, "ingest_error")
		c.markHardFailure(ctx, source, err.Error())
		return fmt.Errorf("フェッチ結果の取り込みに失敗しました: %w", err)
	}

	if err := c.sourceRepo.MarkCheckSuccess(ctx, source.ID, c.successNext(source)); err != nil {
		return fmt.Errorf("チェック成功の記録に失敗しました: %w", err)
	}

	duration := c.now().Sub(start)
	c.collector.RecordCheckSuccess(source.ID)
	c.collector.RecordCheckLatency(duration)
	c.collector.RecordItemsIngested(result.Inserted)
	c.collector.RecordItemsSkipped(result.Skipped)
	c.collector.RecordItemsDropped(result.Dropped)

	c.logger.Info("ソースチェックが完了しました",
		slog.String("source_id", source.ID),
		slog.String("handle", source.Handle),
		slog.Int("inserted", result.Inserted),
		slog.Int("skipped", result.Skipped),
		slog.Int("dropped", result.Dropped),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// CheckByID はIDでソースを検索してチェックを実行する。
// check nowエンドポイントから使用され、自動チェックと同一のロジックを通る。
func (c *Checker) CheckByID(ctx context.Context, sourceID string) error {
	source, err := c.sourceRepo.FindByID(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("ソースの取得に失敗しました: %w", err)
	}
	if source == nil {
		return model.NewSourceNotFoundError(sourceID)
	}
	return c.Check(ctx, source)
}

// resolveCredential はソース種別に応じて資格情報を解決する。
// フィードソースは資格情報を必要としない。
func (c *Checker) resolveCredential(ctx context.Context, source *model.Source) (*provider.Credential, error) {
	if source.Kind != model.SourceKindAccount {
		return nil, nil
	}
	return c.credStore.GetCredential(ctx, source.UserID, c.credProvider)
}

// markHardFailure はハード失敗を記録する。倍のバックオフを適用する。
// 記録自体の失敗はログに残すのみで、チェックのエラーを上書きしない。
func (c *Checker) markHardFailure(ctx context.Context, source *model.Source, reason string) {
	if err := c.sourceRepo.MarkCheckFailure(ctx, source.ID, c.backoffNext(source), reason); err != nil {
		c.logger.Error("チェック失敗の記録に失敗しました",
			slog.String("source_id", source.ID),
			slog.String("error", err.Error()),
		)
	}
}

// intervalHours はソースのチェック間隔を返す。未設定の場合はデフォルト値を使う。
func (c *Checker) intervalHours(source *model.Source) int {
	if source.CheckIntervalHours >= 1 {
		return source.CheckIntervalHours
	}
	return c.defaultInterval
}

// successNext は成功時の次回チェック時刻を返す。
func (c *Checker) successNext(source *model.Source) time.Time {
	return c.now().Add(time.Duration(c.intervalHours(source)) * time.Hour)
}

// backoffNext は失敗時の次回チェック時刻を返す。通常間隔の2倍を適用する。
func (c *Checker) backoffNext(source *model.Source) time.Time {
	return c.now().Add(time.Duration(2*c.intervalHours(source)) * time.Hour)
}
