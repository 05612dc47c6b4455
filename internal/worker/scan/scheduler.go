package scan

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hitoshi/mediawatch/internal/model"
	"github.com/hitoshi/mediawatch/internal/repository"
)

// Scheduler はソースチェックのスケジューリングと並列制御を行う。
// 固定間隔のティッカーでチェック対象ソースを取得し、
// semaphoreパターンで最大並列数を制御しながらチェックを実行する。
// 実行中フラグにより、前回のサイクルが終わる前のティックはキューイングせず
// スキップする。
type Scheduler struct {
	sourceRepo     repository.SourceRepository
	checker        SourceCheckerService
	logger         *slog.Logger
	maxConcurrency int
	running        atomic.Bool
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値2を使用する。
func NewScheduler(
	sourceRepo repository.SourceRepository,
	checker SourceCheckerService,
	logger *slog.Logger,
	maxConcurrency int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 2
	}
	return &Scheduler{
		sourceRepo:     sourceRepo,
		checker:        checker,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Start は固定間隔のティッカーでスケジューラを起動する。
// intervalが0以下の場合は自動ティックを行わず、手動チェックのみ受け付ける。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		s.logger.Info("自動チェックは無効です。手動チェックのみ受け付けます")
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("スキャンスケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("スキャンサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("スキャンスケジューラを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("スキャンサイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce はチェック対象ソースを1回取得し、並列でチェックを実行する。
// 前回のサイクルが実行中の場合は何もせずスキップする。
// 個別ソースのチェック失敗はログに記録するのみで、サイクル全体を中断しない。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("前回のスキャンサイクルが実行中のためスキップします")
		return nil
	}
	defer s.running.Store(false)

	start := time.Now()

	// チェック対象ソースを取得
	sources, err := s.sourceRepo.ListDueForCheck(ctx)
	if err != nil {
		return err
	}

	if len(sources) == 0 {
		s.logger.Info("チェック対象のソースはありません")
		return nil
	}

	s.logger.Info("スキャンサイクルを開始します",
		slog.Int("source_count", len(sources)),
	)

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, source := range sources {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(src *model.Source) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			if err := s.checker.Check(ctx, src); err != nil {
				s.logger.Error("ソースチェックに失敗しました",
					slog.String("source_id", src.ID),
					slog.String("handle", src.Handle),
					slog.String("error", err.Error()),
				)
			}
		}(source)
	}

	wg.Wait()

	duration := time.Since(start)
	s.logger.Info("スキャンサイクルが完了しました",
		slog.Int("source_count", len(sources)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
