// Package pipeline はアイテムのエンリッチメント（メディア取得→文字起こし→スコアリング）を
// 行う段階別の有界キューを提供する。各ステージは独立した同時実行上限と
// タスク間ディレイを持ち、ステージの失敗は他のタスクや呼び出し元に伝播しない。
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hitoshi/mediawatch/internal/metrics"
)

// Task はステージで実行される作業単位。プロセスメモリにのみ存在し、
// クラッシュ時には失われる（アイテム自体は永続化済みのため再取り込みで復元可能）。
type Task struct {
	ID      string
	Execute func(ctx context.Context) error
}

// Stats はステージの観測用スナップショット。
type Stats struct {
	Queued int `json:"queued"`
	Active int `json:"active"`
}

// StageQueue は1ステージ分の有界FIFOキューとディスパッチワーカー群。
// Addは非ブロッキングで、キューが満杯の場合はfalseを返す。
type StageQueue struct {
	name      string
	tasks     chan Task
	limit     int
	delay     time.Duration
	active    atomic.Int64
	logger    *slog.Logger
	collector metrics.MetricsCollector
	sleep     func(ctx context.Context, d time.Duration)
	wg        sync.WaitGroup
}

// QueueOption はStageQueueの挙動を調整するオプション。
type QueueOption func(*StageQueue)

// WithQueueSleep はディレイの待機処理を差し替える。テスト用。
func WithQueueSleep(sleep func(ctx context.Context, d time.Duration)) QueueOption {
	return func(q *StageQueue) {
		q.sleep = sleep
	}
}

// NewStageQueue はStageQueueの新しいインスタンスを生成する。
// nameはログとメトリクスのステージラベルに使用する。
func NewStageQueue(name string, size, limit int, delay time.Duration, logger *slog.Logger, collector metrics.MetricsCollector, opts ...QueueOption) *StageQueue {
	q := &StageQueue{
		name:      name,
		tasks:     make(chan Task, size),
		limit:     limit,
		delay:     delay,
		logger:    logger,
		collector: collector,
		sleep:     sleepCtx,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Start はディスパッチワーカーを起動する。ctxのキャンセルで全ワーカーが停止する。
func (q *StageQueue) Start(ctx context.Context) {
	for i := 0; i < q.limit; i++ {
		q.wg.Add(1)
		go q.dispatchLoop(ctx)
	}
}

// Wait は全ワーカーの停止を待つ。Startの後、ctxキャンセル後に呼び出す。
func (q *StageQueue) Wait() {
	q.wg.Wait()
}

// Add はタスクをキューに追加する。キューが満杯の場合はfalseを返す。
func (q *StageQueue) Add(id string, execute func(ctx context.Context) error) bool {
	select {
	case q.tasks <- Task{ID: id, Execute: execute}:
		q.collector.SetStageQueued(q.name, len(q.tasks))
		return true
	default:
		q.logger.Warn("ステージキューが満杯です",
			slog.String("stage", q.name),
			slog.String("task_id", id),
		)
		return false
	}
}

// Stats は現在のキュー待ち数と実行中数を返す。
func (q *StageQueue) Stats() Stats {
	return Stats{
		Queued: len(q.tasks),
		Active: int(q.active.Load()),
	}
}

// dispatchLoop はタスクを1件ずつ取り出して実行するワーカーループ。
// タスクの失敗はログに記録するのみで、ループは継続する。
// 各タスクの完了後（成否問わず）、外部サービスへのバーストを抑えるため
// 固定のディレイを待ってから次のタスクを取り出す。
func (q *StageQueue) dispatchLoop(ctx context.Context) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case task := <-q.tasks:
			q.runTask(ctx, task)

			select {
			case <-ctx.Done():
				return
			default:
			}
			q.sleep(ctx, q.delay)
		}
	}
}

// runTask は1タスクを実行し、状態メトリクスを更新する。
func (q *StageQueue) runTask(ctx context.Context, task Task) {
	q.active.Add(1)
	q.collector.SetStageActive(q.name, int(q.active.Load()))
	q.collector.SetStageQueued(q.name, len(q.tasks))
	defer func() {
		q.active.Add(-1)
		q.collector.SetStageActive(q.name, int(q.active.Load()))
	}()

	q.collector.RecordStageTask(q.name)

	if err := task.Execute(ctx); err != nil {
		q.collector.RecordStageFailure(q.name)
		q.logger.Error("ステージタスクの実行に失敗しました",
			slog.String("stage", q.name),
			slog.String("task_id", task.ID),
			slog.String("error", err.Error()),
		)
	}
}

// sleepCtx はctxのキャンセルを尊重してdだけ待機する。
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
