package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// nopCollector はテスト用のメトリクスコレクタ。スコアリングスキップのみ数える。
type nopCollector struct {
	scoringSkips atomic.Int64
}

func (c *nopCollector) RecordCheckSuccess(sourceID string)         {}
func (c *nopCollector) RecordCheckFailure(sourceID, reason string) {}
func (c *nopCollector) RecordCheckLatency(d time.Duration)         {}
func (c *nopCollector) RecordItemsIngested(count int)              {}
func (c *nopCollector) RecordItemsSkipped(count int)               {}
func (c *nopCollector) RecordItemsDropped(count int)               {}
func (c *nopCollector) RecordStageTask(stage string)               {}
func (c *nopCollector) RecordStageFailure(stage string)            {}
func (c *nopCollector) RecordScoringSkip()                         { c.scoringSkips.Add(1) }
func (c *nopCollector) SetStageQueued(stage string, n int)         {}
func (c *nopCollector) SetStageActive(stage string, n int)         {}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func noQueueSleep(ctx context.Context, d time.Duration) {}

func TestStageQueue_AddReturnsFalseWhenFull(t *testing.T) {
	q := NewStageQueue("test", 2, 1, 0, testLogger(), &nopCollector{}, WithQueueSleep(noQueueSleep))

	noop := func(ctx context.Context) error { return nil }
	if !q.Add("task-1", noop) {
		t.Fatal("空きがあるキューへの追加は成功すべき")
	}
	if !q.Add("task-2", noop) {
		t.Fatal("容量内の追加は成功すべき")
	}
	if q.Add("task-3", noop) {
		t.Error("満杯のキューへの追加はfalseを返すべき")
	}
}

func TestStageQueue_ConcurrencyLimit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewStageQueue("test", 16, 2, 0, testLogger(), &nopCollector{}, WithQueueSleep(noQueueSleep))

	var running atomic.Int64
	var peak atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		q.Add("task", func(ctx context.Context) error {
			defer wg.Done()
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			return nil
		})
	}

	q.Start(ctx)
	wg.Wait()

	if got := peak.Load(); got > 2 {
		t.Errorf("同時実行数は上限2を超えるべきでない, got %d", got)
	}
}

func TestStageQueue_FailureDoesNotHaltDispatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewStageQueue("test", 8, 1, 0, testLogger(), &nopCollector{}, WithQueueSleep(noQueueSleep))

	var wg sync.WaitGroup
	var succeeded atomic.Int64

	wg.Add(3)
	q.Add("failing", func(ctx context.Context) error {
		defer wg.Done()
		return errors.New("タスク失敗")
	})
	for i := 0; i < 2; i++ {
		q.Add("ok", func(ctx context.Context) error {
			defer wg.Done()
			succeeded.Add(1)
			return nil
		})
	}

	q.Start(ctx)
	wg.Wait()

	if got := succeeded.Load(); got != 2 {
		t.Errorf("先行タスクの失敗後も後続を実行すべき, got %d件成功", got)
	}
}

func TestStageQueue_StatsReflectQueuedTasks(t *testing.T) {
	q := NewStageQueue("test", 4, 1, 0, testLogger(), &nopCollector{}, WithQueueSleep(noQueueSleep))

	noop := func(ctx context.Context) error { return nil }
	q.Add("task-1", noop)
	q.Add("task-2", noop)

	stats := q.Stats()
	if stats.Queued != 2 {
		t.Errorf("キュー待ち数 want 2, got %d", stats.Queued)
	}
	if stats.Active != 0 {
		t.Errorf("未起動のキューの実行中数は0であるべき, got %d", stats.Active)
	}
}

func TestStageQueue_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	q := NewStageQueue("test", 4, 2, 0, testLogger(), &nopCollector{}, WithQueueSleep(noQueueSleep))
	q.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		q.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("キャンセル後1秒以内に全ワーカーが停止すべき")
	}
}
