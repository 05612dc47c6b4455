// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ワーカーやパイプラインから利用する。
type MetricsCollector interface {
	RecordCheckSuccess(sourceID string)
	RecordCheckFailure(sourceID string, reason string)
	RecordCheckLatency(duration time.Duration)
	RecordItemsIngested(count int)
	RecordItemsSkipped(count int)
	RecordItemsDropped(count int)
	RecordStageTask(stage string)
	RecordStageFailure(stage string)
	RecordScoringSkip()
	SetStageQueued(stage string, n int)
	SetStageActive(stage string, n int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	checkSuccess  prometheus.Counter
	checkFail     *prometheus.CounterVec
	checkLatency  prometheus.Histogram
	itemsIngested prometheus.Counter
	itemsSkipped  prometheus.Counter
	itemsDropped  prometheus.Counter
	stageTasks    *prometheus.CounterVec
	stageFailures *prometheus.CounterVec
	scoringSkips  prometheus.Counter
	stageQueued   *prometheus.GaugeVec
	stageActive   *prometheus.GaugeVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		checkSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediawatch_check_success_total",
			Help: "ソースチェック成功の合計数",
		}),
		checkFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediawatch_check_fail_total",
			Help: "ソースチェック失敗の合計数（理由別）",
		}, []string{"reason"}),
		checkLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mediawatch_check_latency_seconds",
			Help:    "ソースチェックのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		itemsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediawatch_items_ingested_total",
			Help: "新規取り込みアイテムの合計数",
		}),
		itemsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediawatch_items_skipped_total",
			Help: "重複によりスキップされたアイテムの合計数",
		}),
		itemsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediawatch_items_dropped_total",
			Help: "必須フィールド欠落により破棄されたアイテムの合計数",
		}),
		stageTasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediawatch_stage_tasks_total",
			Help: "ステージ別の処理タスクの合計数",
		}, []string{"stage"}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediawatch_stage_failures_total",
			Help: "ステージ別の処理失敗の合計数",
		}, []string{"stage"}),
		scoringSkips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediawatch_scoring_skips_total",
			Help: "セッション予算超過によるスコアリングスキップの合計数",
		}),
		stageQueued: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mediawatch_stage_queued",
			Help: "ステージ別のキュー待ちタスク数",
		}, []string{"stage"}),
		stageActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mediawatch_stage_active",
			Help: "ステージ別の実行中タスク数",
		}, []string{"stage"}),
	}

	reg.MustRegister(
		c.checkSuccess,
		c.checkFail,
		c.checkLatency,
		c.itemsIngested,
		c.itemsSkipped,
		c.itemsDropped,
		c.stageTasks,
		c.stageFailures,
		c.scoringSkips,
		c.stageQueued,
		c.stageActive,
	)

	return c
}

// RecordCheckSuccess はソースチェック成功を記録する。
func (c *Collector) RecordCheckSuccess(sourceID string) {
	c.checkSuccess.Inc()
}

// RecordCheckFailure はソースチェック失敗を記録する。
func (c *Collector) RecordCheckFailure(sourceID string, reason string) {
	c.checkFail.WithLabelValues(reason).Inc()
}

// RecordCheckLatency はソースチェックのレイテンシを記録する。
func (c *Collector) RecordCheckLatency(duration time.Duration) {
	c.checkLatency.Observe(duration.Seconds())
}

// RecordItemsIngested は新規取り込みアイテム数を記録する。
func (c *Collector) RecordItemsIngested(count int) {
	c.itemsIngested.Add(float64(count))
}

// RecordItemsSkipped はスキップされたアイテム数を記録する。
func (c *Collector) RecordItemsSkipped(count int) {
	c.itemsSkipped.Add(float64(count))
}

// RecordItemsDropped は破棄されたアイテム数を記録する。
func (c *Collector) RecordItemsDropped(count int) {
	c.itemsDropped.Add(float64(count))
}

// RecordStageTask はステージの処理タスクを記録する。
func (c *Collector) RecordStageTask(stage string) {
	c.stageTasks.WithLabelValues(stage).Inc()
}

// RecordStageFailure はステージの処理失敗を記録する。
func (c *Collector) RecordStageFailure(stage string) {
	c.stageFailures.WithLabelValues(stage).Inc()
}

// RecordScoringSkip はスコアリングスキップを記録する。
func (c *Collector) RecordScoringSkip() {
	c.scoringSkips.Inc()
}

// SetStageQueued はステージのキュー待ちタスク数を設定する。
func (c *Collector) SetStageQueued(stage string, n int) {
	c.stageQueued.WithLabelValues(stage).Set(float64(n))
}

// SetStageActive はステージの実行中タスク数を設定する。
func (c *Collector) SetStageActive(stage string, n int) {
	c.stageActive.WithLabelValues(stage).Set(float64(n))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
