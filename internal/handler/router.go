package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/mediawatch/internal/metrics"
	"github.com/hitoshi/mediawatch/internal/middleware"
	"github.com/hitoshi/mediawatch/internal/repository"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger      *slog.Logger
	RateLimiter *middleware.RateLimiter

	SourceService   SourceServiceInterface
	Checker         CheckerInterface
	FeedbackService FeedbackServiceInterface
	ItemRepo        repository.ItemRepository
	PipelineStats   PipelineStatsProvider

	MetricsGatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RecoveryMiddleware → LoggingMiddleware
//
// 手動チェック（POST /api/sources/{sourceID}/check）には専用のレート制限を追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	sourceHandler := NewSourceHandler(deps.SourceService, deps.Checker, deps.Logger)
	feedbackHandler := NewFeedbackHandler(deps.FeedbackService, deps.ItemRepo)
	pipelineHandler := NewPipelineHandler(deps.PipelineStats)

	// ヘルスチェックと監視
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler(deps.MetricsGatherer))

	// ソース管理
	r.Route("/api/sources", func(r chi.Router) {
		r.Post("/", sourceHandler.RegisterSource)

		r.Route("/{sourceID}", func(r chi.Router) {
			r.Get("/", sourceHandler.GetSource)
			r.Put("/monitoring", sourceHandler.UpdateMonitoring)

			// POST /api/sources/{sourceID}/check - 手動チェック（専用レート制限付き）
			r.With(deps.RateLimiter.CheckNowMiddleware()).Post("/check", sourceHandler.CheckNow)
		})
	})

	// フィードバック
	r.Route("/api/items/{itemID}", func(r chi.Router) {
		r.Post("/approve", feedbackHandler.Approve)
		r.Post("/reject", feedbackHandler.Reject)
		r.Post("/revise", feedbackHandler.Revise)
	})
	r.Get("/api/users/{userID}/instructions", feedbackHandler.GetInstructions)

	// パイプライン観測
	r.Get("/api/pipeline/stats", pipelineHandler.GetStats)

	return r
}
