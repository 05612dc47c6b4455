package handler

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/mediawatch/internal/pipeline"
)

// PipelineStatsProvider はパイプラインの観測用スナップショットを返すインターフェース。
type PipelineStatsProvider interface {
	Stats() pipeline.StageStats
}

// PipelineHandler はパイプライン観測のHTTPハンドラー。
type PipelineHandler struct {
	stats PipelineStatsProvider
}

// NewPipelineHandler はPipelineHandlerを生成する。
func NewPipelineHandler(stats PipelineStatsProvider) *PipelineHandler {
	return &PipelineHandler{stats: stats}
}

// GetStats は全ステージのキュー待ち数と実行中数を返す。
// GET /api/pipeline/stats
func (h *PipelineHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.stats.Stats())
}
