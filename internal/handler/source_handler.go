// Package handler はHTTP APIのハンドラーとルーティングを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/mediawatch/internal/model"
	"github.com/hitoshi/mediawatch/internal/registry"
)

// checkTimeout は手動チェックのバックグラウンド実行のタイムアウト。
const checkTimeout = 5 * time.Minute

// SourceServiceInterface はソースハンドラーが必要とするサービスインターフェース。
type SourceServiceInterface interface {
	// Register は新しい監視ソースを登録する。
	Register(ctx context.Context, input registry.RegisterInput) (*model.Source, error)
	// Get はソース詳細を返す。
	Get(ctx context.Context, sourceID string) (*model.Source, error)
	// UpdateMonitoring は監視設定を部分更新する。
	UpdateMonitoring(ctx context.Context, sourceID string, enabled *bool, intervalHours *int) (*model.Source, error)
}

// CheckerInterface は手動チェック（check now）の実行インターフェース。
type CheckerInterface interface {
	// CheckByID はIDでソースを検索してチェックを実行する。
	CheckByID(ctx context.Context, sourceID string) error
}

// SourceHandler はソース管理のHTTPハンドラー。
type SourceHandler struct {
	service SourceServiceInterface
	checker CheckerInterface
	logger  *slog.Logger
}

// NewSourceHandler はSourceHandlerを生成する。
func NewSourceHandler(service SourceServiceInterface, checker CheckerInterface, logger *slog.Logger) *SourceHandler {
	return &SourceHandler{
		service: service,
		checker: checker,
		logger:  logger,
	}
}

// --- リクエスト/レスポンス型 ---

// registerSourceRequest はソース登録リクエストのボディ。
type registerSourceRequest struct {
	UserID             string  `json:"user_id"`
	Handle             string  `json:"handle"`
	Kind               string  `json:"kind"`
	CheckIntervalHours int     `json:"check_interval_hours,omitempty"`
	ViralThreshold     float64 `json:"viral_threshold,omitempty"`
	NotifyOnNew        bool    `json:"notify_on_new,omitempty"`
	NotifyViralOnly    bool    `json:"notify_viral_only,omitempty"`
}

// monitoringRequest は監視設定更新リクエストのボディ。nilフィールドは変更しない。
type monitoringRequest struct {
	AutoCheckEnabled   *bool `json:"auto_check_enabled,omitempty"`
	CheckIntervalHours *int  `json:"check_interval_hours,omitempty"`
}

// sourceResponse はソース詳細のレスポンス。
type sourceResponse struct {
	ID                    string     `json:"id"`
	UserID                string     `json:"user_id"`
	Handle                string     `json:"handle"`
	Kind                  string     `json:"kind"`
	AutoCheckEnabled      bool       `json:"auto_check_enabled"`
	CheckIntervalHours    int        `json:"check_interval_hours"`
	LastCheckedAt         *time.Time `json:"last_checked_at,omitempty"`
	NextCheckAt           *time.Time `json:"next_check_at,omitempty"`
	LastSuccessfulCheckAt *time.Time `json:"last_successful_check_at,omitempty"`
	TotalChecks           int        `json:"total_checks"`
	FailedChecks          int        `json:"failed_checks"`
	ItemCount             int        `json:"item_count"`
	NewFound              int        `json:"new_found"`
	ParseStatus           string     `json:"parse_status"`
	ParseError            string     `json:"parse_error,omitempty"`
	ViralThreshold        float64    `json:"viral_threshold"`
}

// toSourceResponse はmodel.Sourceからレスポンス型に変換する。
func toSourceResponse(source *model.Source) sourceResponse {
	return sourceResponse{
		ID:                    source.ID,
		UserID:                source.UserID,
		Handle:                source.Handle,
		Kind:                  string(source.Kind),
		AutoCheckEnabled:      source.AutoCheckEnabled,
		CheckIntervalHours:    source.CheckIntervalHours,
		LastCheckedAt:         source.LastCheckedAt,
		NextCheckAt:           source.NextCheckAt,
		LastSuccessfulCheckAt: source.LastSuccessfulCheckAt,
		TotalChecks:           source.TotalChecks,
		FailedChecks:          source.FailedChecks,
		ItemCount:             source.ItemCount,
		NewFound:              source.NewFound,
		ParseStatus:           string(source.ParseStatus),
		ParseError:            source.ParseError,
		ViralThreshold:        source.ViralThreshold,
	}
}

// RegisterSource は新しい監視ソースを登録する。
// POST /api/sources
func (h *SourceHandler) RegisterSource(w http.ResponseWriter, r *http.Request) {
	var req registerSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidSourceError("リクエストボディの形式が不正です"))
		return
	}

	source, err := h.service.Register(r.Context(), registry.RegisterInput{
		UserID:             req.UserID,
		Handle:             req.Handle,
		Kind:               model.SourceKind(req.Kind),
		CheckIntervalHours: req.CheckIntervalHours,
		ViralThreshold:     req.ViralThreshold,
		NotifyOnNew:        req.NotifyOnNew,
		NotifyViralOnly:    req.NotifyViralOnly,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toSourceResponse(source))
}

// GetSource はソース詳細を取得する。
// GET /api/sources/{sourceID}
func (h *SourceHandler) GetSource(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "sourceID")

	source, err := h.service.Get(r.Context(), sourceID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toSourceResponse(source))
}

// UpdateMonitoring は監視設定を更新する。
// PUT /api/sources/{sourceID}/monitoring
func (h *SourceHandler) UpdateMonitoring(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "sourceID")

	var req monitoringRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidSourceError("リクエストボディの形式が不正です"))
		return
	}

	source, err := h.service.UpdateMonitoring(r.Context(), sourceID, req.AutoCheckEnabled, req.CheckIntervalHours)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toSourceResponse(source))
}

// CheckNow は手動チェックをバックグラウンドで開始する。
// チェックは自動チェックと同一のロジックを通り、結果はソースの状態から観測する。
// POST /api/sources/{sourceID}/check
func (h *SourceHandler) CheckNow(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "sourceID")

	// ソースの存在を同期的に確認してから202を返す
	if _, err := h.service.Get(r.Context(), sourceID); err != nil {
		handleServiceError(w, err)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
		defer cancel()

		if err := h.checker.CheckByID(ctx, sourceID); err != nil {
			h.logger.Error("手動チェックに失敗しました",
				slog.String("source_id", sourceID),
				slog.String("error", err.Error()),
			)
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"source_id": sourceID,
		"status":    "accepted",
	})
}

// --- エラーレスポンス ---

// apiErrorResponse はAPIエラーレスポンスのボディ。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// writeAPIErrorResponse は統一エラーフォーマットでレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeSourceNotFound, model.ErrCodeItemNotFound:
		return http.StatusNotFound
	case model.ErrCodeInvalidInterval, model.ErrCodeInvalidSource, model.ErrCodeInvalidFeedback:
		return http.StatusBadRequest
	case model.ErrCodeCheckDisabled:
		return http.StatusConflict
	case model.ErrCodeQueueFull:
		return http.StatusServiceUnavailable
	case model.ErrCodeInvalidTransition:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
