package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/mediawatch/internal/model"
	"github.com/hitoshi/mediawatch/internal/repository"
)

// FeedbackServiceInterface はフィードバックハンドラーが必要とするサービスインターフェース。
// 各操作のポリシー永続化エラーはサービス内で処理され、操作自体は成功として扱われる。
type FeedbackServiceInterface interface {
	Approve(ctx context.Context, userID string, itemScore float64)
	Reject(ctx context.Context, userID, category, reason, topic string)
	Revise(ctx context.Context, userID, notes string)
	GetInstructions(ctx context.Context, userID string) ([]string, error)
}

// FeedbackHandler はスコア済みアイテムへのフィードバックのHTTPハンドラー。
type FeedbackHandler struct {
	service  FeedbackServiceInterface
	itemRepo repository.ItemRepository
}

// NewFeedbackHandler はFeedbackHandlerを生成する。
func NewFeedbackHandler(service FeedbackServiceInterface, itemRepo repository.ItemRepository) *FeedbackHandler {
	return &FeedbackHandler{
		service:  service,
		itemRepo: itemRepo,
	}
}

// rejectRequest は却下リクエストのボディ。
type rejectRequest struct {
	Category string `json:"category"`
	Reason   string `json:"reason,omitempty"`
	Topic    string `json:"topic,omitempty"`
}

// reviseRequest は修正リクエストのボディ。
type reviseRequest struct {
	Notes string `json:"notes"`
}

// instructionsResponse は学習済み指示のレスポンス。
type instructionsResponse struct {
	Instructions []string `json:"instructions"`
}

// loadScoredItem はフィードバック対象のアイテムを取得して検証する。
func (h *FeedbackHandler) loadScoredItem(w http.ResponseWriter, r *http.Request) (*model.Item, bool) {
	itemID := chi.URLParam(r, "itemID")

	item, err := h.itemRepo.FindByID(r.Context(), itemID)
	if err != nil {
		handleServiceError(w, err)
		return nil, false
	}
	if item == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewItemNotFoundError(itemID))
		return nil, false
	}
	if !item.Scored() {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidFeedbackError("スコアリングされていないアイテムにはフィードバックできません"))
		return nil, false
	}
	return item, true
}

// Approve はアイテム承認シグナルを処理する。
// POST /api/items/{itemID}/approve
func (h *FeedbackHandler) Approve(w http.ResponseWriter, r *http.Request) {
	item, ok := h.loadScoredItem(w, r)
	if !ok {
		return
	}

	h.service.Approve(r.Context(), item.UserID, *item.AIScore)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "approved"})
}

// Reject はアイテム却下シグナルを処理する。
// POST /api/items/{itemID}/reject
func (h *FeedbackHandler) Reject(w http.ResponseWriter, r *http.Request) {
	item, ok := h.loadScoredItem(w, r)
	if !ok {
		return
	}

	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidFeedbackError("リクエストボディの形式が不正です"))
		return
	}
	if req.Category == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidFeedbackError("却下カテゴリが指定されていません"))
		return
	}

	h.service.Reject(r.Context(), item.UserID, req.Category, req.Reason, req.Topic)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "rejected"})
}

// Revise はアイテム修正メモを処理する。
// POST /api/items/{itemID}/revise
func (h *FeedbackHandler) Revise(w http.ResponseWriter, r *http.Request) {
	item, ok := h.loadScoredItem(w, r)
	if !ok {
		return
	}

	var req reviseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidFeedbackError("リクエストボディの形式が不正です"))
		return
	}
	if req.Notes == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidFeedbackError("修正メモが指定されていません"))
		return
	}

	h.service.Revise(r.Context(), item.UserID, req.Notes)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "revised"})
}

// GetInstructions は学習済み却下パターンの指示テキストを取得する。
// GET /api/users/{userID}/instructions
func (h *FeedbackHandler) GetInstructions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	instructions, err := h.service.GetInstructions(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if instructions == nil {
		instructions = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(instructionsResponse{Instructions: instructions})
}
