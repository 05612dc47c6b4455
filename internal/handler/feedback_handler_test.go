package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/mediawatch/internal/model"
	"github.com/hitoshi/mediawatch/internal/repository"
)

type fakeFeedbackService struct {
	approvedUserID string
	approvedScore  float64
	rejectCategory string
	rejectTopic    string
	reviseNotes    string
	instructions   []string
	getErr         error
}

func (s *fakeFeedbackService) Approve(ctx context.Context, userID string, itemScore float64) {
	s.approvedUserID = userID
	s.approvedScore = itemScore
}

func (s *fakeFeedbackService) Reject(ctx context.Context, userID, category, reason, topic string) {
	s.rejectCategory = category
	s.rejectTopic = topic
}

func (s *fakeFeedbackService) Revise(ctx context.Context, userID, notes string) {
	s.reviseNotes = notes
}

func (s *fakeFeedbackService) GetInstructions(ctx context.Context, userID string) ([]string, error) {
	return s.instructions, s.getErr
}

// fakeFeedbackItemRepo はFindByIDのみ意味を持つテスト用リポジトリ。
type fakeFeedbackItemRepo struct {
	item *model.Item
}

func (r *fakeFeedbackItemRepo) FindByID(ctx context.Context, id string) (*model.Item, error) {
	return r.item, nil
}

func (r *fakeFeedbackItemRepo) InsertNew(ctx context.Context, ex repository.Executor, item *model.Item) (bool, error) {
	return false, nil
}

func (r *fakeFeedbackItemRepo) UpdateDownloadState(ctx context.Context, id string, status model.DownloadStatus, localPath, errMsg string) error {
	return nil
}

func (r *fakeFeedbackItemRepo) UpdateTranscript(ctx context.Context, id string, status model.TranscriptStatus, text, lang, errMsg string) error {
	return nil
}

func (r *fakeFeedbackItemRepo) UpdateScore(ctx context.Context, id string, overall, hook, content, trend float64, comment string) error {
	return nil
}

func (r *fakeFeedbackItemRepo) ListStaleMediaPaths(ctx context.Context, olderThan time.Time, limit int) ([]string, error) {
	return nil, nil
}

func (r *fakeFeedbackItemRepo) ClearMediaPaths(ctx context.Context, paths []string) error {
	return nil
}

func scoredItem() *model.Item {
	score := 82.0
	return &model.Item{
		ID:      "item-1",
		UserID:  "user-1",
		AIScore: &score,
	}
}

func newFeedbackRouter(service *fakeFeedbackService, repo *fakeFeedbackItemRepo) http.Handler {
	h := NewFeedbackHandler(service, repo)
	r := chi.NewRouter()
	r.Post("/api/items/{itemID}/approve", h.Approve)
	r.Post("/api/items/{itemID}/reject", h.Reject)
	r.Post("/api/items/{itemID}/revise", h.Revise)
	r.Get("/api/users/{userID}/instructions", h.GetInstructions)
	return r
}

func TestApprove_PassesScoreToService(t *testing.T) {
	service := &fakeFeedbackService{}
	router := newFeedbackRouter(service, &fakeFeedbackItemRepo{item: scoredItem()})

	req := httptest.NewRequest(http.MethodPost, "/api/items/item-1/approve", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	if service.approvedUserID != "user-1" {
		t.Errorf("承認ユーザー want user-1, got %s", service.approvedUserID)
	}
	if service.approvedScore != 82 {
		t.Errorf("承認スコア want 82, got %v", service.approvedScore)
	}
}

func TestApprove_ItemNotFound(t *testing.T) {
	router := newFeedbackRouter(&fakeFeedbackService{}, &fakeFeedbackItemRepo{item: nil})

	req := httptest.NewRequest(http.MethodPost, "/api/items/missing/approve", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("存在しないアイテムは404を返すべき, got %d", rec.Code)
	}
}

func TestApprove_UnscoredItemRejected(t *testing.T) {
	item := scoredItem()
	item.AIScore = nil
	router := newFeedbackRouter(&fakeFeedbackService{}, &fakeFeedbackItemRepo{item: item})

	req := httptest.NewRequest(http.MethodPost, "/api/items/item-1/approve", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("未スコアのアイテムへのフィードバックは400を返すべき, got %d", rec.Code)
	}
}

func TestReject_RequiresCategory(t *testing.T) {
	router := newFeedbackRouter(&fakeFeedbackService{}, &fakeFeedbackItemRepo{item: scoredItem()})

	req := httptest.NewRequest(http.MethodPost, "/api/items/item-1/reject", strings.NewReader(`{"reason":"r"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("カテゴリなしの却下は400を返すべき, got %d", rec.Code)
	}
}

func TestReject_PassesCategoryAndTopic(t *testing.T) {
	service := &fakeFeedbackService{}
	router := newFeedbackRouter(service, &fakeFeedbackItemRepo{item: scoredItem()})

	body := `{"category":"boring_topic","reason":"飽きた","topic":"料理vlog"}`
	req := httptest.NewRequest(http.MethodPost, "/api/items/item-1/reject", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	if service.rejectCategory != "boring_topic" {
		t.Errorf("カテゴリ want boring_topic, got %s", service.rejectCategory)
	}
	if service.rejectTopic != "料理vlog" {
		t.Errorf("トピック want 料理vlog, got %s", service.rejectTopic)
	}
}

func TestRevise_RequiresNotes(t *testing.T) {
	router := newFeedbackRouter(&fakeFeedbackService{}, &fakeFeedbackItemRepo{item: scoredItem()})

	req := httptest.NewRequest(http.MethodPost, "/api/items/item-1/revise", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("メモなしの修正は400を返すべき, got %d", rec.Code)
	}
}

func TestGetInstructions_EmptyIsJSONArray(t *testing.T) {
	router := newFeedbackRouter(&fakeFeedbackService{instructions: nil}, &fakeFeedbackItemRepo{})

	req := httptest.NewRequest(http.MethodGet, "/api/users/user-1/instructions", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"instructions":[]`) {
		t.Errorf("指示なしでも空配列を返すべき, got %s", rec.Body.String())
	}
}

func TestGetInstructions_ReturnsList(t *testing.T) {
	service := &fakeFeedbackService{instructions: []string{"長尺を避ける"}}
	router := newFeedbackRouter(service, &fakeFeedbackItemRepo{})

	req := httptest.NewRequest(http.MethodGet, "/api/users/user-1/instructions", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp instructionsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	if len(resp.Instructions) != 1 || resp.Instructions[0] != "長尺を避ける" {
		t.Errorf("指示リスト want [長尺を避ける], got %v", resp.Instructions)
	}
}
