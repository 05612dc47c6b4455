package repository

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/mediawatch/internal/model"
)

// fakeResult はRowsAffectedを返すsql.Result。
type fakeResult struct {
	rows int64
}

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.rows, nil }

// recordingExecutor は実行されたクエリを記録するExecutor。
// rowsAffectedで挿入有無を、errで実行エラーをシミュレートする。
type recordingExecutor struct {
	queries      []string
	rowsAffected int64
	err          error
}

func (e *recordingExecutor) ExecContext(_ context.Context, query string, _ ...interface{}) (sql.Result, error) {
	e.queries = append(e.queries, query)
	if e.err != nil {
		return nil, e.err
	}
	return fakeResult{rows: e.rowsAffected}, nil
}

func insertTestItem() *model.Item {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &model.Item{
		ID:               "item-1",
		SourceID:         "src-1",
		UserID:           "user-1",
		ExternalID:       "ext-1",
		Caption:          "テスト",
		URL:              "https://media.example/p/1",
		MediaURL:         "https://cdn.example/1.mp4",
		DownloadStatus:   model.DownloadStatusPending,
		TranscriptStatus: model.TranscriptStatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestPostgresItemRepo_InsertNew(t *testing.T) {
	repo := NewPostgresItemRepo(nil)
	ex := &recordingExecutor{rowsAffected: 1}

	inserted, err := repo.InsertNew(context.Background(), ex, insertTestItem())
	if err != nil {
		t.Fatalf("want nil, got %v", err)
	}
	if !inserted {
		t.Error("新規アイテムは inserted=true を返すべき")
	}
}

func TestPostgresItemRepo_InsertNew_Duplicate(t *testing.T) {
	repo := NewPostgresItemRepo(nil)
	// ON CONFLICT DO NOTHINGにより重複はエラーにならず影響行数0となる
	ex := &recordingExecutor{rowsAffected: 0}

	inserted, err := repo.InsertNew(context.Background(), ex, insertTestItem())
	if err != nil {
		t.Fatalf("既知アイテムはエラーを返すべきでない, got %v", err)
	}
	if inserted {
		t.Error("既知アイテムは inserted=false を返すべき")
	}
}

// 重複検知を一意制約違反エラーに頼ると、トランザクション内では
// 最初の重複以降の全ステートメントがabortで失敗する。
// 挿入文自体がON CONFLICT DO NOTHINGでエラーを発生させないことを確認する。
func TestPostgresItemRepo_InsertNew_UsesOnConflict(t *testing.T) {
	repo := NewPostgresItemRepo(nil)
	ex := &recordingExecutor{rowsAffected: 0}

	if _, err := repo.InsertNew(context.Background(), ex, insertTestItem()); err != nil {
		t.Fatalf("want nil, got %v", err)
	}

	if len(ex.queries) != 1 {
		t.Fatalf("クエリ数 want 1, got %d", len(ex.queries))
	}
	if !strings.Contains(ex.queries[0], "ON CONFLICT (user_id, external_id) DO NOTHING") {
		t.Errorf("挿入文はON CONFLICT DO NOTHINGで重複を除外すべき, got %s", ex.queries[0])
	}
}

func TestPostgresItemRepo_InsertNew_DuplicatesDoNotAbortBatch(t *testing.T) {
	repo := NewPostgresItemRepo(nil)
	// 同一トランザクションを模したExecutorに重複→新規の順で挿入する
	ex := &recordingExecutor{rowsAffected: 0}

	inserted, err := repo.InsertNew(context.Background(), ex, insertTestItem())
	if err != nil || inserted {
		t.Fatalf("重複 want (false, nil), got (%v, %v)", inserted, err)
	}

	ex.rowsAffected = 1
	second := insertTestItem()
	second.ID = "item-2"
	second.ExternalID = "ext-2"

	inserted, err = repo.InsertNew(context.Background(), ex, second)
	if err != nil {
		t.Fatalf("重複後の挿入が失敗すべきでない, got %v", err)
	}
	if !inserted {
		t.Error("重複後の新規アイテムは inserted=true を返すべき")
	}
}
