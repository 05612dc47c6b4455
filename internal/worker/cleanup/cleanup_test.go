package cleanup

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hitoshi/mediawatch/internal/model"
	"github.com/hitoshi/mediawatch/internal/repository"
)

type fakeCleanupItemRepo struct {
	stalePaths []string
	listErr    error
	clearErr   error
	cleared    []string
}

func (r *fakeCleanupItemRepo) FindByID(ctx context.Context, id string) (*model.Item, error) {
	return nil, nil
}

func (r *fakeCleanupItemRepo) InsertNew(ctx context.Context, ex repository.Executor, item *model.Item) (bool, error) {
	return false, nil
}

func (r *fakeCleanupItemRepo) UpdateDownloadState(ctx context.Context, id string, status model.DownloadStatus, localPath, errMsg string) error {
	return nil
}

func (r *fakeCleanupItemRepo) UpdateTranscript(ctx context.Context, id string, status model.TranscriptStatus, text, lang, errMsg string) error {
	return nil
}

func (r *fakeCleanupItemRepo) UpdateScore(ctx context.Context, id string, overall, hook, content, trend float64, comment string) error {
	return nil
}

func (r *fakeCleanupItemRepo) ListStaleMediaPaths(ctx context.Context, olderThan time.Time, limit int) ([]string, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	return r.stalePaths, nil
}

func (r *fakeCleanupItemRepo) ClearMediaPaths(ctx context.Context, paths []string) error {
	if r.clearErr != nil {
		return r.clearErr
	}
	r.cleared = append(r.cleared, paths...)
	return nil
}

func cleanupLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeMediaFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("media"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRun_RemovesStaleMedia(t *testing.T) {
	dir := t.TempDir()
	path1 := writeMediaFile(t, dir, "a.mp4")
	path2 := writeMediaFile(t, dir, "b.mp4")

	repo := &fakeCleanupItemRepo{stalePaths: []string{path1, path2}}
	job := NewCleanupJob(repo, cleanupLogger())

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("want nil, got %v", err)
	}

	for _, path := range []string{path1, path2} {
		if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("メディアファイル %s は削除されるべき", path)
		}
	}
	if len(repo.cleared) != 2 {
		t.Errorf("削除済みパスのクリア want 2件, got %d", len(repo.cleared))
	}
}

func TestRun_MissingFileIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "already-gone.mp4")

	repo := &fakeCleanupItemRepo{stalePaths: []string{missing}}
	job := NewCleanupJob(repo, cleanupLogger())

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("存在しないファイルも削除成功として扱うべき, got %v", err)
	}
	if len(repo.cleared) != 1 {
		t.Errorf("存在しないファイルのパスもクリアされるべき, got %d件", len(repo.cleared))
	}
}

func TestRun_NoStaleMedia(t *testing.T) {
	repo := &fakeCleanupItemRepo{}
	job := NewCleanupJob(repo, cleanupLogger())

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("対象なしは成功として扱うべき, got %v", err)
	}
	if len(repo.cleared) != 0 {
		t.Error("対象なしならクリアも行わないべき")
	}
}

func TestRun_ListFailurePropagates(t *testing.T) {
	repo := &fakeCleanupItemRepo{listErr: errors.New("db down")}
	job := NewCleanupJob(repo, cleanupLogger())

	if err := job.Run(context.Background()); err == nil {
		t.Error("対象取得の失敗はエラーを返すべき")
	}
}

func TestNewCleanupJob_DefaultRetention(t *testing.T) {
	job := NewCleanupJob(&fakeCleanupItemRepo{}, cleanupLogger())

	if job.RetentionDays != 30 {
		t.Errorf("デフォルト保持日数 want 30, got %d", job.RetentionDays)
	}
}
