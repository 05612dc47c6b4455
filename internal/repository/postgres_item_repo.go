package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/mediawatch/internal/model"
)


// PostgresItemRepo はPostgreSQLを使用したアイテムリポジトリ。
type PostgresItemRepo struct {
	db *sql.DB
}

// NewPostgresItemRepo はPostgresItemRepoを生成する。
func NewPostgresItemRepo(db *sql.DB) *PostgresItemRepo {
	return &PostgresItemRepo{db: db}
}

// FindByID は指定IDのアイテムを取得する。見つからない場合はnilを返す。
func (r *PostgresItemRepo) FindByID(ctx context.Context, id string) (*model.Item, error) {
	item := &model.Item{}
	var thumbnailURL, localMediaPath, downloadError, transcript, transcriptLang, transcriptError, aiComment sql.NullString
	var usedInProjectID sql.NullString
	var publishedAt sql.NullTime
	var aiScore, hookScore, contentScore, trendScore sql.NullFloat64

	err := r.db.QueryRowContext(ctx,
		`SELECT id, source_id, user_id, external_id, caption, url, media_url, thumbnail_url,
		        play_count, like_count, comment_count, published_at, is_viral,
		        download_status, local_media_path, download_error,
		        transcript_status, transcript, transcript_lang, transcript_error,
		        ai_score, hook_score, content_score, trend_score, ai_comment,
		        used_in_project_id, created_at, updated_at
		 FROM items WHERE id = $1`,
		id,
	).Scan(
		&item.ID, &item.SourceID, &item.UserID, &item.ExternalID,
		&item.Caption, &item.URL, &item.MediaURL, &thumbnailURL,
		&item.PlayCount, &item.LikeCount, &item.CommentCount, &publishedAt, &item.IsViral,
		&item.DownloadStatus, &localMediaPath, &downloadError,
		&item.TranscriptStatus, &transcript, &transcriptLang, &transcriptError,
		&aiScore, &hookScore, &contentScore, &trendScore, &aiComment,
		&usedInProjectID, &item.CreatedAt, &item.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("アイテムの取得に失敗しました: %w", err)
	}

	item.ThumbnailURL = nullStringValue(thumbnailURL)
	item.LocalMediaPath = nullStringValue(localMediaPath)
	item.DownloadError = nullStringValue(downloadError)
	item.Transcript = nullStringValue(transcript)
	item.TranscriptLang = nullStringValue(transcriptLang)
	item.TranscriptError = nullStringValue(transcriptError)
	item.AIComment = nullStringValue(aiComment)
	item.PublishedAt = nullTimeValue(publishedAt)
	item.AIScore = nullFloatValue(aiScore)
	item.HookScore = nullFloatValue(hookScore)
	item.ContentScore = nullFloatValue(contentScore)
	item.TrendScore = nullFloatValue(trendScore)
	if usedInProjectID.Valid {
		v := usedInProjectID.String
		item.UsedInProjectID = &v
	}

	return item, nil
}

// InsertNew は新規アイテムを挿入する。
// (user_id, external_id) の重複は既知アイテムの再取り込みであり、
// エラーではなく inserted=false として報告する。
// 取り込みトランザクション内で呼ばれるため、重複をエラーで検知してはならない。
// ステートメントがエラーになるとPostgreSQLはトランザクション全体を
// abort状態にし、以降の文がすべて失敗する。ON CONFLICT DO NOTHINGで
// エラーを発生させずにRowsAffectedで挿入有無を判定する。
func (r *PostgresItemRepo) InsertNew(ctx context.Context, ex Executor, item *model.Item) (bool, error) {
	if ex == nil {
		ex = r.db
	}
	result, err := ex.ExecContext(ctx,
		`INSERT INTO items (id, source_id, user_id, external_id, caption, url, media_url,
		                    thumbnail_url, play_count, like_count, comment_count,
		                    published_at, is_viral, download_status, transcript_status,
		                    created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		 ON CONFLICT (user_id, external_id) DO NOTHING`,
		item.ID, item.SourceID, item.UserID, item.ExternalID,
		item.Caption, item.URL, item.MediaURL, nullString(item.ThumbnailURL),
		item.PlayCount, item.LikeCount, item.CommentCount,
		nullTime(item.PublishedAt), item.IsViral,
		item.DownloadStatus, item.TranscriptStatus,
		item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("アイテムの挿入に失敗しました: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("挿入結果の確認に失敗しました: %w", err)
	}
	return affected == 1, nil
}

// UpdateDownloadState はメディア取得ステージの状態を更新する。
func (r *PostgresItemRepo) UpdateDownloadState(ctx context.Context, id string, status model.DownloadStatus, localPath, errMsg string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE items SET
		    download_status = $2,
		    local_media_path = $3,
		    download_error = $4,
		    updated_at = now()
		 WHERE id = $1`,
		id, status, nullString(localPath), nullString(errMsg),
	)
	if err != nil {
		return fmt.Errorf("メディア取得状態の更新に失敗しました: %w", err)
	}
	return nil
}

// UpdateTranscript は文字起こしステージの状態を更新する。
func (r *PostgresItemRepo) UpdateTranscript(ctx context.Context, id string, status model.TranscriptStatus, text, lang, errMsg string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE items SET
		    transcript_status = $2,
		    transcript = $3,
		    transcript_lang = $4,
		    transcript_error = $5,
		    updated_at = now()
		 WHERE id = $1`,
		id, status, nullString(text), nullString(lang), nullString(errMsg),
	)
	if err != nil {
		return fmt.Errorf("文字起こし状態の更新に失敗しました: %w", err)
	}
	return nil
}

// UpdateScore はスコアリング結果を記録する。
func (r *PostgresItemRepo) UpdateScore(ctx context.Context, id string, overall, hook, content, trend float64, comment string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE items SET
		    ai_score = $2,
		    hook_score = $3,
		    content_score = $4,
		    trend_score = $5,
		    ai_comment = $6,
		    updated_at = now()
		 WHERE id = $1`,
		id, overall, hook, content, trend, nullString(comment),
	)
	if err != nil {
		return fmt.Errorf("スコアリング結果の記録に失敗しました: %w", err)
	}
	return nil
}

// ListStaleMediaPaths は保持期間を超過したローカルメディアパスを返す。
func (r *PostgresItemRepo) ListStaleMediaPaths(ctx context.Context, olderThan time.Time, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT local_media_path
		 FROM items
		 WHERE local_media_path IS NOT NULL
		   AND download_status = 'completed'
		   AND updated_at < $1
		 ORDER BY updated_at
		 LIMIT $2`,
		olderThan, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("期限切れメディアパスの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("期限切れメディアパスのスキャンに失敗しました: %w", err)
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("期限切れメディアパスの走査に失敗しました: %w", err)
	}

	return paths, nil
}

// ClearMediaPaths は指定パスのlocal_media_pathをNULLに戻す。
func (r *PostgresItemRepo) ClearMediaPaths(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE items SET local_media_path = NULL, updated_at = now()
		 WHERE local_media_path = ANY($1)`,
		pq.Array(paths),
	)
	if err != nil {
		return fmt.Errorf("メディアパスのクリアに失敗しました: %w", err)
	}
	return nil
}

// nullFloatValue はsql.NullFloat64から*float64を取り出す。
func nullFloatValue(nf sql.NullFloat64) *float64 {
	if nf.Valid {
		v := nf.Float64
		return &v
	}
	return nil
}
