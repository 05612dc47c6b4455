package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/mediawatch/internal/model"
)

// PostgresSourceRepo はPostgreSQLを使用したソースリポジトリ。
type PostgresSourceRepo struct {
	db *sql.DB
}

// NewPostgresSourceRepo はPostgresSourceRepoを生成する。
func NewPostgresSourceRepo(db *sql.DB) *PostgresSourceRepo {
	return &PostgresSourceRepo{db: db}
}

// sourceColumns はソース取得クエリで使用するカラムリスト。
const sourceColumns = `id, user_id, handle, kind, auto_check_enabled, check_interval_hours,
	last_checked_at, next_check_at, last_successful_check_at,
	total_checks, failed_checks, item_count, new_found,
	parse_status, parse_error, viral_threshold, notify_on_new, notify_viral_only,
	last_scraped_at, last_scraped_external_id, created_at, updated_at`

// scanSource は1行をmodel.Sourceへスキャンする。
func scanSource(row interface{ Scan(...interface{}) error }) (*model.Source, error) {
	source := &model.Source{}
	var parseError, lastScrapedExternalID sql.NullString
	var lastCheckedAt, nextCheckAt, lastSuccessfulCheckAt, lastScrapedAt sql.NullTime

	err := row.Scan(
		&source.ID, &source.UserID, &source.Handle, &source.Kind,
		&source.AutoCheckEnabled, &source.CheckIntervalHours,
		&lastCheckedAt, &nextCheckAt, &lastSuccessfulCheckAt,
		&source.TotalChecks, &source.FailedChecks, &source.ItemCount, &source.NewFound,
		&source.ParseStatus, &parseError,
		&source.ViralThreshold, &source.NotifyOnNew, &source.NotifyViralOnly,
		&lastScrapedAt, &lastScrapedExternalID,
		&source.CreatedAt, &source.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	source.ParseError = nullStringValue(parseError)
	source.LastScrapedExternalID = nullStringValue(lastScrapedExternalID)
	source.LastCheckedAt = nullTimeValue(lastCheckedAt)
	source.NextCheckAt = nullTimeValue(nextCheckAt)
	source.LastSuccessfulCheckAt = nullTimeValue(lastSuccessfulCheckAt)
	source.LastScrapedAt = nullTimeValue(lastScrapedAt)

	return source, nil
}

// FindByID は指定IDのソースを取得する。見つからない場合はnilを返す。
func (r *PostgresSourceRepo) FindByID(ctx context.Context, id string) (*model.Source, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE id = $1`, id)

	source, err := scanSource(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ソースの取得に失敗しました: %w", err)
	}
	return source, nil
}

// Create はソースを作成する。
func (r *PostgresSourceRepo) Create(ctx context.Context, source *model.Source) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sources (id, user_id, handle, kind, auto_check_enabled, check_interval_hours,
		                      next_check_at, parse_status, viral_threshold,
		                      notify_on_new, notify_viral_only, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		source.ID, source.UserID, source.Handle, source.Kind,
		source.AutoCheckEnabled, source.CheckIntervalHours,
		nullTime(source.NextCheckAt), source.ParseStatus, source.ViralThreshold,
		source.NotifyOnNew, source.NotifyViralOnly,
		source.CreatedAt, source.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ソースの作成に失敗しました: %w", err)
	}
	return nil
}

// ListDueForCheck はチェック対象のソースを取得する。
// auto_check_enabled = true かつ next_check_atが未設定または到来済みのソースを返す。
// 行ロックは取らない。チェックサイクルの重複はスケジューラ側の
// 実行中ガードで防ぎ、プロセスは単一である前提。
func (r *PostgresSourceRepo) ListDueForCheck(ctx context.Context) ([]*model.Source, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sourceColumns+`
		 FROM sources
		 WHERE auto_check_enabled = TRUE
		   AND (next_check_at IS NULL OR next_check_at <= now())
		 ORDER BY next_check_at NULLS FIRST`)
	if err != nil {
		return nil, fmt.Errorf("チェック対象ソースの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var sources []*model.Source
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("チェック対象ソースのスキャンに失敗しました: %w", err)
		}
		sources = append(sources, source)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("チェック対象ソースの走査に失敗しました: %w", err)
	}

	return sources, nil
}

// MarkChecking はソースをチェック実行中（parsing）に遷移させる。
func (r *PostgresSourceRepo) MarkChecking(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sources SET parse_status = 'parsing', updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ソースのチェック中状態への更新に失敗しました: %w", err)
	}
	return nil
}

// MarkCheckSuccess はチェック成功を記録する。
// カウンタはSQL側でインクリメントし、アプリケーション側のread-modify-writeを避ける。
func (r *PostgresSourceRepo) MarkCheckSuccess(ctx context.Context, id string, next time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sources SET
		    total_checks = total_checks + 1,
		    failed_checks = 0,
		    last_checked_at = now(),
		    last_successful_check_at = now(),
		    next_check_at = $2,
		    parse_status = 'success',
		    parse_error = NULL,
		    updated_at = now()
		 WHERE id = $1`,
		id, next,
	)
	if err != nil {
		return fmt.Errorf("チェック成功の記録に失敗しました: %w", err)
	}
	return nil
}

// MarkCheckFailure はチェックのハード失敗を記録する。
func (r *PostgresSourceRepo) MarkCheckFailure(ctx context.Context, id string, next time.Time, reason string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sources SET
		    total_checks = total_checks + 1,
		    failed_checks = failed_checks + 1,
		    last_checked_at = now(),
		    next_check_at = $2,
		    parse_status = 'error',
		    parse_error = $3,
		    updated_at = now()
		 WHERE id = $1`,
		id, next, reason,
	)
	if err != nil {
		return fmt.Errorf("チェック失敗の記録に失敗しました: %w", err)
	}
	return nil
}

// MarkCheckSoftFailure は前提条件不足によるソフト失敗を記録する。
// parse_status/parse_errorはソースレベルの解析状態ではないため変更しない。
func (r *PostgresSourceRepo) MarkCheckSoftFailure(ctx context.Context, id string, next time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sources SET
		    total_checks = total_checks + 1,
		    failed_checks = failed_checks + 1,
		    last_checked_at = now(),
		    next_check_at = $2,
		    updated_at = now()
		 WHERE id = $1`,
		id, next,
	)
	if err != nil {
		return fmt.Errorf("チェックのソフト失敗の記録に失敗しました: %w", err)
	}
	return nil
}

// UpdateMonitoring は自動チェックの有効/無効とチェック間隔を更新する。
func (r *PostgresSourceRepo) UpdateMonitoring(ctx context.Context, id string, enabled bool, intervalHours int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sources SET
		    auto_check_enabled = $2,
		    check_interval_hours = $3,
		    updated_at = now()
		 WHERE id = $1`,
		id, enabled, intervalHours,
	)
	if err != nil {
		return fmt.Errorf("監視設定の更新に失敗しました: %w", err)
	}
	return nil
}

// UpdateWatermark はソースのウォーターマークを更新する。
func (r *PostgresSourceRepo) UpdateWatermark(ctx context.Context, ex Executor, id string, lastScrapedAt time.Time, lastExternalID string) error {
	if ex == nil {
		ex = r.db
	}
	_, err := ex.ExecContext(ctx,
		`UPDATE sources SET
		    last_scraped_at = $2,
		    last_scraped_external_id = $3,
		    updated_at = now()
		 WHERE id = $1`,
		id, lastScrapedAt, lastExternalID,
	)
	if err != nil {
		return fmt.Errorf("ウォーターマークの更新に失敗しました: %w", err)
	}
	return nil
}

// AddItemCounts はitem_count/new_foundをSQL側でインクリメントする。
func (r *PostgresSourceRepo) AddItemCounts(ctx context.Context, ex Executor, id string, newItems int) error {
	if ex == nil {
		ex = r.db
	}
	_, err := ex.ExecContext(ctx,
		`UPDATE sources SET
		    item_count = item_count + $2,
		    new_found = new_found + $2,
		    updated_at = now()
		 WHERE id = $1`,
		id, newItems,
	)
	if err != nil {
		return fmt.Errorf("アイテムカウンタの更新に失敗しました: %w", err)
	}
	return nil
}

// nullString は空文字列をsql.NullStringに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列値を取り出す。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// nullTime は*time.Timeをsql.NullTimeに変換する。
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// nullTimeValue はsql.NullTimeから*time.Timeを取り出す。
func nullTimeValue(nt sql.NullTime) *time.Time {
	if nt.Valid {
		t := nt.Time
		return &t
	}
	return nil
}
