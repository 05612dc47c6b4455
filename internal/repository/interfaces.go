// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/mediawatch/internal/model"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
// 取り込みステップの「アイテム挿入＋ウォーターマーク更新」を
// 単一トランザクションで実行するために使用する。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// SourceRepository は監視ソースの永続化インターフェース。
// totalChecks/failedChecks等の永続カウンタは、並行するタスク完了からの
// 更新によるロストアップデートを避けるため、全てSQL側のインクリメントで更新する。
type SourceRepository interface {
	// FindByID は指定IDのソースを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Source, error)

	// Create はソースを作成する。
	Create(ctx context.Context, source *model.Source) error

	// ListDueForCheck はチェック対象のソースを取得する。
	// auto_check_enabled = true かつ (next_check_at IS NULL または next_check_at <= now()) の
	// ソースを返す。サイクルの重複防止はスケジューラの実行中ガードが担う。
	ListDueForCheck(ctx context.Context) ([]*model.Source, error)

	// UpdateMonitoring は自動チェックの有効/無効とチェック間隔を更新する。
	UpdateMonitoring(ctx context.Context, id string, enabled bool, intervalHours int) error

	// MarkChecking はソースをチェック実行中（parsing）に遷移させる。
	MarkChecking(ctx context.Context, id string) error

	// MarkCheckSuccess はチェック成功を記録する。
	// total_checksをインクリメントし、failed_checksを0にリセットし、
	// last_checked_at/last_successful_check_atを現在時刻に、next_check_atを指定時刻に設定する。
	MarkCheckSuccess(ctx context.Context, id string, next time.Time) error

	// MarkCheckFailure はチェックのハード失敗を記録する。
	// total_checks/failed_checksをインクリメントし、parse_statusをerrorに設定する。
	MarkCheckFailure(ctx context.Context, id string, next time.Time, reason string) error

	// MarkCheckSoftFailure は前提条件不足（資格情報なし等）によるソフト失敗を記録する。
	// total_checks/failed_checksをインクリメントするが、parse_status/parse_errorには触れない。
	MarkCheckSoftFailure(ctx context.Context, id string, next time.Time) error

	// UpdateWatermark はソースのウォーターマーク（最新取り込み位置）を更新する。
	// 取り込みトランザクション内で呼び出せるようExecutorを受け取る。
	UpdateWatermark(ctx context.Context, ex Executor, id string, lastScrapedAt time.Time, lastExternalID string) error

	// AddItemCounts はitem_count/new_foundをSQL側でインクリメントする。
	AddItemCounts(ctx context.Context, ex Executor, id string, newItems int) error
}

// ItemRepository はアイテムの永続化インターフェース。
type ItemRepository interface {
	// FindByID は指定IDのアイテムを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Item, error)

	// InsertNew は新規アイテムを挿入する。
	// (user_id, external_id) の一意制約違反は「既知のアイテム」として扱い、
	// エラーではなく inserted=false を返す。
	// 取り込みトランザクション内で呼び出せるようExecutorを受け取る。
	InsertNew(ctx context.Context, ex Executor, item *model.Item) (inserted bool, err error)

	// UpdateDownloadState はメディア取得ステージの状態を更新する。
	UpdateDownloadState(ctx context.Context, id string, status model.DownloadStatus, localPath, errMsg string) error

	// UpdateTranscript は文字起こしステージの状態を更新する。
	UpdateTranscript(ctx context.Context, id string, status model.TranscriptStatus, text, lang, errMsg string) error

	// UpdateScore はスコアリング結果を記録する。
	UpdateScore(ctx context.Context, id string, overall, hook, content, trend float64, comment string) error

	// ListStaleMediaPaths は保持期間を超過したローカルメディアパスを返す。
	// クリーンアップジョブが使用する。
	ListStaleMediaPaths(ctx context.Context, olderThan time.Time, limit int) ([]string, error)

	// ClearMediaPaths は指定パスのlocal_media_pathをNULLに戻す。
	ClearMediaPaths(ctx context.Context, paths []string) error
}

// PolicyRepository はユーザーごとの採用判定ポリシーの永続化インターフェース。
type PolicyRepository interface {
	// FindByUserID は指定ユーザーのポリシーを取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.AcceptancePolicy, error)

	// Upsert はポリシーを冪等にUPSERTする。
	Upsert(ctx context.Context, policy *model.AcceptancePolicy) error
}
