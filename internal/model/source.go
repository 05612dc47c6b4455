// Package model はドメインモデルを定義する。
package model

import "time"

// SourceKind は監視対象ソースの種別を表す。
type SourceKind string

const (
	// SourceKindAccount はスクレイピングプロバイダ経由で取得するSNSアカウント。
	SourceKindAccount SourceKind = "account"
	// SourceKindFeed はRSS/Atomフィード。
	SourceKindFeed SourceKind = "feed"
)

// ParseStatus はソースの直近チェックの解析状態を表す。
type ParseStatus string

const (
	// ParseStatusPending は未チェック状態。
	ParseStatusPending ParseStatus = "pending"
	// ParseStatusParsing はチェック実行中状態。
	ParseStatusParsing ParseStatus = "parsing"
	// ParseStatusSuccess はチェック成功状態。
	ParseStatusSuccess ParseStatus = "success"
	// ParseStatusError はチェック失敗状態。
	ParseStatusError ParseStatus = "error"
)

// Source は監視対象の外部アカウント/フィードを表す。
// スケジューラとインジェスタのみが監視状態を更新する。
type Source struct {
	ID     string
	UserID string
	Handle string
	Kind   SourceKind

	// 監視状態
	AutoCheckEnabled      bool
	CheckIntervalHours    int
	LastCheckedAt         *time.Time
	NextCheckAt           *time.Time // NULLは「即時チェック対象」を意味する
	LastSuccessfulCheckAt *time.Time
	TotalChecks           int
	FailedChecks          int // 連続失敗回数。成功時に0へリセットされる
	ItemCount             int // 取り込み済みアイテムの累計
	NewFound              int // 新規発見アイテムの累計

	// チェック結果状態
	ParseStatus ParseStatus
	ParseError  string

	// 通知ポリシー
	ViralThreshold  float64
	NotifyOnNew     bool
	NotifyViralOnly bool

	// ウォーターマーク: 前回取り込んだ最新アイテムの位置
	LastScrapedAt         *time.Time
	LastScrapedExternalID string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RawItem はプロバイダから取得した未保存のアイテムデータを表す。
// フェッチャーがページを取得した後、Ingestorに渡される。
type RawItem struct {
	ExternalID   string
	URL          string
	MediaURL     string
	ThumbnailURL string
	Caption      string // 未サニタイズ
	PlayCount    int
	LikeCount    int
	CommentCount int
	PublishedAt  *time.Time
}
