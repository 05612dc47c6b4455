// Package model はドメインモデルを定義する。
package model

import "time"

// Item はソースから発見されたコンテンツ1件を表す。
// (user_id, external_id) が一意であり、同一アイテムの再取り込みはスキップされる。
type Item struct {
	ID         string
	SourceID   string
	UserID     string
	ExternalID string // プロバイダ由来の安定ID。重複判定キー

	// コンテンツ
	Caption      string // サニタイズ済み
	URL          string
	MediaURL     string
	ThumbnailURL string
	PlayCount    int
	LikeCount    int
	CommentCount int
	PublishedAt  *time.Time
	IsViral      bool

	// エンリッチメント状態（3軸の独立したステートマシン）
	DownloadStatus   DownloadStatus
	LocalMediaPath   string
	DownloadError    string
	TranscriptStatus TranscriptStatus
	Transcript       string
	TranscriptLang   string
	TranscriptError  string

	// スコアリング結果。AIScoreがnilの間は未スコア（スキップ/失敗含む）
	AIScore      *float64
	HookScore    *float64
	ContentScore *float64
	TrendScore   *float64
	AIComment    string

	// 下流で使用済みのアイテムは再利用されない（消費時チェックは本コアの範囲外）
	UsedInProjectID *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Scored はアイテムがスコアリング済みかを返す。
func (i *Item) Scored() bool {
	return i.AIScore != nil
}
