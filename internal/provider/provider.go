// Package provider は外部コラボレーター（フェッチ/文字起こし/スコアリング/資格情報）の
// 契約と実装を提供する。パイプライン本体はここで定義するインターフェースのみに依存する。
package provider

import (
	"context"

	"github.com/hitoshi/mediawatch/internal/model"
)

// Fetcher はソースの最新アイテムを取得するインターフェース。
// limitはライトチェックのページサイズであり、フルバックフィルは行わない。
type Fetcher interface {
	// FetchLatest は指定ハンドルの最新アイテムをlimit件まで取得する。
	// credはソース種別によっては不要（フィード等）であり、nilを許容する。
	FetchLatest(ctx context.Context, cred *Credential, handle string, limit int) ([]model.RawItem, error)
}

// Transcription は文字起こし結果を表す。
type Transcription struct {
	Text     string
	Language string
}

// Transcriber はローカルメディアファイルの文字起こしインターフェース。
type Transcriber interface {
	Transcribe(ctx context.Context, localMediaPath string) (*Transcription, error)
}

// Score はスコアリング結果を表す。スコアは0〜100。
type Score struct {
	Overall float64
	Hook    float64
	Content float64
	Trend   float64
	Comment string
}

// ScoreMetadata はスコアリングに渡す付帯情報。
type ScoreMetadata struct {
	Caption      string
	PlayCount    int
	LikeCount    int
	CommentCount int
	// Instructions は学習済み却下パターンから得た指示テキスト。
	// プロンプト条件付けに使用する。
	Instructions []string
}

// Scorer は文字起こしテキストのスコアリングインターフェース。
// 有償の推論モデルを呼び出すため、呼び出し回数はセッション予算で制限される。
type Scorer interface {
	Score(ctx context.Context, text string, meta ScoreMetadata) (*Score, error)
}

// Credential は外部プロバイダの資格情報を表す。
// Valueは常に復号済みの平文であり、暗号化された形式がこの境界を越えることはない。
type Credential struct {
	Provider string
	Value    string
}

// CredentialStore は資格情報検索のインターフェース。
// 資格情報が存在しない場合は (nil, nil) を返す。不在は正常系でありエラーではない。
type CredentialStore interface {
	GetCredential(ctx context.Context, userID, providerName string) (*Credential, error)
}
