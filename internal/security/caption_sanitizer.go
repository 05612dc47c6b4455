// Package security はアプリケーションのセキュリティ機能を提供する。
//
// CaptionSanitizerService はプロバイダから取得したキャプションをサニタイズし、
// XSS攻撃などのセキュリティリスクからユーザーを保護する。
// キャプションはプレーンテキストとして扱うため、bluemondayのStrictPolicyで
// 全てのHTMLタグを除去する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// CaptionSanitizerService はキャプションのサニタイズ機能のインターフェースを定義する。
// アイテムの取り込み時、永続化の前に使用される。
type CaptionSanitizerService interface {
	// Sanitize はキャプションから全てのHTMLタグを除去してプレーンテキストを返す。
	// HTMLエンティティはデコードし、前後の空白をトリムする。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// captionSanitizer はCaptionSanitizerServiceの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフにサニタイズ処理を行う。
type captionSanitizer struct {
	policy *bluemonday.Policy
}

// NewCaptionSanitizer はCaptionSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyは全てのタグと属性を除去する。
func NewCaptionSanitizer() *captionSanitizer {
	return &captionSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はキャプションから全てのHTMLタグを除去する。
func (s *captionSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}

	stripped := s.policy.Sanitize(raw)
	// bluemondayはエンティティをエスケープしたまま返すため、
	// プレーンテキストとして保存する前にデコードする。
	decoded := html.UnescapeString(stripped)
	return strings.TrimSpace(decoded)
}
