package provider

import (
	"fmt"
	"net/http"
)

// APIError は外部APIのエラー応答を表す。
// リトライラッパーはRetryable()の結果に基づいてリトライ可否を判定する。
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error: status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Retryable は429および5xxを一時的な失敗として分類する。
// それ以外（認証エラー、リクエスト不正等）は恒久的な失敗であり、
// 次回のスケジュールチェックまでリトライしない。
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// newAPIError はHTTPレスポンスからAPIErrorを生成する。
func newAPIError(providerName string, statusCode int, body []byte) *APIError {
	const maxBodyLen = 512
	b := string(body)
	if len(b) > maxBodyLen {
		b = b[:maxBodyLen]
	}
	return &APIError{Provider: providerName, StatusCode: statusCode, Body: b}
}
