// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, source, pipeline, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeSourceNotFound     = "SOURCE_NOT_FOUND"
	ErrCodeItemNotFound       = "ITEM_NOT_FOUND"
	ErrCodeInvalidInterval    = "INVALID_CHECK_INTERVAL"
	ErrCodeInvalidSource      = "INVALID_SOURCE"
	ErrCodeCheckDisabled      = "CHECK_DISABLED"
	ErrCodeInvalidFeedback    = "INVALID_FEEDBACK"
	ErrCodeQueueFull          = "QUEUE_FULL"
	ErrCodeInvalidTransition  = "INVALID_STATUS_TRANSITION"
)

// NewSourceNotFoundError はソース未検出エラーを生成する。
func NewSourceNotFoundError(sourceID string) *APIError {
	return &APIError{
		Code:     ErrCodeSourceNotFound,
		Message:  fmt.Sprintf("指定されたソースが見つかりません: %s", sourceID),
		Category: "source",
		Action:   "ソースIDを確認してください。",
	}
}

// NewItemNotFoundError はアイテム未検出エラーを生成する。
func NewItemNotFoundError(itemID string) *APIError {
	return &APIError{
		Code:     ErrCodeItemNotFound,
		Message:  fmt.Sprintf("指定されたアイテムが見つかりません: %s", itemID),
		Category: "source",
		Action:   "アイテムIDを確認してください。",
	}
}

// NewInvalidIntervalError はチェック間隔が無効な場合のエラーを生成する。
func NewInvalidIntervalError(hours int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidInterval,
		Message:  fmt.Sprintf("無効なチェック間隔です: %d時間", hours),
		Category: "validation",
		Action:   "チェック間隔は1時間以上で指定してください。",
	}
}

// NewInvalidSourceError はソース登録内容が無効な場合のエラーを生成する。
func NewInvalidSourceError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSource,
		Message:  fmt.Sprintf("無効なソースです: %s", reason),
		Category: "validation",
		Action:   "ソースの登録内容を確認してください。",
	}
}

// NewCheckDisabledError は自動チェックが無効なソースへのチェック要求エラーを生成する。
func NewCheckDisabledError(sourceID string) *APIError {
	return &APIError{
		Code:     ErrCodeCheckDisabled,
		Message:  fmt.Sprintf("このソースは自動チェックが無効です: %s", sourceID),
		Category: "source",
		Action:   "ソースの自動チェックを有効にしてから再度お試しください。",
	}
}

// NewInvalidFeedbackError は無効なフィードバック操作のエラーを生成する。
func NewInvalidFeedbackError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidFeedback,
		Message:  fmt.Sprintf("無効なフィードバックです: %s", reason),
		Category: "validation",
		Action:   "フィードバックの内容を確認してください。",
	}
}

// NewQueueFullError は処理キューが満杯の場合のエラーを生成する。
func NewQueueFullError(stage string) *APIError {
	return &APIError{
		Code:     ErrCodeQueueFull,
		Message:  fmt.Sprintf("処理キューが満杯です: %s", stage),
		Category: "pipeline",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInvalidTransitionError は許可されていない状態遷移のエラーを生成する。
func NewInvalidTransitionError(from, to string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTransition,
		Message:  fmt.Sprintf("許可されていない状態遷移です: %s -> %s", from, to),
		Category: "pipeline",
		Action:   "アイテムの処理状態を確認してください。",
	}
}
