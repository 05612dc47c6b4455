// Package retry は外部呼び出し向けのリトライラッパーを提供する。
// Fetch/Transcribe/Scoreの全アウトバウンド呼び出しで一律に使用される。
package retry

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"
)

// defaultDelays は試行iの前に待機する遅延テーブル。
// 試行回数がテーブル長を超えた場合は最後の値を使用する。
var defaultDelays = []time.Duration{time.Second, 3 * time.Second, 7 * time.Second}

// defaultMaxAttempts はデフォルトの最大試行回数。
const defaultMaxAttempts = 3

// retryable は一時的な失敗であることを自己申告するエラーのインターフェース。
// プロバイダクライアントのAPIエラー（429/5xx）が実装する。
type retryable interface {
	Retryable() bool
}

// IsRetryable はエラーがリトライ対象かを分類する。
// リトライ対象: Retryable()がtrueを返すエラー、ネットワークタイムアウト。
// それ以外の失敗は即座に呼び出し元へ伝播させる。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}

// Option はDoの挙動を調整するオプション。
type Option func(*options)

type options struct {
	maxAttempts int
	delays      []time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

// WithMaxAttempts は最大試行回数を変更する。
func WithMaxAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithDelays は遅延テーブルを変更する。
func WithDelays(delays []time.Duration) Option {
	return func(o *options) {
		if len(delays) > 0 {
			o.delays = delays
		}
	}
}

// WithSleep は待機処理を差し替える。テストで仮想時間を使用するために用いる。
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *options) {
		if sleep != nil {
			o.sleep = sleep
		}
	}
}

// Do はfnを最大maxAttempts回まで実行する。
// リトライ対象と分類された失敗のみ再試行し、それ以外は即座に返す。
// 全試行が失敗した場合は最後のエラーをそのまま返す（ラップして原因を隠さない）。
func Do(ctx context.Context, logger *slog.Logger, op string, fn func(ctx context.Context) error, opts ...Option) error {
	o := &options{
		maxAttempts: defaultMaxAttempts,
		delays:      defaultDelays,
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		opt(o)
	}

	var lastErr error
	for attempt := 0; attempt < o.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := o.delays[min(attempt-1, len(o.delays)-1)]
			logger.Warn("リトライ待機中",
				slog.String("op", op),
				slog.Int("attempt", attempt+1),
				slog.Duration("delay", delay),
				slog.String("error", lastErr.Error()),
			)
			if err := o.sleep(ctx, delay); err != nil {
				return err
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
	}

	logger.Error("リトライ回数を使い切りました",
		slog.String("op", op),
		slog.Int("max_attempts", o.maxAttempts),
		slog.String("error", lastErr.Error()),
	)
	return lastErr
}

// sleepCtx はコンテキストのキャンセルを尊重して待機する。
func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
