package pipeline

import (
	"sync"
	"time"
)

// budgetEntry はセッションごとの予約状況。
type budgetEntry struct {
	count       int
	lastTouched time.Time
}

// SessionBudget はセッション単位でスコアリング回数を制限するトラッカー。
// エントリは最終予約からTTL経過後に失効し、同一キーの予約は0から再開される。
// タイマーは保持せず、読み取り時に失効を判定する（遅延失効）。
type SessionBudget struct {
	mu      sync.Mutex
	entries map[string]*budgetEntry
	cap     int
	ttl     time.Duration
	now     func() time.Time
}

// NewSessionBudget はSessionBudgetの新しいインスタンスを生成する。
func NewSessionBudget(cap int, ttl time.Duration) *SessionBudget {
	return &SessionBudget{
		entries: make(map[string]*budgetEntry),
		cap:     cap,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Reserve は指定セッションキーの予約を1件試みる。
// 上限に達している場合はfalseを返す。予約成功時はTTLが最終予約時刻から再起算される。
func (b *SessionBudget) Reserve(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.purgeExpired(now)

	entry, ok := b.entries[key]
	if !ok {
		entry = &budgetEntry{}
		b.entries[key] = entry
	}

	if entry.count >= b.cap {
		return false
	}

	entry.count++
	entry.lastTouched = now
	return true
}

// Count は指定セッションキーの現在の予約数を返す。失効済みのキーは0。
func (b *SessionBudget) Count(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.purgeExpired(b.now())

	entry, ok := b.entries[key]
	if !ok {
		return 0
	}
	return entry.count
}

// purgeExpired は最終予約からTTLを経過したエントリを削除する。
// 呼び出し側でロックを保持していること。
func (b *SessionBudget) purgeExpired(now time.Time) {
	for key, entry := range b.entries {
		if !entry.lastTouched.IsZero() && now.Sub(entry.lastTouched) >= b.ttl {
			delete(b.entries, key)
		}
	}
}
