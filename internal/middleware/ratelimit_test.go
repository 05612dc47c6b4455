package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"
)

func newTestRateLimiter(perMin int) *RateLimiter {
	rl := NewRateLimiter(NewRateLimiterConfig(perMin))
	return rl
}

func checkNowRequest(t *testing.T, rl *RateLimiter, sourceID string) *httptest.ResponseRecorder {
	t.Helper()

	r := chi.NewRouter()
	r.With(rl.CheckNowMiddleware()).Post("/api/sources/{sourceID}/check", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/sources/"+sourceID+"/check", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCheckNowMiddleware_AllowsWithinBurst(t *testing.T) {
	rl := newTestRateLimiter(6)
	defer rl.Stop()

	for i := 0; i < 6; i++ {
		rec := checkNowRequest(t, rl, "source-1")
		if rec.Code != http.StatusAccepted {
			t.Fatalf("バースト内の%d回目は通過すべき, got %d", i+1, rec.Code)
		}
	}
}

func TestCheckNowMiddleware_RejectsOverBurst(t *testing.T) {
	rl := newTestRateLimiter(2)
	defer rl.Stop()

	checkNowRequest(t, rl, "source-1")
	checkNowRequest(t, rl, "source-1")
	rec := checkNowRequest(t, rl, "source-1")

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("バースト超過は429を返すべき, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("429レスポンスにはRetry-Afterヘッダーを含むべき")
	}
}

func TestCheckNowMiddleware_KeysAreIndependent(t *testing.T) {
	rl := newTestRateLimiter(1)
	defer rl.Stop()

	checkNowRequest(t, rl, "source-1")

	rec := checkNowRequest(t, rl, "source-2")
	if rec.Code != http.StatusAccepted {
		t.Errorf("別ソースへのリクエストは独立して制限されるべき, got %d", rec.Code)
	}
}

func TestLimiterCount(t *testing.T) {
	rl := newTestRateLimiter(6)
	defer rl.Stop()

	checkNowRequest(t, rl, "source-1")
	checkNowRequest(t, rl, "source-2")
	checkNowRequest(t, rl, "source-1")

	if got := rl.LimiterCount(); got != 2 {
		t.Errorf("リミッターエントリ数 want 2, got %d", got)
	}
}

func TestCleanup_RemovesStaleEntries(t *testing.T) {
	rl := &RateLimiter{
		config: RateLimiterConfig{
			CheckNowRate:    rate.Limit(0.1),
			CheckNowBurst:   6,
			CleanupInterval: time.Minute,
		},
		limiters: map[string]*keyLimiter{
			"stale": {
				limiter:    rate.NewLimiter(0.1, 6),
				lastAccess: time.Now().Add(-3 * time.Minute),
			},
			"fresh": {
				limiter:    rate.NewLimiter(0.1, 6),
				lastAccess: time.Now(),
			},
		},
		stopCh: make(chan struct{}),
	}

	rl.cleanup()

	if rl.LimiterCount() != 1 {
		t.Errorf("期限切れエントリのみ削除されるべき, got %d件", rl.LimiterCount())
	}
}

func TestNewRateLimiterConfig_DefaultsOnInvalid(t *testing.T) {
	config := NewRateLimiterConfig(0)

	if config.CheckNowBurst != 6 {
		t.Errorf("不正な値のバーストはデフォルト6に戻すべき, got %d", config.CheckNowBurst)
	}
	if config.CheckNowRate != rate.Limit(0.1) {
		t.Errorf("不正な値のレートはデフォルト0.1に戻すべき, got %v", config.CheckNowRate)
	}
}
