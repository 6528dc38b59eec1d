package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func testRateLimiterConfig(generalBurst, syncBurst int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(0.001), // テスト中に補充されないレート
		GeneralBurst:    generalBurst,
		SyncRate:        rate.Limit(0.001),
		SyncBurst:       syncBurst,
		CleanupInterval: time.Hour,
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestFrom(remoteAddr, path string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = remoteAddr
	return req
}

func TestGeneralMiddleware_AllowsWithinBurst(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(3, 1))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestFrom("10.0.0.1:51234", "/user/"))
		if w.Code != http.StatusOK {
			t.Fatalf("リクエスト%d: status = %d, want %d", i+1, w.Code, http.StatusOK)
		}
	}
}

func TestGeneralMiddleware_RejectsOverBurst(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(1, 1))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("10.0.0.1:51234", "/user/"))
	if w.Code != http.StatusOK {
		t.Fatalf("1回目: status = %d, want %d", w.Code, http.StatusOK)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("10.0.0.1:51234", "/user/"))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("2回目: status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-Afterが設定されていない")
	}
}

func TestGeneralMiddleware_LimitsPerClientIP(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(1, 1))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("10.0.0.1:51234", "/user/"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	// 別IPは独立した上限を持つ
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("10.0.0.2:51234", "/user/"))
	if w.Code != http.StatusOK {
		t.Errorf("別IP: status = %d, want %d", w.Code, http.StatusOK)
	}

	if got := rl.GeneralLimiterCount(); got != 2 {
		t.Errorf("リミッター数 = %d, want 2", got)
	}
}

func TestSyncTriggerMiddleware_IndependentOfGeneral(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(1, 1))
	defer rl.Stop()

	general := rl.GeneralMiddleware()(okHandler())
	syncTrigger := rl.SyncTriggerMiddleware()(okHandler())

	// API全般の上限を使い切る
	w := httptest.NewRecorder()
	general.ServeHTTP(w, requestFrom("10.0.0.1:51234", "/user/"))
	w = httptest.NewRecorder()
	general.ServeHTTP(w, requestFrom("10.0.0.1:51234", "/user/"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}

	// 同期トリガーの上限は独立している
	w = httptest.NewRecorder()
	syncTrigger.ServeHTTP(w, requestFrom("10.0.0.1:51234", "/sync/"))
	if w.Code != http.StatusOK {
		t.Errorf("同期トリガー: status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestNewRateLimiterConfig(t *testing.T) {
	cfg := NewRateLimiterConfig(120, 6)
	if cfg.GeneralBurst != 120 {
		t.Errorf("GeneralBurst = %d, want 120", cfg.GeneralBurst)
	}
	if cfg.SyncBurst != 6 {
		t.Errorf("SyncBurst = %d, want 6", cfg.SyncBurst)
	}
	if cfg.GeneralRate != rate.Limit(2.0) {
		t.Errorf("GeneralRate = %v, want 2", cfg.GeneralRate)
	}
}

func TestCleanup_RemovesStaleEntries(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(1, 1))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())
	handler.ServeHTTP(httptest.NewRecorder(), requestFrom("10.0.0.1:51234", "/user/"))

	// 最終アクセスを過去に偽装してクリーンアップを直接実行
	rl.generalMu.Lock()
	for _, cl := range rl.generalLimiters {
		cl.lastAccess = time.Now().Add(-3 * time.Hour)
	}
	rl.generalMu.Unlock()

	rl.cleanup()

	if got := rl.GeneralLimiterCount(); got != 0 {
		t.Errorf("リミッター数 = %d, want 0", got)
	}
}
