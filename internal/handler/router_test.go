package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/healthsync/internal/middleware"
	"github.com/hitoshi/healthsync/internal/model"
	"github.com/hitoshi/healthsync/internal/risk"
)

type noopHTTPMetrics struct{}

func (noopHTTPMetrics) RecordHTTPStatus(statusCode int) {}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(limiter.Stop)

	store := &mockUserStore{
		findByIDFn: func(ctx context.Context, id string) (*model.UserRecord, error) {
			if id == "known-id" {
				return &model.UserRecord{ID: id, Name: "田中太郎", Email: "tanaka@example.com"}, nil
			}
			return nil, nil
		},
	}
	return NewRouter(&RouterDeps{
		CORSAllowedOrigin: "*",
		RateLimiter:       limiter,
		Logger:            slog.New(slog.NewJSONHandler(io.Discard, nil)),
		HTTPMetrics:       noopHTTPMetrics{},
		AppInfo:           AppInfo{Name: "Healthsync API", Version: "1.0.0", Environment: "test"},
		UserStore:         store,
		Scorer:            risk.NewEngine(),
		Sanitizer:         passthroughSanitizer{},
		ActivityStore:     &mockActivityStore{},
		SyncService:       &mockSyncService{},
		Tester:            &mockConnectionTester{},
		SyncFinder:        &mockSyncRunFinder{},
	})
}

func TestRouter_Routes(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		method     string
		path       string
		wantStatus int
	}{
		{http.MethodGet, "/", http.StatusOK},
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/user/", http.StatusOK},
		{http.MethodGet, "/user/known-id", http.StatusOK},
		{http.MethodGet, "/user/unknown-id", http.StatusNotFound},
		{http.MethodDelete, "/user/", http.StatusOK},
		{http.MethodGet, "/activity/", http.StatusOK},
		{http.MethodGet, "/sync/test_connection", http.StatusOK},
		{http.MethodGet, "/sync/status", http.StatusNotFound},
		{http.MethodPost, "/sync/", http.StatusAccepted},
		{http.MethodPost, "/sync/to_sheets", http.StatusAccepted},
		{http.MethodPost, "/sync/from_sheets", http.StatusAccepted},
		{http.MethodGet, "/unknown", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestRouter_AppliesSecurityAndCORSHeaders(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, "*")
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want %q", got, "nosniff")
	}
}

func TestRouter_SyncTriggerRateLimitIsSeparate(t *testing.T) {
	limiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(120, 2))
	t.Cleanup(limiter.Stop)

	router := NewRouter(&RouterDeps{
		CORSAllowedOrigin: "*",
		RateLimiter:       limiter,
		Logger:            slog.New(slog.NewJSONHandler(io.Discard, nil)),
		HTTPMetrics:       noopHTTPMetrics{},
		AppInfo:           AppInfo{Name: "Healthsync API"},
		UserStore:         &mockUserStore{},
		Scorer:            risk.NewEngine(),
		Sanitizer:         passthroughSanitizer{},
		ActivityStore:     &mockActivityStore{},
		SyncService:       &mockSyncService{},
		Tester:            &mockConnectionTester{},
		SyncFinder:        &mockSyncRunFinder{},
	})

	// バースト上限2なので3回目のトリガーで429になる
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/sync/to_sheets", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusAccepted {
			t.Fatalf("trigger %d: status = %d, want %d", i+1, w.Code, http.StatusAccepted)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/sync/to_sheets", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}

	// 一般レート制限は独立しており通常のGETは通る
	getReq := httptest.NewRequest(http.MethodGet, "/health", nil)
	getReq.RemoteAddr = "10.0.0.1:1234"
	getW := httptest.NewRecorder()
	router.ServeHTTP(getW, getReq)
	if getW.Code != http.StatusOK {
		t.Errorf("GET /health status = %d, want %d", getW.Code, http.StatusOK)
	}
}
