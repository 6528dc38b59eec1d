package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/healthsync/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	HTTPMetrics       middleware.HTTPMetrics

	// アプリケーション情報
	AppInfo AppInfo

	// 利用者記録
	UserStore UserRecordStore
	Scorer    RiskScorer
	Sanitizer TextSanitizer

	// 活動イベント
	ActivityStore HealthActivityStore

	// 同期
	SyncService SyncServiceInterface
	Tester      ConnectionTester
	SyncFinder  SyncRunFinder
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → RateLimit(General)
//
// 同期トリガーにはさらに専用レート制限を追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.HTTPMetrics))
	r.Use(deps.RateLimiter.GeneralMiddleware())

	rootHandler := NewRootHandler(deps.AppInfo)
	userHandler := NewUserHandler(deps.UserStore, deps.Scorer, deps.Sanitizer)
	riskHandler := NewRiskHandler(deps.Scorer)
	activityHandler := NewActivityHandler(deps.ActivityStore, deps.Sanitizer)
	syncHandler := NewSyncHandler(deps.SyncService, deps.Tester, deps.SyncFinder, deps.Logger)

	r.Get("/", rootHandler.Root)
	r.Get("/health", rootHandler.Health)

	// 利用者記録
	r.Route("/user", func(r chi.Router) {
		r.Post("/", userHandler.CreateRecord)
		r.Get("/", userHandler.ListRecords)
		r.Delete("/", userHandler.DeleteAllRecords)
		r.Get("/{id}", userHandler.GetRecord)
	})

	// ステートレスなリスク算出
	r.Post("/risk_scores/", riskHandler.ComputeScores)

	// 活動イベント
	r.Route("/activity", func(r chi.Router) {
		r.Post("/", activityHandler.CreateActivity)
		r.Get("/", activityHandler.ListActivities)
	})

	// 同期
	r.Route("/sync", func(r chi.Router) {
		r.Get("/test_connection", syncHandler.TestConnection)
		r.Get("/status", syncHandler.Status)

		// トリガーはシートAPIクォータを消費するため専用レート制限を追加
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.SyncTriggerMiddleware())
			r.Post("/", syncHandler.TriggerBidirectional)
			r.Post("/to_sheets", syncHandler.TriggerExport)
			r.Post("/from_sheets", syncHandler.TriggerImport)
		})
	})

	return r
}
