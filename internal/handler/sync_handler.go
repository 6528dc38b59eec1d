package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/healthsync/internal/model"
	"github.com/hitoshi/healthsync/internal/sheets"
	"github.com/hitoshi/healthsync/internal/sync"
)

// SyncServiceInterface は同期ハンドラーが必要とするオーケストレータのインターフェース。
type SyncServiceInterface interface {
	ImportFromSheets(ctx context.Context, since *time.Time) (*sync.ImportResult, error)
	ExportToSheets(ctx context.Context) (*sync.ExportResult, error)
	RunBidirectional(ctx context.Context, since *time.Time) (*sync.BidirectionalResult, error)
	Busy() bool
}

// ConnectionTester は外部シートへの接続確認のインターフェース。
type ConnectionTester interface {
	TestConnection(ctx context.Context) (*sheets.ConnectionStatus, error)
}

// SyncRunFinder は同期履歴の参照インターフェース。
type SyncRunFinder interface {
	FindLatest(ctx context.Context) (*model.SyncRun, error)
	FindLatestSuccessful(ctx context.Context) (*model.SyncRun, error)
}

// SyncHandler は同期トリガーと状態参照のHTTPハンドラー。
// トリガーはバックグラウンドで実行を起動して202を即座に返し、
// 進捗と結果は/sync/statusのポーリングで参照する。
type SyncHandler struct {
	service SyncServiceInterface
	tester  ConnectionTester
	finder  SyncRunFinder
	logger  *slog.Logger
}

// NewSyncHandler はSyncHandlerを生成する。
func NewSyncHandler(service SyncServiceInterface, tester ConnectionTester, finder SyncRunFinder, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{
		service: service,
		tester:  tester,
		finder:  finder,
		logger:  logger,
	}
}

// connectionStatusResponse は接続確認のAPIレスポンス。
type connectionStatusResponse struct {
	Status           string   `json:"status"`
	SpreadsheetTitle string   `json:"spreadsheet_title"`
	Sheets           []string `json:"sheets"`
}

// TestConnection は外部シートへの接続を確認する。
// GET /sync/test_connection
func (h *SyncHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	status, err := h.tester.TestConnection(r.Context())
	if err != nil {
		if errors.Is(err, sheets.ErrConsentRequired) {
			writeAPIErrorResponse(w, http.StatusBadGateway, model.NewSheetsAuthError(err.Error()))
			return
		}
		writeAPIErrorResponse(w, http.StatusBadGateway, model.NewSheetsUnavailableError(err.Error()))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(connectionStatusResponse{
		Status:           "success",
		SpreadsheetTitle: status.SpreadsheetTitle,
		Sheets:           status.SheetTitles,
	})
}

// TriggerImport はシートからのインポートをバックグラウンドで起動する。
// POST /sync/from_sheets
func (h *SyncHandler) TriggerImport(w http.ResponseWriter, r *http.Request) {
	h.trigger(w, r, model.SyncTypeSheetsToDB, func(ctx context.Context, since *time.Time) error {
		_, err := h.service.ImportFromSheets(ctx, since)
		return err
	})
}

// TriggerExport はシートへのエクスポートをバックグラウンドで起動する。
// POST /sync/to_sheets
func (h *SyncHandler) TriggerExport(w http.ResponseWriter, r *http.Request) {
	h.trigger(w, r, model.SyncTypeDBToSheets, func(ctx context.Context, since *time.Time) error {
		_, err := h.service.ExportToSheets(ctx)
		return err
	})
}

// TriggerBidirectional は双方向同期をバックグラウンドで起動する。
// POST /sync/
func (h *SyncHandler) TriggerBidirectional(w http.ResponseWriter, r *http.Request) {
	h.trigger(w, r, model.SyncTypeBidirectional, func(ctx context.Context, since *time.Time) error {
		_, err := h.service.RunBidirectional(ctx, since)
		return err
	})
}

// trigger は同期実行をバックグラウンドで起動し202を返す。
// 実行中の場合は起動せず409を返す。sinceには直近の成功実行の終了時刻を渡す。
func (h *SyncHandler) trigger(w http.ResponseWriter, r *http.Request, syncType model.SyncType, run func(ctx context.Context, since *time.Time) error) {
	if h.service.Busy() {
		writeAPIErrorResponse(w, http.StatusConflict, model.NewSyncInProgressError())
		return
	}

	var since *time.Time
	lastSuccess, err := h.finder.FindLatestSuccessful(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if lastSuccess != nil {
		since = lastSuccess.EndedAt
	}

	// リクエストのコンテキストはレスポンス後にキャンセルされるため使用しない
	go func() {
		if err := run(context.Background(), since); err != nil {
			h.logger.Error("バックグラウンド同期が失敗しました",
				slog.String("sync_type", string(syncType)),
				slog.String("error", err.Error()),
			)
		}
	}()

	response := map[string]any{
		"status":    "accepted",
		"sync_type": string(syncType),
		"message":   "同期処理を開始しました。進捗は /sync/status で確認できます。",
	}
	if since != nil {
		response["last_sync"] = since
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(response)
}

// aggregateRiskResponse は同期実行の集計値のAPIレスポンス。
type aggregateRiskResponse struct {
	RecordCount      int     `json:"record_count"`
	AvgInsuranceRisk float64 `json:"avg_insurance_risk"`
	AvgDiabetesRisk  float64 `json:"avg_diabetes_risk"`
}

// syncRunResponse は同期実行のAPIレスポンス。
type syncRunResponse struct {
	ID            string                 `json:"id"`
	SyncType      string                 `json:"sync_type"`
	Status        string                 `json:"status"`
	StartedAt     time.Time              `json:"started_at"`
	EndedAt       *time.Time             `json:"ended_at"`
	ErrorDetail   string                 `json:"error_detail,omitempty"`
	AggregateRisk *aggregateRiskResponse `json:"aggregate_risk,omitempty"`
}

// Status は直近の同期実行の状態を返す。
// GET /sync/status
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	run, err := h.finder.FindLatest(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if run == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewSyncNotFoundError())
		return
	}

	response := syncRunResponse{
		ID:          run.ID,
		SyncType:    string(run.Type),
		Status:      string(run.Status),
		StartedAt:   run.StartedAt,
		EndedAt:     run.EndedAt,
		ErrorDetail: run.ErrorDetail,
	}
	if run.AggregateRisk != nil {
		response.AggregateRisk = &aggregateRiskResponse{
			RecordCount:      run.AggregateRisk.RecordCount,
			AvgInsuranceRisk: run.AggregateRisk.AvgInsuranceRisk,
			AvgDiabetesRisk:  run.AggregateRisk.AvgDiabetesRisk,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
