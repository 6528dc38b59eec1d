package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/healthsync/internal/model"
	"github.com/hitoshi/healthsync/internal/repository"
	"github.com/hitoshi/healthsync/internal/risk"
)

// ErrSyncInProgress は同期実行中に別の実行がトリガーされたことを表す。
// 拒否されたトリガーに対してSyncRun行は作成されない。
var ErrSyncInProgress = errors.New("synchronization run is already in progress")

// SheetGateway は外部スプレッドシートへの読み書きのインターフェース。
type SheetGateway interface {
	ReadRange(ctx context.Context, logicalName string) ([][]string, error)
	ClearAndWrite(ctx context.Context, logicalName string, rows [][]string) error
}

// TextSanitizer は取り込んだ自由記述テキストのサニタイズのインターフェース。
type TextSanitizer interface {
	Sanitize(input string) string
}

// MetricsRecorder は同期メトリクス収集のインターフェース。
type MetricsRecorder interface {
	RecordSyncRun(syncType model.SyncType, status model.SyncStatus)
	RecordRowsImported(count int)
	RecordRowsExported(entity string, count int)
	RecordRowErrors(count int)
}

// ImportResult はインポート実行の結果を表す。
type ImportResult struct {
	RunID     string   `json:"run_id"`
	Processed int      `json:"processed"`
	Errors    []string `json:"errors,omitempty"`
}

// ExportResult はエクスポート実行の結果を表す。
type ExportResult struct {
	RunID       string            `json:"run_id"`
	Written     map[Entity]int    `json:"written"`
	RangeErrors map[Entity]string `json:"range_errors,omitempty"`
}

// BidirectionalResult は双方向同期の結果を表す。
type BidirectionalResult struct {
	RunID  string        `json:"run_id"`
	Import *ImportResult `json:"import"`
	Export *ExportResult `json:"export"`
}

// Orchestrator はレコードストアと外部シート間の同期を駆動する。
// 1回の呼び出しにつき1行のSyncRunを作成し、完了時に1回だけ更新する。
// 同時実行はミューテックスで排他し、実行中の2つ目のトリガーは
// ErrSyncInProgressで即座に拒否される。
type Orchestrator struct {
	userRepo     repository.UserRecordRepository
	activityRepo repository.HealthActivityRepository
	syncRunRepo  repository.SyncRunRepository
	gateway      SheetGateway
	engine       *risk.Engine
	sanitizer    TextSanitizer
	metrics      MetricsRecorder
	logger       *slog.Logger

	// runMu は実行単位の排他。保持中の二重トリガーを拒否する。
	runMu sync.Mutex
}

// NewOrchestrator はOrchestratorの新しいインスタンスを生成する。
func NewOrchestrator(
	userRepo repository.UserRecordRepository,
	activityRepo repository.HealthActivityRepository,
	syncRunRepo repository.SyncRunRepository,
	gateway SheetGateway,
	engine *risk.Engine,
	sanitizer TextSanitizer,
	metrics MetricsRecorder,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		userRepo:     userRepo,
		activityRepo: activityRepo,
		syncRunRepo:  syncRunRepo,
		gateway:      gateway,
		engine:       engine,
		sanitizer:    sanitizer,
		metrics:      metrics,
		logger:       logger,
	}
}

// Busy は同期実行が進行中かを返す。
// バックグラウンド起動前のトリガー側チェックに使用する。
// 確定的な排他は各実行メソッドのTryLockが行うため、戻り値は瞬間のスナップショット。
func (o *Orchestrator) Busy() bool {
	if o.runMu.TryLock() {
		o.runMu.Unlock()
		return false
	}
	return true
}

// ImportFromSheets はシートからレコードストアへのインポートを実行する。
// sinceは記録のみで行レベルのフィルタには使用しない
// （ゲートウェイがサーバー側フィルタを提供しないため常に全レンジを取得する）。
// 行単位の失敗は収集して継続し、取得自体の失敗のみ実行全体を失敗させる。
func (o *Orchestrator) ImportFromSheets(ctx context.Context, since *time.Time) (*ImportResult, error) {
	if !o.runMu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer o.runMu.Unlock()

	run, err := o.beginRun(ctx, model.SyncTypeSheetsToDB, since)
	if err != nil {
		return nil, err
	}

	result, aggregate, err := o.importPhase(ctx, run.ID)
	if err != nil {
		o.finishRun(ctx, run, model.SyncStatusFailure, err.Error(), nil)
		return nil, err
	}

	status := model.SyncStatusSuccess
	errorDetail := ""
	if len(result.Errors) > 0 {
		status = model.SyncStatusPartialSuccess
		errorDetail = strings.Join(result.Errors, "\n")
		aggregate = nil
	}
	o.finishRun(ctx, run, status, errorDetail, aggregate)

	return result, nil
}

// ExportToSheets はレコードストアからシートへのエクスポートを実行する。
// 3テーブルすべてを文字列グリッドに変換し、レンジごとにクリアして上書きする。
// レンジ単位の失敗は他のレンジの処理を止めない。
func (o *Orchestrator) ExportToSheets(ctx context.Context) (*ExportResult, error) {
	if !o.runMu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer o.runMu.Unlock()

	run, err := o.beginRun(ctx, model.SyncTypeDBToSheets, nil)
	if err != nil {
		return nil, err
	}

	result, err := o.exportPhase(ctx, run.ID)
	if err != nil {
		o.finishRun(ctx, run, model.SyncStatusFailure, err.Error(), nil)
		return nil, err
	}

	o.finishRun(ctx, run, model.SyncStatusSuccess, joinRangeErrors(result.RangeErrors), nil)
	return result, nil
}

// RunBidirectional はインポートとエクスポートを1つの外側SyncRunとして連続実行する。
// インポートフェーズが失敗してもエクスポートフェーズは無条件に実行される。
func (o *Orchestrator) RunBidirectional(ctx context.Context, since *time.Time) (*BidirectionalResult, error) {
	if !o.runMu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer o.runMu.Unlock()

	run, err := o.beginRun(ctx, model.SyncTypeBidirectional, since)
	if err != nil {
		return nil, err
	}

	result := &BidirectionalResult{RunID: run.ID}
	var phaseErrs []string

	importResult, aggregate, importErr := o.importPhase(ctx, run.ID)
	if importErr != nil {
		phaseErrs = append(phaseErrs, fmt.Sprintf("インポートフェーズが失敗しました: %s", importErr))
	} else {
		result.Import = importResult
		if len(importResult.Errors) > 0 {
			phaseErrs = append(phaseErrs, importResult.Errors...)
			aggregate = nil
		}
	}

	exportResult, exportErr := o.exportPhase(ctx, run.ID)
	if exportErr != nil {
		phaseErrs = append(phaseErrs, fmt.Sprintf("エクスポートフェーズが失敗しました: %s", exportErr))
	} else {
		result.Export = exportResult
		if detail := joinRangeErrors(exportResult.RangeErrors); detail != "" {
			phaseErrs = append(phaseErrs, detail)
		}
	}

	status := model.SyncStatusSuccess
	switch {
	case importErr != nil && exportErr != nil:
		status = model.SyncStatusFailure
	case importErr != nil || exportErr != nil || len(phaseErrs) > 0:
		status = model.SyncStatusPartialSuccess
	}
	if status != model.SyncStatusSuccess {
		aggregate = nil
	}
	o.finishRun(ctx, run, status, strings.Join(phaseErrs, "\n"), aggregate)

	if importErr != nil && exportErr != nil {
		return nil, fmt.Errorf("双方向同期に失敗しました: %s", strings.Join(phaseErrs, "\n"))
	}
	return result, nil
}

// importPhase はuser_dataレンジの全行を取り込む。
// 各行は型変換・サニタイズ・リスクスコア算出の後に個別に永続化され、
// 行単位の失敗では以降の行の処理を続行する。
func (o *Orchestrator) importPhase(ctx context.Context, runID string) (*ImportResult, *model.AggregateRisk, error) {
	rows, err := o.gateway.ReadRange(ctx, string(EntityUserRecords))
	if err != nil {
		o.logger.Error("シートからの行取得に失敗しました",
			slog.String("run_id", runID),
			slog.String("error", err.Error()),
		)
		return nil, nil, fmt.Errorf("シートからの行取得に失敗しました: %w", err)
	}

	result := &ImportResult{RunID: runID}
	var sumInsurance, sumDiabetes float64

	for i, row := range rows {
		record, err := o.importRow(ctx, row)
		if err != nil {
			rowErr := fmt.Sprintf("row %d: %s", i+1, err)
			result.Errors = append(result.Errors, rowErr)
			o.logger.Warn("行の取り込みに失敗しました",
				slog.String("run_id", runID),
				slog.Int("row", i+1),
				slog.String("error", err.Error()),
			)
			continue
		}
		result.Processed++
		sumInsurance += record.InsuranceRiskScore
		sumDiabetes += record.DiabetesRiskScore
	}

	o.metrics.RecordRowsImported(result.Processed)
	o.metrics.RecordRowErrors(len(result.Errors))

	o.logger.Info("インポートフェーズが完了しました",
		slog.String("run_id", runID),
		slog.Int("rows_processed", result.Processed),
		slog.Int("row_errors", len(result.Errors)),
	)

	var aggregate *model.AggregateRisk
	if result.Processed > 0 {
		aggregate = &model.AggregateRisk{
			RecordCount:      result.Processed,
			AvgInsuranceRisk: sumInsurance / float64(result.Processed),
			AvgDiabetesRisk:  sumDiabetes / float64(result.Processed),
		}
	}

	return result, aggregate, nil
}

// importRow は1行を利用者記録に変換して永続化する。
func (o *Orchestrator) importRow(ctx context.Context, row []string) (*model.UserRecord, error) {
	record, err := parseUserRow(row)
	if err != nil {
		return nil, err
	}

	record.Name = o.sanitizer.Sanitize(record.Name)
	record.Gender = o.sanitizer.Sanitize(record.Gender)
	record.Phone = o.sanitizer.Sanitize(record.Phone)
	for i, c := range record.MedicalHistory.Conditions {
		record.MedicalHistory.Conditions[i] = o.sanitizer.Sanitize(c)
	}
	for i, m := range record.MedicalHistory.Medications {
		record.MedicalHistory.Medications[i] = o.sanitizer.Sanitize(m)
	}

	now := time.Now()
	record.ID = uuid.NewString()
	record.Timestamp = now
	record.CreatedAt = now
	record.UpdatedAt = now
	record.BMI = model.ComputeBMI(record.Height, record.Weight)
	record.InsuranceRiskScore, record.DiabetesRiskScore = o.engine.Scores(risk.InputFromRecord(record))

	if err := o.userRepo.Create(ctx, record); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, fmt.Errorf("emailが重複しています: %s", record.Email)
		}
		return nil, fmt.Errorf("記録の保存に失敗しました: %s", err)
	}

	return record, nil
}

// exportPhase は3テーブルすべてをシートに書き出す。
// レンジ単位の失敗はRangeErrorsに記録し、残りのレンジの処理を継続する。
func (o *Orchestrator) exportPhase(ctx context.Context, runID string) (*ExportResult, error) {
	grids, err := o.loadExportGrids(ctx)
	if err != nil {
		o.logger.Error("エクスポート対象の読み取りに失敗しました",
			slog.String("run_id", runID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	result := &ExportResult{
		Written:     make(map[Entity]int),
		RangeErrors: make(map[Entity]string),
		RunID:       runID,
	}

	for _, grid := range grids {
		if err := o.gateway.ClearAndWrite(ctx, string(grid.entity), grid.rows); err != nil {
			result.RangeErrors[grid.entity] = err.Error()
			o.logger.Error("レンジへの書き出しに失敗しました",
				slog.String("run_id", runID),
				slog.String("entity", string(grid.entity)),
				slog.String("error", err.Error()),
			)
			continue
		}
		result.Written[grid.entity] = len(grid.rows)
		o.metrics.RecordRowsExported(string(grid.entity), len(grid.rows))
	}

	o.logger.Info("エクスポートフェーズが完了しました",
		slog.String("run_id", runID),
		slog.Int("range_errors", len(result.RangeErrors)),
	)

	return result, nil
}

// exportGrid は1エンティティ分のシリアライズ済みグリッド。
type exportGrid struct {
	entity Entity
	rows   [][]string
}

// loadExportGrids は3テーブルを読み取り文字列グリッドに変換する。
// いずれかのテーブルの読み取り失敗は実行全体の失敗となる。
func (o *Orchestrator) loadExportGrids(ctx context.Context) ([]exportGrid, error) {
	users, err := o.userRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("利用者記録の読み取りに失敗しました: %w", err)
	}
	activities, err := o.activityRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("活動イベントの読み取りに失敗しました: %w", err)
	}
	runs, err := o.syncRunRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("同期履歴の読み取りに失敗しました: %w", err)
	}

	userRows := make([][]string, len(users))
	for i, u := range users {
		userRows[i] = serializeUserRecord(u)
	}
	activityRows := make([][]string, len(activities))
	for i, a := range activities {
		activityRows[i] = serializeActivity(a)
	}
	runRows := make([][]string, len(runs))
	for i, r := range runs {
		runRows[i] = serializeSyncRun(r)
	}

	return []exportGrid{
		{entity: EntityUserRecords, rows: userRows},
		{entity: EntityActivities, rows: activityRows},
		{entity: EntitySyncRuns, rows: runRows},
	}, nil
}

// beginRun はin_progress状態のSyncRun行を作成する。
func (o *Orchestrator) beginRun(ctx context.Context, syncType model.SyncType, since *time.Time) (*model.SyncRun, error) {
	run := &model.SyncRun{
		ID:        uuid.NewString(),
		Type:      syncType,
		StartedAt: time.Now(),
		Status:    model.SyncStatusInProgress,
	}
	if err := o.syncRunRepo.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("同期実行の記録に失敗しました: %w", err)
	}

	attrs := []any{
		slog.String("run_id", run.ID),
		slog.String("sync_type", string(syncType)),
	}
	if since != nil {
		attrs = append(attrs, slog.Time("since", *since))
	}
	o.logger.Info("同期実行を開始しました", attrs...)

	return run, nil
}

// finishRun はSyncRun行を完了状態に更新する。
// 監査ログの更新失敗は実行結果を変えずログのみ残す。
func (o *Orchestrator) finishRun(ctx context.Context, run *model.SyncRun, status model.SyncStatus, errorDetail string, aggregate *model.AggregateRisk) {
	endedAt := time.Now()
	if err := o.syncRunRepo.Complete(ctx, run.ID, status, errorDetail, endedAt, aggregate); err != nil {
		o.logger.Error("同期実行の完了記録に失敗しました",
			slog.String("run_id", run.ID),
			slog.String("error", err.Error()),
		)
	}
	o.metrics.RecordSyncRun(run.Type, status)
	o.logger.Info("同期実行が完了しました",
		slog.String("run_id", run.ID),
		slog.String("sync_type", string(run.Type)),
		slog.String("status", string(status)),
		slog.Float64("duration_ms", float64(endedAt.Sub(run.StartedAt).Milliseconds())),
	)
}

// joinRangeErrors はレンジ別エラーを監査ログ用の1文字列にまとめる。
func joinRangeErrors(rangeErrors map[Entity]string) string {
	if len(rangeErrors) == 0 {
		return ""
	}
	parts := make([]string, 0, len(rangeErrors))
	for _, entity := range []Entity{EntityUserRecords, EntityActivities, EntitySyncRuns} {
		if msg, ok := rangeErrors[entity]; ok {
			parts = append(parts, fmt.Sprintf("%s: %s", entity, msg))
		}
	}
	return strings.Join(parts, "\n")
}
