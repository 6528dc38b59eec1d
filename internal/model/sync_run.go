// Package model はドメインモデルを定義する。
package model

import "time"

// SyncRun は同期実行1回分の監査ログエントリを表す。
// オーケストレータの呼び出しごとに開始時へ1行作成され、
// 完了時に1回だけ更新される。プロセスがクラッシュした場合は
// in_progressのまま残る（クラッシュリカバリは行わない）。
type SyncRun struct {
	ID          string
	Type        SyncType
	StartedAt   time.Time
	EndedAt     *time.Time // 完了までnil
	Status      SyncStatus
	ErrorDetail string

	// AggregateRisk はインポート成功時に記録される集計値。未集計の場合はnil。
	AggregateRisk *AggregateRisk
}

// SyncType は同期の方向を表す。
type SyncType string

const (
	// SyncTypeSheetsToDB はシートからデータベースへのインポート。
	SyncTypeSheetsToDB SyncType = "sheets_to_db"
	// SyncTypeDBToSheets はデータベースからシートへのエクスポート。
	SyncTypeDBToSheets SyncType = "db_to_sheets"
	// SyncTypeBidirectional はインポートとエクスポートを連続実行する双方向同期。
	SyncTypeBidirectional SyncType = "bidirectional"
)

// SyncStatus は同期実行の状態を表す。
type SyncStatus string

const (
	// SyncStatusPending は未開始状態。
	SyncStatusPending SyncStatus = "pending"
	// SyncStatusInProgress は実行中状態。
	SyncStatusInProgress SyncStatus = "in_progress"
	// SyncStatusSuccess は全行成功での完了状態。
	SyncStatusSuccess SyncStatus = "success"
	// SyncStatusPartialSuccess は一部の行が失敗した完了状態。
	SyncStatusPartialSuccess SyncStatus = "partial_success"
	// SyncStatusFailure は実行全体の失敗状態。
	SyncStatusFailure SyncStatus = "failure"
)

// AggregateRisk は同期実行1回分のリスクスコア集計を表す。
// jsonbカラムとして保存される。
type AggregateRisk struct {
	RecordCount      int     `json:"record_count"`
	AvgInsuranceRisk float64 `json:"avg_insurance_risk"`
	AvgDiabetesRisk  float64 `json:"avg_diabetes_risk"`
}
