// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/healthsync/internal/model"
)

// UserRecordRepository は利用者記録の永続化インターフェース。
type UserRecordRepository interface {
	// Create は利用者記録を作成する。email重複時はErrDuplicateEmailを返す。
	Create(ctx context.Context, record *model.UserRecord) error

	// FindByID は指定IDの記録を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.UserRecord, error)

	// FindByEmail はメールアドレスで記録を検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.UserRecord, error)

	// List は作成日時昇順でoffset/limitページングした記録一覧を返す。
	List(ctx context.Context, offset, limit int) ([]*model.UserRecord, error)

	// ListAll は全記録を作成日時昇順で返す。シートへのエクスポートに使用する。
	ListAll(ctx context.Context) ([]*model.UserRecord, error)

	// Count は記録の総数を返す。
	Count(ctx context.Context) (int, error)

	// DeleteAll は全記録を削除し、削除行数を返す。
	DeleteAll(ctx context.Context) (int64, error)
}

// HealthActivityRepository は健康活動イベントの永続化インターフェース。
// 同期の観点では読み取り専用（エクスポートのみ）だが、
// 活動記録APIからの作成も提供する。
type HealthActivityRepository interface {
	// Create は健康活動イベントを作成する。
	Create(ctx context.Context, activity *model.HealthActivity) error

	// ListByUserID は指定ユーザーの活動イベントを時刻降順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.HealthActivity, error)

	// ListAll は全活動イベントを時刻昇順で返す。シートへのエクスポートに使用する。
	ListAll(ctx context.Context) ([]*model.HealthActivity, error)
}

// SyncRunRepository は同期監査ログの永続化インターフェース。
type SyncRunRepository interface {
	// Create は同期実行の開始行を作成する。
	Create(ctx context.Context, run *model.SyncRun) error

	// Complete は同期実行を完了状態に1回だけ更新する。
	Complete(ctx context.Context, id string, status model.SyncStatus, errorDetail string, endedAt time.Time, aggregate *model.AggregateRisk) error

	// FindLatest は開始時刻が最新の実行を返す。履歴がない場合はnilを返す。
	FindLatest(ctx context.Context) (*model.SyncRun, error)

	// FindLatestSuccessful はstatus=successのうち終了時刻が最新の実行を返す。
	// 該当がない場合はnilを返す。
	FindLatestSuccessful(ctx context.Context) (*model.SyncRun, error)

	// ListAll は全実行履歴を開始時刻昇順で返す。シートへのエクスポートに使用する。
	ListAll(ctx context.Context) ([]*model.SyncRun, error)

	// HasInProgress はin_progress状態の実行が存在するかを返す。
	HasInProgress(ctx context.Context) (bool, error)
}
