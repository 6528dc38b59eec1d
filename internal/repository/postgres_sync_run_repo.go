package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hitoshi/healthsync/internal/model"
)

const syncRunColumns = `id, sync_type, started_at, ended_at, status, error_detail, aggregate_risk`

// PostgresSyncRunRepo はPostgreSQLを使用した同期監査ログリポジトリ。
type PostgresSyncRunRepo struct {
	db *sql.DB
}

// NewPostgresSyncRunRepo はPostgresSyncRunRepoを生成する。
func NewPostgresSyncRunRepo(db *sql.DB) *PostgresSyncRunRepo {
	return &PostgresSyncRunRepo{db: db}
}

// Create は同期実行の開始行を作成する。
func (r *PostgresSyncRunRepo) Create(ctx context.Context, run *model.SyncRun) error {
	aggregateJSON, err := marshalAggregate(run.AggregateRisk)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO sync_runs (`+syncRunColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.Type, run.StartedAt, nullTime(run.EndedAt),
		run.Status, run.ErrorDetail, aggregateJSON,
	)
	if err != nil {
		return fmt.Errorf("同期実行の作成に失敗しました: %w", err)
	}
	return nil
}

// Complete は同期実行を完了状態に1回だけ更新する。
func (r *PostgresSyncRunRepo) Complete(ctx context.Context, id string, status model.SyncStatus, errorDetail string, endedAt time.Time, aggregate *model.AggregateRisk) error {
	aggregateJSON, err := marshalAggregate(aggregate)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE sync_runs
		 SET status = $2, error_detail = $3, ended_at = $4, aggregate_risk = $5
		 WHERE id = $1`,
		id, status, errorDetail, endedAt, aggregateJSON,
	)
	if err != nil {
		return fmt.Errorf("同期実行の完了更新に失敗しました: %w", err)
	}
	return nil
}

// FindLatest は開始時刻が最新の実行を返す。履歴がない場合はnilを返す。
func (r *PostgresSyncRunRepo) FindLatest(ctx context.Context) (*model.SyncRun, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+syncRunColumns+` FROM sync_runs
		 ORDER BY started_at DESC LIMIT 1`)

	run, err := scanSyncRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("最新の同期実行の取得に失敗しました: %w", err)
	}
	return run, nil
}

// FindLatestSuccessful はstatus=successのうち終了時刻が最新の実行を返す。
// 該当がない場合はnilを返す。
func (r *PostgresSyncRunRepo) FindLatestSuccessful(ctx context.Context) (*model.SyncRun, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+syncRunColumns+` FROM sync_runs
		 WHERE status = $1 AND ended_at IS NOT NULL
		 ORDER BY ended_at DESC LIMIT 1`,
		model.SyncStatusSuccess)

	run, err := scanSyncRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("最新の成功同期の取得に失敗しました: %w", err)
	}
	return run, nil
}

// ListAll は全実行履歴を開始時刻昇順で返す。シートへのエクスポートに使用する。
func (r *PostgresSyncRunRepo) ListAll(ctx context.Context) ([]*model.SyncRun, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+syncRunColumns+` FROM sync_runs ORDER BY started_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("同期履歴全件の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var runs []*model.SyncRun
	for rows.Next() {
		run, err := scanSyncRun(rows)
		if err != nil {
			return nil, fmt.Errorf("同期履歴の読み取りに失敗しました: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("同期履歴の走査に失敗しました: %w", err)
	}
	return runs, nil
}

// HasInProgress はin_progress状態の実行が存在するかを返す。
func (r *PostgresSyncRunRepo) HasInProgress(ctx context.Context) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM sync_runs WHERE status = $1)`,
		model.SyncStatusInProgress,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("実行中同期の確認に失敗しました: %w", err)
	}
	return exists, nil
}

// scanSyncRun は1行をSyncRunに変換する。
func scanSyncRun(row rowScanner) (*model.SyncRun, error) {
	run := &model.SyncRun{}
	var endedAt sql.NullTime
	var aggregateJSON []byte

	err := row.Scan(
		&run.ID, &run.Type, &run.StartedAt, &endedAt,
		&run.Status, &run.ErrorDetail, &aggregateJSON,
	)
	if err != nil {
		return nil, err
	}

	if endedAt.Valid {
		t := endedAt.Time
		run.EndedAt = &t
	}
	if len(aggregateJSON) > 0 {
		run.AggregateRisk = &model.AggregateRisk{}
		if err := json.Unmarshal(aggregateJSON, run.AggregateRisk); err != nil {
			return nil, fmt.Errorf("リスク集計のJSON解析に失敗しました: %w", err)
		}
	}

	return run, nil
}

// marshalAggregate はAggregateRiskをjsonbカラム用に変換する。nilはNULLとして扱う。
func marshalAggregate(aggregate *model.AggregateRisk) ([]byte, error) {
	if aggregate == nil {
		return nil, nil
	}
	b, err := json.Marshal(aggregate)
	if err != nil {
		return nil, fmt.Errorf("リスク集計のJSON変換に失敗しました: %w", err)
	}
	return b, nil
}

// nullTime は*time.Timeをsql.NullTimeに変換する。
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
