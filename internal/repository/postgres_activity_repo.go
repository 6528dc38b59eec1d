package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/healthsync/internal/model"
)

const activityColumns = `id, user_id, activity_type, ts, duration_minutes, points_earned, details, created_at`

// PostgresHealthActivityRepo はPostgreSQLを使用した健康活動リポジトリ。
type PostgresHealthActivityRepo struct {
	db *sql.DB
}

// NewPostgresHealthActivityRepo はPostgresHealthActivityRepoを生成する。
func NewPostgresHealthActivityRepo(db *sql.DB) *PostgresHealthActivityRepo {
	return &PostgresHealthActivityRepo{db: db}
}

// Create は健康活動イベントを作成する。
func (r *PostgresHealthActivityRepo) Create(ctx context.Context, activity *model.HealthActivity) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO health_activities (`+activityColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		activity.ID, activity.UserID, activity.ActivityType, activity.Timestamp,
		activity.DurationMinutes, activity.PointsEarned, activity.Details,
		activity.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("健康活動の作成に失敗しました: %w", err)
	}
	return nil
}

// ListByUserID は指定ユーザーの活動イベントを時刻降順で返す。
func (r *PostgresHealthActivityRepo) ListByUserID(ctx context.Context, userID string) ([]*model.HealthActivity, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+activityColumns+` FROM health_activities
		 WHERE user_id = $1 ORDER BY ts DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("健康活動一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectActivities(rows)
}

// ListAll は全活動イベントを時刻昇順で返す。シートへのエクスポートに使用する。
func (r *PostgresHealthActivityRepo) ListAll(ctx context.Context) ([]*model.HealthActivity, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+activityColumns+` FROM health_activities ORDER BY ts ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("健康活動全件の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectActivities(rows)
}

// collectActivities は複数行をHealthActivityのスライスに変換する。
func collectActivities(rows *sql.Rows) ([]*model.HealthActivity, error) {
	var activities []*model.HealthActivity
	for rows.Next() {
		a := &model.HealthActivity{}
		err := rows.Scan(
			&a.ID, &a.UserID, &a.ActivityType, &a.Timestamp,
			&a.DurationMinutes, &a.PointsEarned, &a.Details, &a.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("健康活動の読み取りに失敗しました: %w", err)
		}
		activities = append(activities, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("健康活動の走査に失敗しました: %w", err)
	}
	return activities, nil
}
