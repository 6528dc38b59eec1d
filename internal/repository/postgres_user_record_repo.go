package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/healthsync/internal/model"
)

// ErrDuplicateEmail はemailの一意制約違反を表す。
var ErrDuplicateEmail = errors.New("email is already registered")

// uniqueViolation はPostgreSQLの一意制約違反のSQLSTATEコード。
const uniqueViolation = "23505"

const userRecordColumns = `id, ts, name, age, gender, email, phone,
       height_cm, weight_kg, bmi, lifestyle_score,
       insurance_risk_score, diabetes_risk_score,
       medical_history, lifestyle_factors, is_active, created_at, updated_at`

// PostgresUserRecordRepo はPostgreSQLを使用した利用者記録リポジトリ。
type PostgresUserRecordRepo struct {
	db *sql.DB
}

// NewPostgresUserRecordRepo はPostgresUserRecordRepoを生成する。
func NewPostgresUserRecordRepo(db *sql.DB) *PostgresUserRecordRepo {
	return &PostgresUserRecordRepo{db: db}
}

// Create は利用者記録を作成する。email重複時はErrDuplicateEmailを返す。
func (r *PostgresUserRecordRepo) Create(ctx context.Context, record *model.UserRecord) error {
	medicalJSON, err := json.Marshal(record.MedicalHistory)
	if err != nil {
		return fmt.Errorf("既往歴のJSON変換に失敗しました: %w", err)
	}
	lifestyleJSON, err := json.Marshal(record.LifestyleFactors)
	if err != nil {
		return fmt.Errorf("生活習慣のJSON変換に失敗しました: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO user_records (`+userRecordColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		record.ID, record.Timestamp, record.Name, record.Age, record.Gender,
		record.Email, record.Phone,
		record.Height, record.Weight, record.BMI, record.LifestyleScore,
		record.InsuranceRiskScore, record.DiabetesRiskScore,
		medicalJSON, lifestyleJSON, record.IsActive,
		record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("利用者記録の作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDの記録を取得する。見つからない場合はnilを返す。
func (r *PostgresUserRecordRepo) FindByID(ctx context.Context, id string) (*model.UserRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userRecordColumns+` FROM user_records WHERE id = $1`, id)

	record, err := scanUserRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("利用者記録の取得に失敗しました: %w", err)
	}
	return record, nil
}

// FindByEmail はメールアドレスで記録を検索する。見つからない場合はnilを返す。
func (r *PostgresUserRecordRepo) FindByEmail(ctx context.Context, email string) (*model.UserRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userRecordColumns+` FROM user_records WHERE email = $1`, email)

	record, err := scanUserRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("メールアドレスによる記録の検索に失敗しました: %w", err)
	}
	return record, nil
}

// List は作成日時昇順でoffset/limitページングした記録一覧を返す。
func (r *PostgresUserRecordRepo) List(ctx context.Context, offset, limit int) ([]*model.UserRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userRecordColumns+` FROM user_records
		 ORDER BY created_at ASC, id ASC
		 OFFSET $1 LIMIT $2`,
		offset, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("利用者記録一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectUserRecords(rows)
}

// ListAll は全記録を作成日時昇順で返す。シートへのエクスポートに使用する。
func (r *PostgresUserRecordRepo) ListAll(ctx context.Context) ([]*model.UserRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userRecordColumns+` FROM user_records ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("利用者記録全件の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectUserRecords(rows)
}

// Count は記録の総数を返す。
func (r *PostgresUserRecordRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_records`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("利用者記録数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// DeleteAll は全記録を削除し、削除行数を返す。
func (r *PostgresUserRecordRepo) DeleteAll(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM user_records`)
	if err != nil {
		return 0, fmt.Errorf("利用者記録の全削除に失敗しました: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除行数の取得に失敗しました: %w", err)
	}
	return affected, nil
}

// rowScanner はsql.Rowとsql.Rowsを共通に扱うためのインターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanUserRecord は1行をUserRecordに変換する。
func scanUserRecord(row rowScanner) (*model.UserRecord, error) {
	record := &model.UserRecord{}
	var medicalJSON, lifestyleJSON []byte

	err := row.Scan(
		&record.ID, &record.Timestamp, &record.Name, &record.Age, &record.Gender,
		&record.Email, &record.Phone,
		&record.Height, &record.Weight, &record.BMI, &record.LifestyleScore,
		&record.InsuranceRiskScore, &record.DiabetesRiskScore,
		&medicalJSON, &lifestyleJSON, &record.IsActive,
		&record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(medicalJSON) > 0 {
		if err := json.Unmarshal(medicalJSON, &record.MedicalHistory); err != nil {
			return nil, fmt.Errorf("既往歴のJSON解析に失敗しました: %w", err)
		}
	}
	if len(lifestyleJSON) > 0 {
		if err := json.Unmarshal(lifestyleJSON, &record.LifestyleFactors); err != nil {
			return nil, fmt.Errorf("生活習慣のJSON解析に失敗しました: %w", err)
		}
	}

	return record, nil
}

// collectUserRecords は複数行をUserRecordのスライスに変換する。
func collectUserRecords(rows *sql.Rows) ([]*model.UserRecord, error) {
	var records []*model.UserRecord
	for rows.Next() {
		record, err := scanUserRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("利用者記録の読み取りに失敗しました: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("利用者記録の走査に失敗しました: %w", err)
	}
	return records, nil
}
