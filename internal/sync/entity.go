// Package sync はレコードストアと外部スプレッドシート間の同期を提供する。
//
// 同期は方向ごとの操作（インポート・エクスポート・双方向）として実行され、
// 各実行はSyncRunとして監査ログに記録される。エンティティごとの
// カラム順とシリアライザはエンティティ記述子に集約し、
// エクスポート処理はエンティティ非依存の単一のループで行う。
package sync

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/healthsync/internal/model"
)

// Entity は同期対象のエンティティ種別を表す。
// 値はゲートウェイの論理レンジ名と一致する。
type Entity string

const (
	// EntityUserRecords は利用者記録。インポートとエクスポート両方の対象。
	EntityUserRecords Entity = "user_data"
	// EntityActivities は健康活動イベント。エクスポートのみ。
	EntityActivities Entity = "health_activities"
	// EntitySyncRuns は同期監査ログ。エクスポートのみ。
	EntitySyncRuns Entity = "sync_runs"
)

// user_dataレンジのカラム順。インポートとエクスポートで共通。
// インポート時はサーバー側で導出・付与されるカラム
// （id, timestamp, bmi, リスクスコア, created_at, updated_at）を無視する。
const (
	colUserID = iota
	colUserTimestamp
	colUserName
	colUserAge
	colUserGender
	colUserEmail
	colUserPhone
	colUserHeight
	colUserWeight
	colUserBMI
	colUserLifestyleScore
	colUserInsuranceRisk
	colUserDiabetesRisk
	colUserConditions
	colUserMedications
	colUserSmokingStatus
	colUserExerciseFrequency
	colUserDietType
	colUserIsActive
	colUserCreatedAt
	colUserUpdatedAt
	userColumnCount
)

// listSeparator は既往歴・服薬リストのセル内区切り文字。
const listSeparator = "; "

// serializeUserRecord は利用者記録を1行のセル列に変換する。
func serializeUserRecord(r *model.UserRecord) []string {
	row := make([]string, userColumnCount)
	row[colUserID] = r.ID
	row[colUserTimestamp] = formatTime(r.Timestamp)
	row[colUserName] = r.Name
	row[colUserAge] = strconv.Itoa(r.Age)
	row[colUserGender] = r.Gender
	row[colUserEmail] = r.Email
	row[colUserPhone] = r.Phone
	row[colUserHeight] = formatFloat(r.Height)
	row[colUserWeight] = formatFloat(r.Weight)
	row[colUserBMI] = formatFloat(r.BMI)
	row[colUserLifestyleScore] = formatFloat(r.LifestyleScore)
	row[colUserInsuranceRisk] = formatFloat(r.InsuranceRiskScore)
	row[colUserDiabetesRisk] = formatFloat(r.DiabetesRiskScore)
	row[colUserConditions] = strings.Join(r.MedicalHistory.Conditions, listSeparator)
	row[colUserMedications] = strings.Join(r.MedicalHistory.Medications, listSeparator)
	row[colUserSmokingStatus] = r.LifestyleFactors.SmokingStatus
	row[colUserExerciseFrequency] = r.LifestyleFactors.ExerciseFrequency
	row[colUserDietType] = r.LifestyleFactors.DietType
	row[colUserIsActive] = strconv.FormatBool(r.IsActive)
	row[colUserCreatedAt] = formatTime(r.CreatedAt)
	row[colUserUpdatedAt] = formatTime(r.UpdatedAt)
	return row
}

// parseUserRow はシートの1行を利用者記録に変換する。
// 数値の解析失敗は0、真偽値は大文字小文字を区別しない"true"との一致で扱う。
// 導出・付与カラムは読み飛ばし、呼び出し元でBMI・リスクスコア・時刻を設定する。
// nameとemailが空の行はエラーを返す。
func parseUserRow(row []string) (*model.UserRecord, error) {
	if len(row) < userColumnCount {
		padded := make([]string, userColumnCount)
		copy(padded, row)
		row = padded
	}

	name := strings.TrimSpace(row[colUserName])
	email := strings.TrimSpace(row[colUserEmail])
	if name == "" {
		return nil, fmt.Errorf("nameが空です")
	}
	if email == "" {
		return nil, fmt.Errorf("emailが空です")
	}

	return &model.UserRecord{
		Name:           name,
		Age:            coerceInt(row[colUserAge]),
		Gender:         strings.TrimSpace(row[colUserGender]),
		Email:          email,
		Phone:          strings.TrimSpace(row[colUserPhone]),
		Height:         coerceFloat(row[colUserHeight]),
		Weight:         coerceFloat(row[colUserWeight]),
		LifestyleScore: coerceFloat(row[colUserLifestyleScore]),
		MedicalHistory: model.MedicalHistory{
			Conditions:  splitList(row[colUserConditions]),
			Medications: splitList(row[colUserMedications]),
		},
		LifestyleFactors: model.LifestyleFactors{
			SmokingStatus:     strings.TrimSpace(row[colUserSmokingStatus]),
			ExerciseFrequency: strings.TrimSpace(row[colUserExerciseFrequency]),
			DietType:          strings.TrimSpace(row[colUserDietType]),
		},
		IsActive: coerceBool(row[colUserIsActive]),
	}, nil
}

// serializeActivity は健康活動イベントを1行のセル列に変換する。
// カラム順: id, user_id, activity_type, timestamp, duration_minutes,
// points_earned, details, created_at。
func serializeActivity(a *model.HealthActivity) []string {
	return []string{
		a.ID,
		a.UserID,
		a.ActivityType,
		formatTime(a.Timestamp),
		strconv.Itoa(a.DurationMinutes),
		strconv.Itoa(a.PointsEarned),
		a.Details,
		formatTime(a.CreatedAt),
	}
}

// serializeSyncRun は同期実行を1行のセル列に変換する。
// カラム順: id, sync_type, started_at, ended_at, status, error_detail,
// record_count, avg_insurance_risk, avg_diabetes_risk。
// 未完了（ended_at=nil）や未集計（aggregate=nil）のカラムは空セルになる。
func serializeSyncRun(run *model.SyncRun) []string {
	endedAt := ""
	if run.EndedAt != nil {
		endedAt = formatTime(*run.EndedAt)
	}
	recordCount, avgInsurance, avgDiabetes := "", "", ""
	if run.AggregateRisk != nil {
		recordCount = strconv.Itoa(run.AggregateRisk.RecordCount)
		avgInsurance = formatFloat(run.AggregateRisk.AvgInsuranceRisk)
		avgDiabetes = formatFloat(run.AggregateRisk.AvgDiabetesRisk)
	}
	return []string{
		run.ID,
		string(run.Type),
		formatTime(run.StartedAt),
		endedAt,
		string(run.Status),
		run.ErrorDetail,
		recordCount,
		avgInsurance,
		avgDiabetes,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// coerceInt は文字列を整数に変換する。解析失敗時は0。
func coerceInt(s string) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return v
}

// coerceFloat は文字列を浮動小数点数に変換する。解析失敗時は0。
func coerceFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

// coerceBool は大文字小文字を区別しない"true"との一致で真偽値を判定する。
func coerceBool(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "true")
}

// splitList はセル内のリスト表現を要素に分割する。空セルはnil。
func splitList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ";")
	items := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			items = append(items, p)
		}
	}
	return items
}
