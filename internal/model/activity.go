// Package model はドメインモデルを定義する。
package model

import "time"

// HealthActivity は利用者の健康活動イベントを表す。
// UserIDはUserRecordへの弱参照であり、外部キー制約は張らない
// （シートから取り込んだ記録は対応するユーザーが存在しない場合がある）。
// 同期の観点では読み取り専用で、シートへのエクスポート対象だが
// インポートで書き戻されることはない。
type HealthActivity struct {
	ID              string
	UserID          string
	ActivityType    string
	Timestamp       time.Time
	DurationMinutes int
	PointsEarned    int
	Details         string // 自由記述。保存前にサニタイズする
	CreatedAt       time.Time
}
