// Package model はドメインモデルを定義する。
package model

import "time"

// UserRecord は利用者の健康・生活習慣データと算出済みリスクスコアを表す。
// リスクスコアは常に書き込み時に他フィールドから導出され、
// APIの入力として直接受け付けることはない。
type UserRecord struct {
	ID        string
	Timestamp time.Time

	// 個人情報
	Name   string
	Age    int
	Gender string
	Email  string // 一意制約あり
	Phone  string

	// 健康指標
	Height         float64 // cm
	Weight         float64 // kg
	BMI            float64 // 導出値
	LifestyleScore float64

	// リスクスコア（[0,1]、算出専用）
	InsuranceRiskScore float64
	DiabetesRiskScore  float64

	MedicalHistory   MedicalHistory
	LifestyleFactors LifestyleFactors

	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MedicalHistory は既往歴・服薬情報を表す。
// jsonbカラムとして保存される。
type MedicalHistory struct {
	Conditions  []string `json:"conditions"`
	Medications []string `json:"medications"`
}

// LifestyleFactors は生活習慣カテゴリを表す。
// jsonbカラムとして保存される。各フィールドは小文字カテゴリ名
// （例: smoking_status=never, exercise_frequency=daily, diet_type=healthy）。
type LifestyleFactors struct {
	SmokingStatus     string `json:"smoking_status"`
	ExerciseFrequency string `json:"exercise_frequency"`
	DietType          string `json:"diet_type"`
}

// ComputeBMI は身長（cm）と体重（kg）からBMIを計算する。
// 身長が0以下の場合は0を返す。
func ComputeBMI(heightCm, weightKg float64) float64 {
	if heightCm <= 0 {
		return 0
	}
	heightM := heightCm / 100
	return weightKg / (heightM * heightM)
}
