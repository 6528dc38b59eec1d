// Package risk は健康データからのヒューリスティックなリスクスコア算出を提供する。
//
// 保険リスクと糖尿病リスクの2スコアを、固定重みによる部分スコアの
// 凸結合として計算する。各部分スコアは決定的な段階関数または
// カテゴリ参照表であり、外部依存を持たない純粋な計算のみを行う。
// スコアは常に[0,1]に正規化される。
package risk

import (
	"strings"

	"github.com/hitoshi/healthsync/internal/model"
)

// sentinelScore は部分スコアを算出できない場合の既定値。
const sentinelScore = 0.5

// 保険リスクの重み（合計1.0）
const (
	insWeightAge      = 0.20
	insWeightBMI      = 0.15
	insWeightSmoking  = 0.25
	insWeightExercise = 0.15
	insWeightMedical  = 0.25
)

// 糖尿病リスクの重み（合計1.0）
const (
	diaWeightAge      = 0.15
	diaWeightBMI      = 0.20
	diaWeightFamily   = 0.25
	diaWeightExercise = 0.20
	diaWeightDiet     = 0.20
)

// Input はリスク算出に必要な入力を表す。
type Input struct {
	Age               int
	HeightCm          float64
	WeightKg          float64
	SmokingStatus     string
	ExerciseFrequency string
	DietType          string
	Conditions        []string // 既往歴・家族歴の疾患名
}

// InputFromRecord はUserRecordからリスク算出入力を構築する。
func InputFromRecord(r *model.UserRecord) Input {
	return Input{
		Age:               r.Age,
		HeightCm:          r.Height,
		WeightKg:          r.Weight,
		SmokingStatus:     r.LifestyleFactors.SmokingStatus,
		ExerciseFrequency: r.LifestyleFactors.ExerciseFrequency,
		DietType:          r.LifestyleFactors.DietType,
		Conditions:        r.MedicalHistory.Conditions,
	}
}

// Engine はリスクスコア算出エンジン。状態を持たず並行利用できる。
type Engine struct{}

// NewEngine はEngineを生成する。
func NewEngine() *Engine {
	return &Engine{}
}

// Scores は保険リスクと糖尿病リスクをまとめて算出する。
func (e *Engine) Scores(in Input) (insurance, diabetes float64) {
	return e.InsuranceRisk(in), e.DiabetesRisk(in)
}

// InsuranceRisk は保険リスクスコアを算出する。戻り値は[0,1]。
func (e *Engine) InsuranceRisk(in Input) float64 {
	score := ageRisk(in.Age, false)*insWeightAge +
		bmiRisk(in.HeightCm, in.WeightKg)*insWeightBMI +
		smokingRisk(in.SmokingStatus)*insWeightSmoking +
		exerciseRisk(in.ExerciseFrequency)*insWeightExercise +
		medicalHistoryRisk(in.Conditions)*insWeightMedical
	return clamp(score)
}

// DiabetesRisk は糖尿病リスクスコアを算出する。戻り値は[0,1]。
func (e *Engine) DiabetesRisk(in Input) float64 {
	score := ageRisk(in.Age, true)*diaWeightAge +
		bmiRisk(in.HeightCm, in.WeightKg)*diaWeightBMI +
		familyHistoryRisk(in.Conditions)*diaWeightFamily +
		exerciseRisk(in.ExerciseFrequency)*diaWeightExercise +
		dietRisk(in.DietType)*diaWeightDiet
	return clamp(score)
}

// ageRisk は年齢リスクを返す。糖尿病文脈では閾値が低めに設定される。
func ageRisk(age int, diabetesContext bool) float64 {
	if diabetesContext {
		switch {
		case age > 65:
			return 1.0
		case age > 45:
			return 0.7
		case age > 35:
			return 0.4
		}
		return 0.2
	}
	switch {
	case age > 70:
		return 1.0
	case age > 50:
		return 0.7
	case age > 30:
		return 0.4
	}
	return 0.2
}

// bmiRisk はBMIリスクを返す。身長が0以下の場合は算出不能として既定値を返す。
func bmiRisk(heightCm, weightKg float64) float64 {
	if heightCm <= 0 {
		return sentinelScore
	}
	heightM := heightCm / 100
	bmi := weightKg / (heightM * heightM)
	switch {
	case bmi > 35:
		return 1.0
	case bmi > 30:
		return 0.8
	case bmi > 25:
		return 0.6
	case bmi < 18.5:
		return 0.4
	}
	return 0.2
}

// smokingRisk は喫煙状況リスクを返す。未知・未入力のカテゴリは既定値。
func smokingRisk(status string) float64 {
	switch strings.ToLower(status) {
	case "current":
		return 1.0
	case "former":
		return 0.6
	case "never":
		return 0.1
	}
	return sentinelScore
}

// exerciseRisk は運動頻度リスクを返す。未知・未入力のカテゴリは既定値。
func exerciseRisk(frequency string) float64 {
	switch strings.ToLower(frequency) {
	case "never":
		return 1.0
	case "rarely":
		return 0.8
	case "sometimes":
		return 0.6
	case "regularly":
		return 0.3
	case "daily":
		return 0.1
	}
	return sentinelScore
}

// dietRisk は食習慣リスクを返す。未知・未入力のカテゴリは既定値。
func dietRisk(dietType string) float64 {
	switch strings.ToLower(dietType) {
	case "unhealthy":
		return 1.0
	case "average":
		return 0.5
	case "healthy":
		return 0.2
	case "very_healthy":
		return 0.1
	}
	return sentinelScore
}

// medicalHistoryRisk は既往歴リスクを返す。基礎リスク0.3に対し、
// 高リスク疾患は1件につき+0.3、中リスク疾患は+0.15を加算し1.0で打ち切る。
// 疾患名は前後空白を除去して大文字小文字を無視して照合する。
// 重複した疾患名は出現回数ぶん加算する（重複排除は行わない）。
func medicalHistoryRisk(conditions []string) float64 {
	risk := 0.3
	for _, c := range conditions {
		switch strings.ToLower(strings.TrimSpace(c)) {
		case "heart disease", "diabetes", "cancer":
			risk += 0.3
		case "hypertension", "high cholesterol":
			risk += 0.15
		}
	}
	return min(risk, 1.0)
}

// familyHistoryRisk は家族歴リスクを返す。基礎リスク0.2に対し、
// diabetesが含まれれば+0.4、heart diseaseが含まれれば+0.2を加算し1.0で打ち切る。
func familyHistoryRisk(conditions []string) float64 {
	risk := 0.2
	var hasDiabetes, hasHeartDisease bool
	for _, c := range conditions {
		switch strings.ToLower(strings.TrimSpace(c)) {
		case "diabetes":
			hasDiabetes = true
		case "heart disease":
			hasHeartDisease = true
		}
	}
	if hasDiabetes {
		risk += 0.4
	}
	if hasHeartDisease {
		risk += 0.2
	}
	return min(risk, 1.0)
}

// clamp はスコアを[0,1]に正規化する。
func clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
