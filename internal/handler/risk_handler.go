package handler

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/healthsync/internal/model"
	"github.com/hitoshi/healthsync/internal/risk"
)

// RiskHandler はステートレスなリスクスコア算出のHTTPハンドラー。
// 何も永続化せず、入力からスコアを計算して返すのみ。
type RiskHandler struct {
	scorer RiskScorer
}

// NewRiskHandler はRiskHandlerを生成する。
func NewRiskHandler(scorer RiskScorer) *RiskHandler {
	return &RiskHandler{scorer: scorer}
}

// riskScoresRequest はリスク算出リクエストのボディ。
type riskScoresRequest struct {
	Age              int                     `json:"age"`
	Height           float64                 `json:"height"`
	Weight           float64                 `json:"weight"`
	MedicalHistory   medicalHistoryPayload   `json:"medical_history"`
	LifestyleFactors lifestyleFactorsPayload `json:"lifestyle_factors"`
}

// riskScoresResponse はリスク算出のAPIレスポンス。
type riskScoresResponse struct {
	InsuranceRiskScore float64 `json:"insurance_risk_score"`
	DiabetesRiskScore  float64 `json:"diabetes_risk_score"`
	BMI                float64 `json:"bmi"`
}

// ComputeScores はリスクスコアの算出を処理する。
// POST /risk_scores/
func (h *RiskHandler) ComputeScores(w http.ResponseWriter, r *http.Request) {
	var req riskScoresRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	if req.Age < 0 || req.Age > 150 {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("ageが範囲外です"))
		return
	}

	input := risk.Input{
		Age:               req.Age,
		HeightCm:          req.Height,
		WeightKg:          req.Weight,
		SmokingStatus:     req.LifestyleFactors.SmokingStatus,
		ExerciseFrequency: req.LifestyleFactors.ExerciseFrequency,
		DietType:          req.LifestyleFactors.DietType,
		Conditions:        req.MedicalHistory.Conditions,
	}
	insurance, diabetes := h.scorer.Scores(input)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(riskScoresResponse{
		InsuranceRiskScore: insurance,
		DiabetesRiskScore:  diabetes,
		BMI:                model.ComputeBMI(req.Height, req.Weight),
	})
}
