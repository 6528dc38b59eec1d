// Package handler はAPIエンドポイントのHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/healthsync/internal/model"
	"github.com/hitoshi/healthsync/internal/repository"
	"github.com/hitoshi/healthsync/internal/risk"
)

// listLimitCap は一覧取得の1回あたりの上限件数。
const listLimitCap = 1000

// UserRecordStore は利用者記録ハンドラーが必要とする永続化インターフェース。
type UserRecordStore interface {
	Create(ctx context.Context, record *model.UserRecord) error
	FindByID(ctx context.Context, id string) (*model.UserRecord, error)
	List(ctx context.Context, offset, limit int) ([]*model.UserRecord, error)
	DeleteAll(ctx context.Context) (int64, error)
}

// TextSanitizer は自由記述テキストのサニタイズのインターフェース。
type TextSanitizer interface {
	Sanitize(input string) string
}

// RiskScorer はリスクスコア算出のインターフェース。
type RiskScorer interface {
	Scores(in risk.Input) (insurance, diabetes float64)
}

// UserHandler は利用者記録のHTTPハンドラー。
type UserHandler struct {
	store     UserRecordStore
	scorer    RiskScorer
	sanitizer TextSanitizer
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(store UserRecordStore, scorer RiskScorer, sanitizer TextSanitizer) *UserHandler {
	return &UserHandler{
		store:     store,
		scorer:    scorer,
		sanitizer: sanitizer,
	}
}

// medicalHistoryPayload は既往歴・服薬のリクエスト/レスポンス表現。
type medicalHistoryPayload struct {
	Conditions  []string `json:"conditions"`
	Medications []string `json:"medications"`
}

// lifestyleFactorsPayload は生活習慣カテゴリのリクエスト/レスポンス表現。
type lifestyleFactorsPayload struct {
	SmokingStatus     string `json:"smoking_status"`
	ExerciseFrequency string `json:"exercise_frequency"`
	DietType          string `json:"diet_type"`
}

// createUserRecordRequest は利用者記録作成リクエストのボディ。
// リスクスコアとBMIは入力として受け付けず、常にサーバー側で導出する。
type createUserRecordRequest struct {
	Name             string                  `json:"name"`
	Age              int                     `json:"age"`
	Gender           string                  `json:"gender"`
	Email            string                  `json:"email"`
	Phone            string                  `json:"phone"`
	Height           float64                 `json:"height"`
	Weight           float64                 `json:"weight"`
	LifestyleScore   float64                 `json:"lifestyle_score"`
	MedicalHistory   medicalHistoryPayload   `json:"medical_history"`
	LifestyleFactors lifestyleFactorsPayload `json:"lifestyle_factors"`
}

// userRecordResponse は利用者記録のAPIレスポンス。
type userRecordResponse struct {
	ID                 string                  `json:"id"`
	Timestamp          time.Time               `json:"timestamp"`
	Name               string                  `json:"name"`
	Age                int                     `json:"age"`
	Gender             string                  `json:"gender"`
	Email              string                  `json:"email"`
	Phone              string                  `json:"phone"`
	Height             float64                 `json:"height"`
	Weight             float64                 `json:"weight"`
	BMI                float64                 `json:"bmi"`
	LifestyleScore     float64                 `json:"lifestyle_score"`
	InsuranceRiskScore float64                 `json:"insurance_risk_score"`
	DiabetesRiskScore  float64                 `json:"diabetes_risk_score"`
	MedicalHistory     medicalHistoryPayload   `json:"medical_history"`
	LifestyleFactors   lifestyleFactorsPayload `json:"lifestyle_factors"`
	IsActive           bool                    `json:"is_active"`
	CreatedAt          time.Time               `json:"created_at"`
	UpdatedAt          time.Time               `json:"updated_at"`
}

// CreateRecord は利用者記録の作成を処理する。
// POST /user/
func (h *UserHandler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	var req createUserRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	if reason := validateCreateRequest(&req); reason != "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError(reason))
		return
	}

	now := time.Now()
	record := &model.UserRecord{
		ID:             uuid.NewString(),
		Timestamp:      now,
		Name:           h.sanitizer.Sanitize(req.Name),
		Age:            req.Age,
		Gender:         h.sanitizer.Sanitize(req.Gender),
		Email:          req.Email,
		Phone:          h.sanitizer.Sanitize(req.Phone),
		Height:         req.Height,
		Weight:         req.Weight,
		LifestyleScore: req.LifestyleScore,
		MedicalHistory: model.MedicalHistory{
			Conditions:  sanitizeAll(h.sanitizer, req.MedicalHistory.Conditions),
			Medications: sanitizeAll(h.sanitizer, req.MedicalHistory.Medications),
		},
		LifestyleFactors: model.LifestyleFactors{
			SmokingStatus:     req.LifestyleFactors.SmokingStatus,
			ExerciseFrequency: req.LifestyleFactors.ExerciseFrequency,
			DietType:          req.LifestyleFactors.DietType,
		},
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	record.BMI = model.ComputeBMI(record.Height, record.Weight)
	record.InsuranceRiskScore, record.DiabetesRiskScore = h.scorer.Scores(risk.InputFromRecord(record))

	if err := h.store.Create(r.Context(), record); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			writeAPIErrorResponse(w, http.StatusConflict, model.NewEmailConflictError(record.Email))
			return
		}
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toUserRecordResponse(record))
}

// ListRecords は利用者記録の一覧を取得する。
// GET /user/?skip=&limit=
func (h *UserHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	skip := intQueryParam(r, "skip", 0)
	limit := intQueryParam(r, "limit", 100)
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = 100
	}
	if limit > listLimitCap {
		limit = listLimitCap
	}

	records, err := h.store.List(r.Context(), skip, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]userRecordResponse, len(records))
	for i, record := range records {
		responses[i] = toUserRecordResponse(record)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(responses)
}

// GetRecord は利用者記録の詳細を取得する。
// GET /user/{id}
func (h *UserHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	recordID := chi.URLParam(r, "id")

	record, err := h.store.FindByID(r.Context(), recordID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if record == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewRecordNotFoundError(recordID))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toUserRecordResponse(record))
}

// DeleteAllRecords は全利用者記録を削除する。
// DELETE /user/
func (h *UserHandler) DeleteAllRecords(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.store.DeleteAll(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "success",
		"deleted": deleted,
	})
}

// validateCreateRequest は作成リクエストを検証し、不正な場合は理由を返す。
func validateCreateRequest(req *createUserRecordRequest) string {
	if req.Name == "" {
		return "nameは必須です"
	}
	if req.Email == "" {
		return "emailは必須です"
	}
	if req.Age < 0 || req.Age > 150 {
		return fmt.Sprintf("ageが範囲外です: %d", req.Age)
	}
	if req.Height < 0 {
		return "heightは0以上である必要があります"
	}
	if req.Weight < 0 {
		return "weightは0以上である必要があります"
	}
	return ""
}

// sanitizeAll は文字列スライスの全要素をサニタイズする。
func sanitizeAll(sanitizer TextSanitizer, items []string) []string {
	if len(items) == 0 {
		return nil
	}
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = sanitizer.Sanitize(item)
	}
	return out
}

// toUserRecordResponse はドメインモデルをAPIレスポンスに変換する。
func toUserRecordResponse(record *model.UserRecord) userRecordResponse {
	return userRecordResponse{
		ID:                 record.ID,
		Timestamp:          record.Timestamp,
		Name:               record.Name,
		Age:                record.Age,
		Gender:             record.Gender,
		Email:              record.Email,
		Phone:              record.Phone,
		Height:             record.Height,
		Weight:             record.Weight,
		BMI:                record.BMI,
		LifestyleScore:     record.LifestyleScore,
		InsuranceRiskScore: record.InsuranceRiskScore,
		DiabetesRiskScore:  record.DiabetesRiskScore,
		MedicalHistory: medicalHistoryPayload{
			Conditions:  record.MedicalHistory.Conditions,
			Medications: record.MedicalHistory.Medications,
		},
		LifestyleFactors: lifestyleFactorsPayload{
			SmokingStatus:     record.LifestyleFactors.SmokingStatus,
			ExerciseFrequency: record.LifestyleFactors.ExerciseFrequency,
			DietType:          record.LifestyleFactors.DietType,
		},
		IsActive:  record.IsActive,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
}

// intQueryParam はクエリパラメータを整数として取り出す。解析失敗時はデフォルト値。
func intQueryParam(r *http.Request, name string, defaultValue int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return v
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     model.ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidRequest, model.ErrCodeValidationFailed:
		return http.StatusBadRequest
	case model.ErrCodeEmailConflict, model.ErrCodeSyncInProgress:
		return http.StatusConflict
	case model.ErrCodeRecordNotFound, model.ErrCodeSyncNotFound:
		return http.StatusNotFound
	case model.ErrCodeSheetsAuthFailed, model.ErrCodeSheetsUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
