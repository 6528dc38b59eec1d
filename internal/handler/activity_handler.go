package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/healthsync/internal/model"
)

// HealthActivityStore は活動ハンドラーが必要とする永続化インターフェース。
type HealthActivityStore interface {
	Create(ctx context.Context, activity *model.HealthActivity) error
	ListByUserID(ctx context.Context, userID string) ([]*model.HealthActivity, error)
	ListAll(ctx context.Context) ([]*model.HealthActivity, error)
}

// ActivityHandler は健康活動イベントのHTTPハンドラー。
type ActivityHandler struct {
	store     HealthActivityStore
	sanitizer TextSanitizer
}

// NewActivityHandler はActivityHandlerを生成する。
func NewActivityHandler(store HealthActivityStore, sanitizer TextSanitizer) *ActivityHandler {
	return &ActivityHandler{
		store:     store,
		sanitizer: sanitizer,
	}
}

// createActivityRequest は活動イベント作成リクエストのボディ。
type createActivityRequest struct {
	UserID          string     `json:"user_id"`
	ActivityType    string     `json:"activity_type"`
	Timestamp       *time.Time `json:"timestamp"`
	DurationMinutes int        `json:"duration_minutes"`
	PointsEarned    int        `json:"points_earned"`
	Details         string     `json:"details"`
}

// activityResponse は活動イベントのAPIレスポンス。
type activityResponse struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	ActivityType    string    `json:"activity_type"`
	Timestamp       time.Time `json:"timestamp"`
	DurationMinutes int       `json:"duration_minutes"`
	PointsEarned    int       `json:"points_earned"`
	Details         string    `json:"details"`
	CreatedAt       time.Time `json:"created_at"`
}

// CreateActivity は活動イベントの作成を処理する。
// POST /activity/
func (h *ActivityHandler) CreateActivity(w http.ResponseWriter, r *http.Request) {
	var req createActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	if req.UserID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("user_idは必須です"))
		return
	}
	if req.ActivityType == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("activity_typeは必須です"))
		return
	}
	if req.DurationMinutes < 0 {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("duration_minutesは0以上である必要があります"))
		return
	}

	now := time.Now()
	timestamp := now
	if req.Timestamp != nil {
		timestamp = *req.Timestamp
	}

	activity := &model.HealthActivity{
		ID:              uuid.NewString(),
		UserID:          req.UserID,
		ActivityType:    h.sanitizer.Sanitize(req.ActivityType),
		Timestamp:       timestamp,
		DurationMinutes: req.DurationMinutes,
		PointsEarned:    req.PointsEarned,
		Details:         h.sanitizer.Sanitize(req.Details),
		CreatedAt:       now,
	}

	if err := h.store.Create(r.Context(), activity); err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toActivityResponse(activity))
}

// ListActivities は活動イベントの一覧を取得する。
// user_idが指定されていればそのユーザーの分のみを返す。
// GET /activity/?user_id=
func (h *ActivityHandler) ListActivities(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")

	var activities []*model.HealthActivity
	var err error
	if userID != "" {
		activities, err = h.store.ListByUserID(r.Context(), userID)
	} else {
		activities, err = h.store.ListAll(r.Context())
	}
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]activityResponse, len(activities))
	for i, activity := range activities {
		responses[i] = toActivityResponse(activity)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(responses)
}

// toActivityResponse はドメインモデルをAPIレスポンスに変換する。
func toActivityResponse(activity *model.HealthActivity) activityResponse {
	return activityResponse{
		ID:              activity.ID,
		UserID:          activity.UserID,
		ActivityType:    activity.ActivityType,
		Timestamp:       activity.Timestamp,
		DurationMinutes: activity.DurationMinutes,
		PointsEarned:    activity.PointsEarned,
		Details:         activity.Details,
		CreatedAt:       activity.CreatedAt,
	}
}
