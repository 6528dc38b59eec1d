package handler

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/healthsync/internal/model"
	"github.com/hitoshi/healthsync/internal/repository"
	"github.com/hitoshi/healthsync/internal/risk"
)

// mockUserStore はUserRecordStoreのモック。
type mockUserStore struct {
	createFn    func(ctx context.Context, record *model.UserRecord) error
	findByIDFn  func(ctx context.Context, id string) (*model.UserRecord, error)
	listFn      func(ctx context.Context, offset, limit int) ([]*model.UserRecord, error)
	deleteAllFn func(ctx context.Context) (int64, error)
}

func (m *mockUserStore) Create(ctx context.Context, record *model.UserRecord) error {
	if m.createFn != nil {
		return m.createFn(ctx, record)
	}
	return nil
}

func (m *mockUserStore) FindByID(ctx context.Context, id string) (*model.UserRecord, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserStore) List(ctx context.Context, offset, limit int) ([]*model.UserRecord, error) {
	if m.listFn != nil {
		return m.listFn(ctx, offset, limit)
	}
	return nil, nil
}

func (m *mockUserStore) DeleteAll(ctx context.Context) (int64, error) {
	if m.deleteAllFn != nil {
		return m.deleteAllFn(ctx)
	}
	return 0, nil
}

// passthroughSanitizer はテキストをそのまま返すサニタイザ。
type passthroughSanitizer struct{}

func (passthroughSanitizer) Sanitize(input string) string { return input }

func validCreateBody() string {
	return `{
		"name": "田中太郎",
		"age": 30,
		"gender": "male",
		"email": "tanaka@example.com",
		"phone": "090-1234-5678",
		"height": 180.5,
		"weight": 75,
		"lifestyle_score": 0.8,
		"medical_history": {"conditions": ["none"], "medications": []},
		"lifestyle_factors": {"smoking_status": "never", "exercise_frequency": "daily", "diet_type": "healthy"}
	}`
}

func TestCreateRecord_Success(t *testing.T) {
	var stored *model.UserRecord
	store := &mockUserStore{
		createFn: func(ctx context.Context, record *model.UserRecord) error {
			stored = record
			return nil
		},
	}
	h := NewUserHandler(store, risk.NewEngine(), passthroughSanitizer{})

	req := httptest.NewRequest(http.MethodPost, "/user/", strings.NewReader(validCreateBody()))
	w := httptest.NewRecorder()
	h.CreateRecord(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	var resp userRecordResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("レスポンスの解析に失敗: %v", err)
	}

	if resp.ID == "" {
		t.Error("IDが付与されていない")
	}
	// 保険リスク: 健康的な30歳の参照ケース
	if math.Abs(resp.InsuranceRiskScore-0.185) > 1e-9 {
		t.Errorf("InsuranceRiskScore = %v, want 0.185", resp.InsuranceRiskScore)
	}
	if resp.BMI == 0 {
		t.Error("BMIが導出されていない")
	}
	if !resp.IsActive {
		t.Error("IsActive = false, want true")
	}
	if stored == nil {
		t.Fatal("記録が永続化されていない")
	}
	if stored.Email != "tanaka@example.com" {
		t.Errorf("Email = %q, want %q", stored.Email, "tanaka@example.com")
	}
}

func TestCreateRecord_InvalidJSON(t *testing.T) {
	h := NewUserHandler(&mockUserStore{}, risk.NewEngine(), passthroughSanitizer{})

	req := httptest.NewRequest(http.MethodPost, "/user/", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	h.CreateRecord(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestCreateRecord_ValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"nameが空", `{"name": "", "email": "a@example.com", "age": 30}`},
		{"emailが空", `{"name": "田中", "email": "", "age": 30}`},
		{"ageが負", `{"name": "田中", "email": "a@example.com", "age": -1}`},
		{"ageが過大", `{"name": "田中", "email": "a@example.com", "age": 200}`},
		{"heightが負", `{"name": "田中", "email": "a@example.com", "age": 30, "height": -170}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewUserHandler(&mockUserStore{}, risk.NewEngine(), passthroughSanitizer{})

			req := httptest.NewRequest(http.MethodPost, "/user/", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			h.CreateRecord(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}

			var resp apiErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("レスポンスの解析に失敗: %v", err)
			}
			if resp.Code != model.ErrCodeValidationFailed {
				t.Errorf("Code = %q, want %q", resp.Code, model.ErrCodeValidationFailed)
			}
		})
	}
}

func TestCreateRecord_DuplicateEmail(t *testing.T) {
	store := &mockUserStore{
		createFn: func(ctx context.Context, record *model.UserRecord) error {
			return repository.ErrDuplicateEmail
		},
	}
	h := NewUserHandler(store, risk.NewEngine(), passthroughSanitizer{})

	req := httptest.NewRequest(http.MethodPost, "/user/", strings.NewReader(validCreateBody()))
	w := httptest.NewRecorder()
	h.CreateRecord(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}

	var resp apiErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("レスポンスの解析に失敗: %v", err)
	}
	if resp.Code != model.ErrCodeEmailConflict {
		t.Errorf("Code = %q, want %q", resp.Code, model.ErrCodeEmailConflict)
	}
}

func TestListRecords_PaginationDefaults(t *testing.T) {
	var gotOffset, gotLimit int
	store := &mockUserStore{
		listFn: func(ctx context.Context, offset, limit int) ([]*model.UserRecord, error) {
			gotOffset, gotLimit = offset, limit
			return []*model.UserRecord{{ID: "id-1", Name: "田中太郎"}}, nil
		},
	}
	h := NewUserHandler(store, risk.NewEngine(), passthroughSanitizer{})

	req := httptest.NewRequest(http.MethodGet, "/user/", nil)
	w := httptest.NewRecorder()
	h.ListRecords(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotOffset != 0 || gotLimit != 100 {
		t.Errorf("offset, limit = %d, %d, want 0, 100", gotOffset, gotLimit)
	}
}

func TestListRecords_LimitIsCapped(t *testing.T) {
	var gotLimit int
	store := &mockUserStore{
		listFn: func(ctx context.Context, offset, limit int) ([]*model.UserRecord, error) {
			gotLimit = limit
			return nil, nil
		},
	}
	h := NewUserHandler(store, risk.NewEngine(), passthroughSanitizer{})

	req := httptest.NewRequest(http.MethodGet, "/user/?skip=10&limit=5000", nil)
	w := httptest.NewRecorder()
	h.ListRecords(w, req)

	if gotLimit != listLimitCap {
		t.Errorf("limit = %d, want %d", gotLimit, listLimitCap)
	}
}

func TestGetRecord_NotFound(t *testing.T) {
	h := NewUserHandler(&mockUserStore{}, risk.NewEngine(), passthroughSanitizer{})

	req := httptest.NewRequest(http.MethodGet, "/user/missing-id", nil)
	w := httptest.NewRecorder()
	h.GetRecord(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestDeleteAllRecords(t *testing.T) {
	store := &mockUserStore{
		deleteAllFn: func(ctx context.Context) (int64, error) {
			return 7, nil
		},
	}
	h := NewUserHandler(store, risk.NewEngine(), passthroughSanitizer{})

	req := httptest.NewRequest(http.MethodDelete, "/user/", nil)
	w := httptest.NewRecorder()
	h.DeleteAllRecords(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("レスポンスの解析に失敗: %v", err)
	}
	if resp["deleted"] != float64(7) {
		t.Errorf("deleted = %v, want 7", resp["deleted"])
	}
}
