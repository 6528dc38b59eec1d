package sheets

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"
)

// newTestTokenSource は固定トークンを返すTokenSourceを生成する。
func newTestTokenSource(t *testing.T) (*TokenSource, *httptest.Server) {
	t.Helper()
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "test-token",
			"expires_in":   3600,
		})
	}))
	ts := NewTokenSource(TokenConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RefreshToken: "refresh-abc",
		TokenURL:     tokenServer.URL,
	}, tokenServer.Client())
	return ts, tokenServer
}

// noopAPIMetrics は何も記録しないAPIMetrics。
type noopAPIMetrics struct{}

func (noopAPIMetrics) RecordSheetsAPILatency(duration time.Duration) {}
func (noopAPIMetrics) RecordSheetsAPIStatus(statusCode int)          {}

func newTestClient(t *testing.T, apiServer *httptest.Server) *Client {
	t.Helper()
	ts, tokenServer := newTestTokenSource(t)
	t.Cleanup(tokenServer.Close)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return NewClient(Config{
		SpreadsheetID: "sheet-123",
		Ranges: map[string]string{
			"user_data":         "user_data!A2:Z",
			"health_activities": "health_activities!A2:Z",
		},
		BaseURL:     apiServer.URL,
		QuotaPerSec: 1000,
	}, ts, apiServer.Client(), noopAPIMetrics{}, logger)
}

func TestClient_ReadRange(t *testing.T) {
	var gotPath, gotAuth string
	apiServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"range": "user_data!A2:Z",
			"values": [][]string{
				{"id-1", "Tanaka", "45"},
				{"id-2", "Sato", "31"},
			},
		})
	}))
	defer apiServer.Close()

	client := newTestClient(t, apiServer)
	rows, err := client.ReadRange(context.Background(), "user_data")
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}

	want := [][]string{{"id-1", "Tanaka", "45"}, {"id-2", "Sato", "31"}}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("rows = %v, want %v", rows, want)
	}
	if !strings.Contains(gotPath, "/v4/spreadsheets/sheet-123/values/") {
		t.Errorf("パスが不正: %s", gotPath)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer test-token")
	}
}

func TestClient_ReadRange_UnknownLogicalName(t *testing.T) {
	apiServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("未定義の論理名でAPIが呼ばれるべきではない")
	}))
	defer apiServer.Close()

	client := newTestClient(t, apiServer)
	if _, err := client.ReadRange(context.Background(), "unknown_range"); err == nil {
		t.Fatal("エラーが返るべき")
	}
}

func TestClient_ClearAndWrite(t *testing.T) {
	type call struct {
		method string
		path   string
		query  string
		body   string
	}
	var calls []call
	apiServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		calls = append(calls, call{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.RawQuery,
			body:   string(body),
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	defer apiServer.Close()

	client := newTestClient(t, apiServer)
	rows := [][]string{{"id-1", "Tanaka"}, {"id-2", "Sato"}}
	if err := client.ClearAndWrite(context.Background(), "user_data", rows); err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}

	if len(calls) != 2 {
		t.Fatalf("API呼び出し回数 = %d, want 2 (クリア→書き込み)", len(calls))
	}

	// 1回目: batchClear
	if calls[0].method != http.MethodPost {
		t.Errorf("クリアのメソッド = %s, want POST", calls[0].method)
	}
	if !strings.HasSuffix(calls[0].path, "/values:batchClear") {
		t.Errorf("クリアのパスが不正: %s", calls[0].path)
	}
	if !strings.Contains(calls[0].body, "user_data!A2:Z") {
		t.Errorf("クリア対象のレンジが含まれていない: %s", calls[0].body)
	}

	// 2回目: 上書き (RAW)
	if calls[1].method != http.MethodPut {
		t.Errorf("書き込みのメソッド = %s, want PUT", calls[1].method)
	}
	if !strings.Contains(calls[1].query, "valueInputOption=RAW") {
		t.Errorf("valueInputOption=RAW が指定されていない: %s", calls[1].query)
	}
	if !strings.Contains(calls[1].body, "Tanaka") {
		t.Errorf("書き込み行が含まれていない: %s", calls[1].body)
	}
}

func TestClient_ClearAndWrite_EmptyRows(t *testing.T) {
	var calls int
	apiServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{}`))
	}))
	defer apiServer.Close()

	client := newTestClient(t, apiServer)
	if err := client.ClearAndWrite(context.Background(), "user_data", nil); err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if calls != 1 {
		t.Errorf("API呼び出し回数 = %d, want 1 (クリアのみ)", calls)
	}
}

func TestClient_TestConnection(t *testing.T) {
	apiServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"properties": {"title": "Health Data"},
			"sheets": [
				{"properties": {"title": "user_data"}},
				{"properties": {"title": "health_activities"}}
			]
		}`))
	}))
	defer apiServer.Close()

	client := newTestClient(t, apiServer)
	status, err := client.TestConnection(context.Background())
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if status.SpreadsheetTitle != "Health Data" {
		t.Errorf("SpreadsheetTitle = %q, want %q", status.SpreadsheetTitle, "Health Data")
	}
	wantSheets := []string{"user_data", "health_activities"}
	if !reflect.DeepEqual(status.SheetTitles, wantSheets) {
		t.Errorf("SheetTitles = %v, want %v", status.SheetTitles, wantSheets)
	}
}

func TestClient_RetriesOnceOnUnauthorized(t *testing.T) {
	var calls int
	apiServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"values": [["id-1"]]}`))
	}))
	defer apiServer.Close()

	client := newTestClient(t, apiServer)
	rows, err := client.ReadRange(context.Background(), "user_data")
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if calls != 2 {
		t.Errorf("API呼び出し回数 = %d, want 2 (401後に1回だけ再試行)", calls)
	}
	if len(rows) != 1 || rows[0][0] != "id-1" {
		t.Errorf("rows = %v, want [[id-1]]", rows)
	}
}

func TestClient_ErrorStatus(t *testing.T) {
	apiServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer apiServer.Close()

	client := newTestClient(t, apiServer)
	if _, err := client.ReadRange(context.Background(), "user_data"); err == nil {
		t.Fatal("エラーが返るべき")
	}
}
