package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestTokenSource_Token_RefreshFlow(t *testing.T) {
	var refreshCalls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refreshCalls++
		if r.Method != http.MethodPost {
			t.Errorf("メソッドが %s になっている (POST が必要)", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("フォームの解析に失敗: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q, want %q", got, "refresh_token")
		}
		if got := r.PostForm.Get("refresh_token"); got != "refresh-abc" {
			t.Errorf("refresh_token = %q, want %q", got, "refresh-abc")
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access-xyz",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	defer server.Close()

	ts := NewTokenSource(TokenConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RefreshToken: "refresh-abc",
		TokenURL:     server.URL,
	}, server.Client())

	token, err := ts.Token(context.Background())
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if token != "access-xyz" {
		t.Errorf("token = %q, want %q", token, "access-xyz")
	}

	// 2回目はキャッシュが使われ、トークンエンドポイントは呼ばれない
	token2, err := ts.Token(context.Background())
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if token2 != "access-xyz" {
		t.Errorf("token2 = %q, want %q", token2, "access-xyz")
	}
	if refreshCalls != 1 {
		t.Errorf("refreshCalls = %d, want 1", refreshCalls)
	}
}

func TestTokenSource_Token_MissingRefreshToken(t *testing.T) {
	ts := NewTokenSource(TokenConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
	}, nil)

	_, err := ts.Token(context.Background())
	if !errors.Is(err, ErrConsentRequired) {
		t.Errorf("err = %v, want ErrConsentRequired", err)
	}
}

func TestTokenSource_Token_InvalidGrant(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error":             "invalid_grant",
			"error_description": "Token has been expired or revoked.",
		})
	}))
	defer server.Close()

	ts := NewTokenSource(TokenConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RefreshToken: "revoked-token",
		TokenURL:     server.URL,
	}, server.Client())

	_, err := ts.Token(context.Background())
	if !errors.Is(err, ErrConsentRequired) {
		t.Errorf("err = %v, want ErrConsentRequired", err)
	}
	if err == nil || !strings.Contains(err.Error(), "expired or revoked") {
		t.Errorf("エラーメッセージに認可サーバーの詳細が含まれていない: %v", err)
	}
}

func TestTokenSource_Token_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ts := NewTokenSource(TokenConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RefreshToken: "refresh-abc",
		TokenURL:     server.URL,
	}, server.Client())

	_, err := ts.Token(context.Background())
	if err == nil {
		t.Fatal("エラーが返るべき")
	}
	if errors.Is(err, ErrConsentRequired) {
		t.Errorf("サーバーエラーはErrConsentRequiredにすべきではない: %v", err)
	}
}

func TestTokenSource_Invalidate(t *testing.T) {
	var refreshCalls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refreshCalls++
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access-xyz",
			"expires_in":   3600,
		})
	}))
	defer server.Close()

	ts := NewTokenSource(TokenConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RefreshToken: "refresh-abc",
		TokenURL:     server.URL,
	}, server.Client())

	if _, err := ts.Token(context.Background()); err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	ts.Invalidate()
	if _, err := ts.Token(context.Background()); err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if refreshCalls != 2 {
		t.Errorf("refreshCalls = %d, want 2 (Invalidate後は再取得)", refreshCalls)
	}
}
