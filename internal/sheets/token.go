package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const defaultTokenURL = "https://oauth2.googleapis.com/token"

// ErrConsentRequired はリフレッシュトークンが未設定、または失効しており、
// 対話的な再同意が必要な状態を表す。自動リトライは行わず、
// 呼び出し元は実行を中断して失敗として記録する。
var ErrConsentRequired = errors.New("interactive consent is required to obtain sheets credentials")

// expiryMargin はトークン失効判定の余裕時間。
// 失効直前のトークンでAPI呼び出しが失敗するのを避ける。
const expiryMargin = 30 * time.Second

// TokenSource はアクセストークンの取得とキャッシュを行う。
// リフレッシュトークンによる遅延更新を行い、プロセス内で
// セッションとして共有される。並行呼び出しに対して安全。
type TokenSource struct {
	clientID     string
	clientSecret string
	refreshToken string
	tokenURL     string
	httpClient   *http.Client

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

// TokenConfig はTokenSourceの設定。
type TokenConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string

	// TokenURL はテスト用にオーバーライド可能なトークンエンドポイント。
	TokenURL string
}

// NewTokenSource はTokenSourceを生成する。
func NewTokenSource(cfg TokenConfig, httpClient *http.Client) *TokenSource {
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &TokenSource{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		refreshToken: cfg.RefreshToken,
		tokenURL:     cfg.TokenURL,
		httpClient:   httpClient,
	}
}

// Token は有効なアクセストークンを返す。
// キャッシュ済みトークンが有効ならそれを返し、失効していれば
// リフレッシュトークンで更新する。リフレッシュトークンが未設定の場合と
// 認可サーバーがinvalid_grantを返した場合はErrConsentRequiredを返す。
func (ts *TokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.accessToken != "" && time.Now().Before(ts.expiresAt.Add(-expiryMargin)) {
		return ts.accessToken, nil
	}

	if ts.refreshToken == "" {
		return "", ErrConsentRequired
	}

	token, expiresIn, err := ts.refresh(ctx)
	if err != nil {
		return "", err
	}

	ts.accessToken = token
	ts.expiresAt = time.Now().Add(time.Duration(expiresIn) * time.Second)
	return ts.accessToken, nil
}

// tokenResponse はトークンエンドポイントの成功レスポンス。
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// tokenErrorResponse はトークンエンドポイントのエラーレスポンス。
type tokenErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// refresh はリフレッシュトークンでアクセストークンを更新する。
func (ts *TokenSource) refresh(ctx context.Context) (string, int, error) {
	data := url.Values{
		"client_id":     {ts.clientID},
		"client_secret": {ts.clientSecret},
		"refresh_token": {ts.refreshToken},
		"grant_type":    {"refresh_token"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("トークンリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ts.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("トークンリクエストに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("トークンレスポンスの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var tokenErr tokenErrorResponse
		if err := json.Unmarshal(body, &tokenErr); err == nil && tokenErr.Error == "invalid_grant" {
			// リフレッシュトークンが失効しており再同意が必要
			return "", 0, fmt.Errorf("%w: %s", ErrConsentRequired, tokenErr.ErrorDescription)
		}
		return "", 0, fmt.Errorf("トークンエンドポイントがステータス %d を返しました", resp.StatusCode)
	}

	var token tokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return "", 0, fmt.Errorf("トークンレスポンスの解析に失敗しました: %w", err)
	}
	if token.AccessToken == "" {
		return "", 0, fmt.Errorf("トークンレスポンスにアクセストークンが含まれていません")
	}

	expiresIn := token.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}

	return token.AccessToken, expiresIn, nil
}

// Invalidate はキャッシュ済みアクセストークンを破棄する。
// APIが401を返した場合に次回呼び出しで強制的に更新させるために使用する。
func (ts *TokenSource) Invalidate() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.accessToken = ""
	ts.expiresAt = time.Time{}
}
