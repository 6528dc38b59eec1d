// Package sheets は外部スプレッドシートサービスへのゲートウェイを提供する。
//
// Google Sheets API v4のvalues系エンドポイントを直接呼び出す薄いクライアントで、
// 論理名（user_data等）で指定されたレンジの読み取り・クリア・上書きと
// 接続確認を行う。認証はTokenSourceによるセッションキャッシュ付きの
// アクセストークンを使用し、APIクォータはrate.Limiterで平準化する。
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://sheets.googleapis.com"

// userAgent は外部API呼び出し時のUser-Agentヘッダ。
const userAgent = "Healthsync/1.0 Intake Sync"

// Config はClientの設定。
type Config struct {
	SpreadsheetID string

	// Ranges は論理名からシートレンジへの対応表
	// （例: "user_data" -> "user_data!A2:Z"）。
	Ranges map[string]string

	// BaseURL はテスト用にオーバーライド可能なAPIベースURL。
	BaseURL string

	// QuotaPerSec はAPI呼び出しの秒間上限。0以下の場合は1 req/sec。
	QuotaPerSec float64
}

// APIMetrics はシートAPI呼び出しの観測のインターフェース。
type APIMetrics interface {
	RecordSheetsAPILatency(duration time.Duration)
	RecordSheetsAPIStatus(statusCode int)
}

// Client は外部スプレッドシートAPIのクライアント。
type Client struct {
	httpClient  *http.Client
	logger      *slog.Logger
	tokenSource *TokenSource
	limiter     *rate.Limiter
	metrics     APIMetrics

	spreadsheetID string
	ranges        map[string]string
	baseURL       string
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(cfg Config, tokenSource *TokenSource, httpClient *http.Client, metrics APIMetrics, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	quota := cfg.QuotaPerSec
	if quota <= 0 {
		quota = 1.0
	}
	return &Client{
		httpClient:    httpClient,
		logger:        logger,
		tokenSource:   tokenSource,
		limiter:       rate.NewLimiter(rate.Limit(quota), 1),
		metrics:       metrics,
		spreadsheetID: cfg.SpreadsheetID,
		ranges:        cfg.Ranges,
		baseURL:       cfg.BaseURL,
	}
}

// valueRange はvalues.get / values.updateのボディ。
type valueRange struct {
	Range  string     `json:"range,omitempty"`
	Values [][]string `json:"values,omitempty"`
}

// batchClearRequest はvalues:batchClearのボディ。
type batchClearRequest struct {
	Ranges []string `json:"ranges"`
}

// ConnectionStatus は接続確認の結果を表す。
type ConnectionStatus struct {
	SpreadsheetTitle string
	SheetTitles      []string
}

// ReadRange は論理名で指定されたレンジの全行を読み取る。
// レンジはヘッダ行を除いて定義されているため、戻り値にヘッダは含まれない。
// セルはすべて文字列として返り、行ごとの列数は揃っているとは限らない
// （末尾の空セルはAPIが省略する）。
func (c *Client) ReadRange(ctx context.Context, logicalName string) ([][]string, error) {
	rangeName, err := c.resolveRange(logicalName)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s",
		c.baseURL, url.PathEscape(c.spreadsheetID), url.PathEscape(rangeName))

	body, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var vr valueRange
	if err := json.Unmarshal(body, &vr); err != nil {
		return nil, fmt.Errorf("レンジ読み取りレスポンスの解析に失敗しました: %w", err)
	}

	c.logger.Info("シートレンジを読み取りました",
		slog.String("logical_name", logicalName),
		slog.String("range", rangeName),
		slog.Int("rows", len(vr.Values)),
	)

	return vr.Values, nil
}

// ClearAndWrite は論理名で指定されたレンジをクリアしてから行を書き込む。
// クリアは宣言されたレンジのみを対象とし、書き込みは追記ではなく
// 完全な置き換えとなる。行が空の場合はクリアのみ行う。
func (c *Client) ClearAndWrite(ctx context.Context, logicalName string, rows [][]string) error {
	rangeName, err := c.resolveRange(logicalName)
	if err != nil {
		return err
	}

	// 既存データのクリア
	clearEndpoint := fmt.Sprintf("%s/v4/spreadsheets/%s/values:batchClear",
		c.baseURL, url.PathEscape(c.spreadsheetID))
	clearBody, err := json.Marshal(batchClearRequest{Ranges: []string{rangeName}})
	if err != nil {
		return fmt.Errorf("クリアリクエストの構築に失敗しました: %w", err)
	}
	if _, err := c.do(ctx, http.MethodPost, clearEndpoint, clearBody); err != nil {
		return fmt.Errorf("レンジのクリアに失敗しました: %w", err)
	}

	if len(rows) == 0 {
		c.logger.Info("書き込む行がないためクリアのみ実行しました",
			slog.String("logical_name", logicalName),
			slog.String("range", rangeName),
		)
		return nil
	}

	// 新データの書き込み
	updateEndpoint := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s?valueInputOption=RAW",
		c.baseURL, url.PathEscape(c.spreadsheetID), url.PathEscape(rangeName))
	updateBody, err := json.Marshal(valueRange{Values: rows})
	if err != nil {
		return fmt.Errorf("書き込みリクエストの構築に失敗しました: %w", err)
	}
	if _, err := c.do(ctx, http.MethodPut, updateEndpoint, updateBody); err != nil {
		return fmt.Errorf("レンジへの書き込みに失敗しました: %w", err)
	}

	c.logger.Info("シートレンジを上書きしました",
		slog.String("logical_name", logicalName),
		slog.String("range", rangeName),
		slog.Int("rows", len(rows)),
	)

	return nil
}

// spreadsheetMetadata はスプレッドシートメタデータのレスポンス。
type spreadsheetMetadata struct {
	Properties struct {
		Title string `json:"title"`
	} `json:"properties"`
	Sheets []struct {
		Properties struct {
			Title string `json:"title"`
		} `json:"properties"`
	} `json:"sheets"`
}

// TestConnection はスプレッドシートのメタデータを取得して接続を確認する。
func (c *Client) TestConnection(ctx context.Context) (*ConnectionStatus, error) {
	endpoint := fmt.Sprintf("%s/v4/spreadsheets/%s?fields=properties.title,sheets.properties.title",
		c.baseURL, url.PathEscape(c.spreadsheetID))

	body, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var meta spreadsheetMetadata
	if err := json.Unmarshal(body, &meta); err != nil {
		return nil, fmt.Errorf("メタデータレスポンスの解析に失敗しました: %w", err)
	}

	status := &ConnectionStatus{SpreadsheetTitle: meta.Properties.Title}
	for _, sheet := range meta.Sheets {
		status.SheetTitles = append(status.SheetTitles, sheet.Properties.Title)
	}

	return status, nil
}

// resolveRange は論理名をシートレンジに解決する。
func (c *Client) resolveRange(logicalName string) (string, error) {
	rangeName, ok := c.ranges[logicalName]
	if !ok || rangeName == "" {
		return "", fmt.Errorf("論理名に対応するレンジが定義されていません: %s", logicalName)
	}
	return rangeName, nil
}

// do は認証とクォータ制御付きでAPIリクエストを実行し、レスポンスボディを返す。
// 401が返った場合はキャッシュ済みトークンを破棄して1回だけ再取得を試みる。
func (c *Client) do(ctx context.Context, method, endpoint string, body []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("クォータ待機が中断されました: %w", err)
	}

	respBody, status, err := c.doOnce(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized {
		// セッション失効とみなしてトークンを再取得して1回だけ再試行
		c.tokenSource.Invalidate()
		respBody, status, err = c.doOnce(ctx, method, endpoint, body)
		if err != nil {
			return nil, err
		}
	}

	if status < 200 || status >= 300 {
		c.logger.Error("シートAPIがエラーステータスを返しました",
			slog.String("method", method),
			slog.Int("http_status", status),
		)
		return nil, fmt.Errorf("シートAPIがステータス %d を返しました", status)
	}

	return respBody, nil
}

// doOnce は1回のAPIリクエストを実行する。
func (c *Client) doOnce(ctx context.Context, method, endpoint string, body []byte) ([]byte, int, error) {
	token, err := c.tokenSource.Token(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("アクセストークンの取得に失敗しました: %w", err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("APIリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("APIリクエストに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	c.metrics.RecordSheetsAPILatency(time.Since(start))
	c.metrics.RecordSheetsAPIStatus(resp.StatusCode)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	return respBody, resp.StatusCode, nil
}
