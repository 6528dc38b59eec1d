package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Sheets
	SpreadsheetID      string
	SheetsClientID     string
	SheetsClientSecret string
	SheetsRefreshToken string
	SheetsTimeout      time.Duration
	SheetsQuotaPerSec  float64

	// 論理名ごとのレンジ上書き
	UserDataRange   string
	ActivitiesRange string
	SyncRunsRange   string

	// Rate Limit
	RateLimitGeneral int
	RateLimitSync    int

	// Server
	ServerPort  string
	MetricsPort string

	// CORS
	CORSAllowedOrigin string

	// App metadata
	AppName     string
	AppVersion  string
	Environment string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
// Sheets認証情報は任意とし、未設定のままゲートウェイを呼び出した場合は
// 同意取得が必要なエラーとして実行時に失敗する。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.SpreadsheetID = os.Getenv("SPREADSHEET_ID")
	if cfg.SpreadsheetID == "" {
		missing = append(missing, "SPREADSHEET_ID")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SheetsClientID = os.Getenv("SHEETS_CLIENT_ID")
	cfg.SheetsClientSecret = os.Getenv("SHEETS_CLIENT_SECRET")
	cfg.SheetsRefreshToken = os.Getenv("SHEETS_REFRESH_TOKEN")
	cfg.SheetsTimeout = getEnvDuration("SHEETS_TIMEOUT", 30*time.Second)
	cfg.SheetsQuotaPerSec = getEnvFloat("SHEETS_QUOTA_PER_SEC", 1.0)

	cfg.UserDataRange = getEnvString("USER_DATA_RANGE", "user_data!A2:Z")
	cfg.ActivitiesRange = getEnvString("HEALTH_ACTIVITIES_RANGE", "health_activities!A2:Z")
	cfg.SyncRunsRange = getEnvString("SYNC_RUNS_RANGE", "sync_runs!A2:Z")

	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitSync = getEnvInt("RATE_LIMIT_SYNC", 6)

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.MetricsPort = getEnvString("METRICS_PORT", "9090")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	cfg.AppName = getEnvString("APP_NAME", "Health Risk API")
	cfg.AppVersion = getEnvString("APP_VERSION", "1.0.0")
	cfg.Environment = getEnvString("ENVIRONMENT", "development")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
