package handler

import (
	"encoding/json"
	"net/http"
)

// AppInfo はルートエンドポイントで公開するアプリケーション情報。
type AppInfo struct {
	Name        string
	Version     string
	Environment string
}

// RootHandler はルートとヘルスチェックのHTTPハンドラー。
type RootHandler struct {
	info AppInfo
}

// NewRootHandler はRootHandlerを生成する。
func NewRootHandler(info AppInfo) *RootHandler {
	return &RootHandler{info: info}
}

// Root はアプリケーション情報を返す。
// GET /
func (h *RootHandler) Root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message":     "Welcome to " + h.info.Name,
		"version":     h.info.Version,
		"environment": h.info.Environment,
	})
}

// Health は死活確認に応答する。
// GET /health
func (h *RootHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}
