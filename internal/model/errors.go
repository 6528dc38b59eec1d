// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, record, sync, sheets, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
	ErrCodeValidationFailed  = "VALIDATION_FAILED"
	ErrCodeEmailConflict     = "EMAIL_CONFLICT"
	ErrCodeRecordNotFound    = "RECORD_NOT_FOUND"
	ErrCodeSyncInProgress    = "SYNC_IN_PROGRESS"
	ErrCodeSyncNotFound      = "SYNC_NOT_FOUND"
	ErrCodeSheetsAuthFailed  = "SHEETS_AUTH_FAILED"
	ErrCodeSheetsUnavailable = "SHEETS_UNAVAILABLE"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// NewInvalidRequestError はリクエストボディ解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewValidationError は入力値検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("入力値が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認して再度送信してください。",
	}
}

// NewEmailConflictError はメールアドレス重複エラーを生成する。
func NewEmailConflictError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeEmailConflict,
		Message:  fmt.Sprintf("このメールアドレスは既に登録されています: %s", email),
		Category: "record",
		Action:   "別のメールアドレスを使用するか、既存の記録を確認してください。",
	}
}

// NewRecordNotFoundError は記録未検出エラーを生成する。
func NewRecordNotFoundError(recordID string) *APIError {
	return &APIError{
		Code:     ErrCodeRecordNotFound,
		Message:  fmt.Sprintf("指定された記録が見つかりません: %s", recordID),
		Category: "record",
		Action:   "記録IDを確認してください。",
	}
}

// NewSyncInProgressError は同期実行中エラーを生成する。
// 同期の多重起動を防ぐガードに使用する。
func NewSyncInProgressError() *APIError {
	return &APIError{
		Code:     ErrCodeSyncInProgress,
		Message:  "別の同期処理が実行中です。",
		Category: "sync",
		Action:   "実行中の同期が完了してから再度お試しください。",
	}
}

// NewSyncNotFoundError は同期履歴未検出エラーを生成する。
func NewSyncNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeSyncNotFound,
		Message:  "同期の実行履歴がありません。",
		Category: "sync",
		Action:   "まず同期を実行してください。",
	}
}

// NewSheetsAuthError はスプレッドシート認証失敗エラーを生成する。
func NewSheetsAuthError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeSheetsAuthFailed,
		Message:  fmt.Sprintf("スプレッドシートの認証に失敗しました: %s", reason),
		Category: "sheets",
		Action:   "認証情報（クライアントID・リフレッシュトークン）を確認してください。",
	}
}

// NewSheetsUnavailableError はスプレッドシート接続失敗エラーを生成する。
func NewSheetsUnavailableError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeSheetsUnavailable,
		Message:  fmt.Sprintf("スプレッドシートへの接続に失敗しました: %s", reason),
		Category: "sheets",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
