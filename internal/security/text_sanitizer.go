// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizerService は外部スプレッドシートから取り込む自由記述フィールドを
// サニタイズし、HTMLタグの混入によるXSSリスクから後続の利用者を保護する。
// シートのセルはプレーンテキストであるべきため、許可タグを一切持たない
// bluemondayの厳格ポリシーですべてのマークアップを除去する。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService はテキストサニタイズ機能のインターフェースを定義する。
// シート行の取り込み時および活動記録APIの自由記述の保存前に使用される。
type TextSanitizerService interface {
	// Sanitize は入力からすべてのHTMLマークアップを除去し、
	// 前後の空白を取り除いたプレーンテキストを返す。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyはタグを一切許可せず、すべてのHTML要素を除去する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は入力からHTMLマークアップを除去する。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(s.policy.Sanitize(raw))
}
