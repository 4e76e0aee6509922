// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はメンバーの自由記述欄（住所、職業、祈りの課題など）から
// HTMLマークアップを除去し、管理画面での表示時のXSSを防ぐ。
// PasswordHasher は管理者パスワードのbcryptハッシュを扱う。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はプレーンテキスト欄のサニタイズ機能を提供する。
// bluemondayのStrictPolicyを保持し、スレッドセーフに処理を行う。
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerを生成する。
// すべてのタグと属性を除去するStrictPolicyを使用する。
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{policy: bluemonday.StrictPolicy()}
}

// SanitizeText はタグを除去したプレーンテキストを返す。
// StrictPolicyがエスケープした実体参照は元の文字に戻す。
// 前後の空白は除去する。同一入力に対して常に同一出力を返す。
func (s *TextSanitizer) SanitizeText(raw string) string {
	if raw == "" {
		return ""
	}
	cleaned := s.policy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}
