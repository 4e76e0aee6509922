// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/checkin/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// adminContextKey はリクエストコンテキストに認証済み管理者を格納するためのキー。
	adminContextKey = contextKey("admin")
	// accessTokenContextKey はリクエストコンテキストに検証済みアクセストークンを格納するためのキー。
	accessTokenContextKey = contextKey("access_token")
)

// Authenticator はアクセストークンから管理者を解決するインターフェース。
// auth.Serviceが満たす。
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*model.Admin, error)
}

// NewAuthMiddleware はAuthorizationヘッダーのBearerトークンを検証するミドルウェアを返す。
// 認証済み管理者とアクセストークンをリクエストコンテキストに注入する。
// トークンが無い・無効な場合は401を返す。
func NewAuthMiddleware(authn Authenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			admin, err := authn.Authenticate(r.Context(), token)
			if err != nil {
				var apiErr *model.APIError
				if errors.As(err, &apiErr) {
					WriteErrorResponse(w, http.StatusUnauthorized, apiErr)
					return
				}
				slog.Error("failed to authenticate admin",
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}

			noteAdmin(r.Context(), admin)
			ctx := ContextWithAdmin(r.Context(), admin)
			ctx = context.WithValue(ctx, accessTokenContextKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
// スキーム名の大文字小文字は区別しない。該当しない場合は空文字を返す。
func BearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// AdminFromContext はリクエストコンテキストから認証済み管理者を取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func AdminFromContext(ctx context.Context) (*model.Admin, error) {
	admin, ok := ctx.Value(adminContextKey).(*model.Admin)
	if !ok || admin == nil {
		return nil, fmt.Errorf("admin not found in context")
	}
	return admin, nil
}

// ContextWithAdmin はコンテキストに管理者を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithAdmin(ctx context.Context, admin *model.Admin) context.Context {
	return context.WithValue(ctx, adminContextKey, admin)
}

// AccessTokenFromContext は検証済みのアクセストークンを返す。
func AccessTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(accessTokenContextKey).(string)
	return token
}
