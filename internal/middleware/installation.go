package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hitoshi/checkin/internal/model"
)

// InstallationHeader はチェックイン先の拠点を指定するリクエストヘッダー。
const InstallationHeader = "installation"

var installationContextKey = contextKey("installation")

// NewInstallationMiddleware はinstallationヘッダーを検証し、拠点をコンテキストに注入する。
// ヘッダーが無い、未知の値、GLOBALのいずれかであれば400 INVALID_INSTALLATIONを返す。
func NewInstallationMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(InstallationHeader)
			inst, err := model.ParseInstallation(raw)
			if err != nil || !inst.IsLocation() {
				WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidInstallationError(raw))
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithInstallation(r.Context(), inst)))
		})
	}
}

// InstallationFromContext はリクエストコンテキストからチェックイン先の拠点を取得する。
func InstallationFromContext(ctx context.Context) (model.Installation, error) {
	inst, ok := ctx.Value(installationContextKey).(model.Installation)
	if !ok || inst == "" {
		return "", fmt.Errorf("installation not found in context")
	}
	return inst, nil
}

// ContextWithInstallation はコンテキストに拠点を注入する。
func ContextWithInstallation(ctx context.Context, inst model.Installation) context.Context {
	return context.WithValue(ctx, installationContextKey, inst)
}
