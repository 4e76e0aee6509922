package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/checkin/internal/middleware"
	"github.com/hitoshi/checkin/internal/model"
)

// AuthServiceInterface は管理者認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	SignUp(ctx context.Context, input model.NewAdmin) (*model.TokenPair, error)
	Login(ctx context.Context, email, password string) (*model.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*model.TokenPair, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	Logout(ctx context.Context, accessToken, refreshToken string) error
	GetAdmin(ctx context.Context, adminID string) (*model.Admin, error)
	UpdateAdmin(ctx context.Context, adminID string, input model.AdminProfileUpdate) (*model.Admin, error)
}

// AuthHandler は管理者のサインアップ・ログイン・プロフィール関連のHTTPハンドラー。
type AuthHandler struct {
	service   AuthServiceInterface
	validator Validator
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, validator Validator) *AuthHandler {
	return &AuthHandler{
		service:   service,
		validator: validator,
	}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token" validate:"required,len=6,numeric"`
	Password string `json:"password" validate:"required,password"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// SignUp は管理者アカウントを作成し、トークンを返す。
// POST /v1/admin/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req model.NewAdmin
	if !decodeJSONBody(w, r, h.validator, &req) {
		return
	}

	pair, err := h.service.SignUp(r.Context(), req)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTokenResponse(pair))
}

// Login はメールアドレスとパスワードで認証する。
// POST /v1/admin/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSONBody(w, r, h.validator, &req) {
		return
	}

	pair, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTokenResponse(pair))
}

// Refresh はリフレッシュトークンから新しいトークンペアを発行する。
// POST /v1/admin/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeJSONBody(w, r, h.validator, &req) {
		return
	}

	pair, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTokenResponse(pair))
}

// ForgotPassword はパスワード再設定コードをメールで送る。
// POST /v1/admin/forgot-password
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !decodeJSONBody(w, r, h.validator, &req) {
		return
	}

	if err := h.service.ForgotPassword(r.Context(), req.Email); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "password reset code sent"})
}

// ResetPassword は再設定コードで新しいパスワードを設定する。
// POST /v1/admin/reset-password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !decodeJSONBody(w, r, h.validator, &req) {
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "password updated"})
}

// Logout は現在のアクセストークンと、指定があればリフレッシュトークンを失効させる。
// POST /v1/admin/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	// ボディは任意
	var req logoutRequest
	if r.ContentLength > 0 {
		if !decodeJSONBody(w, r, nil, &req) {
			return
		}
	}

	accessToken := middleware.AccessTokenFromContext(r.Context())
	if err := h.service.Logout(r.Context(), accessToken, req.RefreshToken); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me は認証中の管理者のプロフィールを返す。
// GET /v1/admin/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	current := requireAdmin(w, r)
	if current == nil {
		return
	}

	admin, err := h.service.GetAdmin(r.Context(), current.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAdminResponse(admin))
}

// UpdateMe は認証中の管理者のプロフィールを部分更新する。
// PATCH /v1/admin/me
func (h *AuthHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	current := requireAdmin(w, r)
	if current == nil {
		return
	}

	var req model.AdminProfileUpdate
	if !decodeJSONBody(w, r, h.validator, &req) {
		return
	}

	admin, err := h.service.UpdateAdmin(r.Context(), current.ID, req)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAdminResponse(admin))
}
