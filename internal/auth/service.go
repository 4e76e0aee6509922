// Package auth は管理者の認証（サインアップ、ログイン、トークン更新、パスワード再設定、ログアウト）を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/checkin/internal/mail"
	"github.com/hitoshi/checkin/internal/model"
	"github.com/hitoshi/checkin/internal/repository"
	"github.com/hitoshi/checkin/internal/security"
)

// TokenStore は再設定トークンとブラックリストの保存先。
type TokenStore interface {
	SaveResetToken(ctx context.Context, token, email string, ttl time.Duration) error
	LookupResetToken(ctx context.Context, token string) (email string, found bool, err error)
	DeleteResetToken(ctx context.Context, token string) error
	Blacklist(ctx context.Context, token string, ttl time.Duration) error
	IsBlacklisted(ctx context.Context, token string) (bool, error)
}

// PasswordHasher はパスワードのハッシュ化と照合を行う。
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Compare(hash, plaintext string) error
}

// Recorder は認証イベントを記録する。
type Recorder interface {
	RecordAuthEvent(event string, success bool)
}

type noopRecorder struct{}

func (noopRecorder) RecordAuthEvent(string, bool) {}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	ResetTokenTTL time.Duration // パスワード再設定トークンの有効期間
	BlacklistTTL  time.Duration // ログアウトしたトークンをブラックリストに保持する期間
}

// Service は管理者認証のビジネスロジックを提供する。
type Service struct {
	admins   repository.AdminRepository
	tokens   *TokenIssuer
	store    TokenStore
	hasher   PasswordHasher
	mailer   mail.Sender
	recorder Recorder
	config   ServiceConfig
}

// NewService はServiceを生成する。recorderはnilでもよい。
func NewService(
	admins repository.AdminRepository,
	tokens *TokenIssuer,
	store TokenStore,
	hasher PasswordHasher,
	mailer mail.Sender,
	recorder Recorder,
	config ServiceConfig,
) *Service {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &Service{
		admins:   admins,
		tokens:   tokens,
		store:    store,
		hasher:   hasher,
		mailer:   mailer,
		recorder: recorder,
		config:   config,
	}
}

// SignUp は管理者アカウントを作成し、トークンを発行する。
// メールアドレス、電話番号の順に重複を確認する。
func (s *Service) SignUp(ctx context.Context, input model.NewAdmin) (*model.TokenPair, error) {
	email := normalizeEmail(input.Email)
	phone := strings.TrimSpace(input.PhoneNumber)

	if input.AdminType == model.AdminTypeInstallation && !input.Installation.IsLocation() {
		return nil, model.NewInvalidInstallationError(string(input.Installation))
	}

	existing, err := s.admins.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find admin by email: %w", err)
	}
	if existing != nil {
		s.recorder.RecordAuthEvent("signup", false)
		return nil, model.NewAdminExistsError("メールアドレス")
	}
	existing, err = s.admins.FindByPhoneNumber(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("failed to find admin by phone number: %w", err)
	}
	if existing != nil {
		s.recorder.RecordAuthEvent("signup", false)
		return nil, model.NewAdminExistsError("電話番号")
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	admin := &model.Admin{
		ID:           uuid.New().String(),
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
		Email:        email,
		PhoneNumber:  phone,
		PasswordHash: hash,
		Installation: input.Installation,
		AdminType:    input.AdminType,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.admins.Create(ctx, admin); err != nil {
		if errors.Is(err, model.ErrDuplicate) {
			return nil, model.NewAdminExistsError("メールアドレスまたは電話番号")
		}
		return nil, model.NewPersistenceFailureError("create admin", err)
	}

	pair, err := s.tokens.Issue(admin)
	if err != nil {
		return nil, err
	}

	s.recorder.RecordAuthEvent("signup", true)
	slog.Info("admin signed up",
		slog.String("admin_id", admin.ID),
		slog.String("installation", string(admin.Installation)),
		slog.String("admin_type", string(admin.AdminType)),
	)
	return pair, nil
}

// Login はメールアドレスとパスワードを検証してトークンを発行する。
// アカウントの有無はエラーから判別できないようにする。
func (s *Service) Login(ctx context.Context, email, password string) (*model.TokenPair, error) {
	admin, err := s.admins.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to find admin by email: %w", err)
	}
	if admin == nil {
		s.recorder.RecordAuthEvent("login", false)
		return nil, model.NewInvalidCredentialsError()
	}

	if err := s.hasher.Compare(admin.PasswordHash, password); err != nil {
		if !errors.Is(err, security.ErrPasswordMismatch) {
			slog.Error("password comparison failed",
				slog.String("admin_id", admin.ID),
				slog.String("error", err.Error()),
			)
		}
		s.recorder.RecordAuthEvent("login", false)
		return nil, model.NewInvalidCredentialsError()
	}

	pair, err := s.tokens.Issue(admin)
	if err != nil {
		return nil, err
	}
	s.recorder.RecordAuthEvent("login", true)
	slog.Info("admin logged in", slog.String("admin_id", admin.ID))
	return pair, nil
}

// Refresh はリフレッシュトークンを検証して新しいトークンの組を発行する。
// 使用済みのリフレッシュトークンはブラックリストに登録する。
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*model.TokenPair, error) {
	listed, err := s.store.IsBlacklisted(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if listed {
		s.recorder.RecordAuthEvent("refresh", false)
		return nil, model.NewTokenInvalidError()
	}

	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		s.recorder.RecordAuthEvent("refresh", false)
		return nil, model.NewTokenInvalidError()
	}

	admin, err := s.admins.FindByID(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("failed to find admin: %w", err)
	}
	if admin == nil {
		s.recorder.RecordAuthEvent("refresh", false)
		return nil, model.NewTokenInvalidError()
	}

	if err := s.store.Blacklist(ctx, refreshToken, s.config.BlacklistTTL); err != nil {
		return nil, err
	}

	pair, err := s.tokens.Issue(admin)
	if err != nil {
		return nil, err
	}
	s.recorder.RecordAuthEvent("refresh", true)
	return pair, nil
}

// ForgotPassword は6桁の再設定コードを生成して保存し、管理者にメールで送る。
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	admin, err := s.admins.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return fmt.Errorf("failed to find admin by email: %w", err)
	}
	if admin == nil {
		return model.NewAdminNotFoundError()
	}

	token, err := generateResetToken()
	if err != nil {
		return err
	}
	if err := s.store.SaveResetToken(ctx, token, admin.Email, s.config.ResetTokenTTL); err != nil {
		return err
	}

	err = s.mailer.SendPasswordReset(ctx, mail.PasswordReset{
		To:        admin.Email,
		FirstName: admin.FirstName,
		Token:     token,
		ExpiresIn: s.config.ResetTokenTTL,
	})
	if err != nil {
		return fmt.Errorf("failed to send password reset mail: %w", err)
	}

	s.recorder.RecordAuthEvent("forgot_password", true)
	slog.Info("password reset requested", slog.String("admin_id", admin.ID))
	return nil
}

// ResetPassword は再設定コードを検証して新しいパスワードを設定する。
// 使用したコードは削除する。
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	email, found, err := s.store.LookupResetToken(ctx, token)
	if err != nil {
		return err
	}
	if !found {
		s.recorder.RecordAuthEvent("reset_password", false)
		return model.NewTokenInvalidError()
	}

	admin, err := s.admins.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to find admin by email: %w", err)
	}
	if admin == nil {
		return model.NewAdminNotFoundError()
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.admins.Update(ctx, admin.ID, model.AdminUpdate{PasswordHash: &hash}); err != nil {
		return model.NewPersistenceFailureError("update admin password", err)
	}

	if err := s.store.DeleteResetToken(ctx, token); err != nil {
		slog.Warn("failed to delete used reset token",
			slog.String("admin_id", admin.ID),
			slog.String("error", err.Error()),
		)
	}

	s.recorder.RecordAuthEvent("reset_password", true)
	slog.Info("admin password reset", slog.String("admin_id", admin.ID))
	return nil
}

// Logout はアクセストークンとリフレッシュトークンをブラックリストに登録する。
// リフレッシュトークンは空でもよい。
func (s *Service) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if accessToken == "" {
		return model.NewUnauthorizedError()
	}
	for _, token := range []string{accessToken, refreshToken} {
		if token == "" {
			continue
		}
		if err := s.store.Blacklist(ctx, token, s.config.BlacklistTTL); err != nil {
			return err
		}
	}
	s.recorder.RecordAuthEvent("logout", true)
	return nil
}

// Authenticate はアクセストークンを検証し、管理者を返す。
// ブラックリスト登録済み、期限切れ、署名不正、管理者不在のいずれもUNAUTHORIZEDとなる。
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*model.Admin, error) {
	claims, err := s.tokens.ParseAccess(accessToken)
	if err != nil {
		return nil, model.NewUnauthorizedError()
	}

	listed, err := s.store.IsBlacklisted(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if listed {
		return nil, model.NewUnauthorizedError()
	}

	admin, err := s.admins.FindByID(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("failed to find admin: %w", err)
	}
	if admin == nil {
		return nil, model.NewUnauthorizedError()
	}
	return admin, nil
}

// GetAdmin は指定IDの管理者を返す。
func (s *Service) GetAdmin(ctx context.Context, adminID string) (*model.Admin, error) {
	admin, err := s.admins.FindByID(ctx, adminID)
	if err != nil {
		return nil, fmt.Errorf("failed to find admin: %w", err)
	}
	if admin == nil {
		return nil, model.NewAdminNotFoundError()
	}
	return admin, nil
}

// UpdateAdmin は管理者プロフィールを部分更新し、更新後の管理者を返す。
func (s *Service) UpdateAdmin(ctx context.Context, adminID string, input model.AdminProfileUpdate) (*model.Admin, error) {
	update := model.AdminUpdate{
		FirstName:   trimmed(input.FirstName),
		LastName:    trimmed(input.LastName),
		PhoneNumber: trimmed(input.PhoneNumber),
	}
	if input.Email != nil {
		email := normalizeEmail(*input.Email)
		update.Email = &email
	}
	if input.Password != nil {
		hash, err := s.hasher.Hash(*input.Password)
		if err != nil {
			return nil, err
		}
		update.PasswordHash = &hash
	}

	if err := s.admins.Update(ctx, adminID, update); err != nil {
		switch {
		case errors.Is(err, model.ErrNoRowsAffected):
			return nil, model.NewAdminNotFoundError()
		case errors.Is(err, model.ErrDuplicate):
			return nil, model.NewAdminExistsError("メールアドレスまたは電話番号")
		default:
			return nil, model.NewPersistenceFailureError("update admin", err)
		}
	}
	return s.GetAdmin(ctx, adminID)
}

// generateResetToken は暗号的に安全な6桁の数字コードを生成する。
func generateResetToken() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("failed to generate reset token: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	return &t
}
