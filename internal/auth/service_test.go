package auth

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/hitoshi/checkin/internal/mail"
	"github.com/hitoshi/checkin/internal/model"
	"github.com/hitoshi/checkin/internal/security"
)

// --- モック定義 ---

type mockAdminRepo struct {
	findByIDFn    func(ctx context.Context, id string) (*model.Admin, error)
	findByEmailFn func(ctx context.Context, email string) (*model.Admin, error)
	findByPhoneFn func(ctx context.Context, phone string) (*model.Admin, error)
	createFn      func(ctx context.Context, admin *model.Admin) error
	updateFn      func(ctx context.Context, id string, u model.AdminUpdate) error
}

func (m *mockAdminRepo) FindByID(ctx context.Context, id string) (*model.Admin, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockAdminRepo) FindByEmail(ctx context.Context, email string) (*model.Admin, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockAdminRepo) FindByPhoneNumber(ctx context.Context, phone string) (*model.Admin, error) {
	if m.findByPhoneFn != nil {
		return m.findByPhoneFn(ctx, phone)
	}
	return nil, nil
}

func (m *mockAdminRepo) Create(ctx context.Context, admin *model.Admin) error {
	if m.createFn != nil {
		return m.createFn(ctx, admin)
	}
	return nil
}

func (m *mockAdminRepo) Update(ctx context.Context, id string, u model.AdminUpdate) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, u)
	}
	return nil
}

// memoryTokenStore はTokenStoreのインメモリ実装。
type memoryTokenStore struct {
	reset       map[string]string
	blacklisted map[string]time.Duration
	err         error
}

func newMemoryTokenStore() *memoryTokenStore {
	return &memoryTokenStore{reset: map[string]string{}, blacklisted: map[string]time.Duration{}}
}

func (m *memoryTokenStore) SaveResetToken(_ context.Context, token, email string, _ time.Duration) error {
	if m.err != nil {
		return m.err
	}
	m.reset[token] = email
	return nil
}

func (m *memoryTokenStore) LookupResetToken(_ context.Context, token string) (string, bool, error) {
	if m.err != nil {
		return "", false, m.err
	}
	email, ok := m.reset[token]
	return email, ok, nil
}

func (m *memoryTokenStore) DeleteResetToken(_ context.Context, token string) error {
	delete(m.reset, token)
	return nil
}

func (m *memoryTokenStore) Blacklist(_ context.Context, token string, ttl time.Duration) error {
	if m.err != nil {
		return m.err
	}
	m.blacklisted[token] = ttl
	return nil
}

func (m *memoryTokenStore) IsBlacklisted(_ context.Context, token string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	_, ok := m.blacklisted[token]
	return ok, nil
}

// plainHasher はテスト用にハッシュを "hashed:" 接頭辞で表す。
type plainHasher struct{}

func (plainHasher) Hash(p string) (string, error) { return "hashed:" + p, nil }
func (plainHasher) Compare(hash, p string) error {
	if hash != "hashed:"+p {
		return security.ErrPasswordMismatch
	}
	return nil
}

type capturingMailer struct {
	sent []mail.PasswordReset
	err  error
}

func (m *capturingMailer) SendPasswordReset(_ context.Context, msg mail.PasswordReset) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type countingRecorder struct {
	events map[string][2]int
}

func (r *countingRecorder) RecordAuthEvent(event string, success bool) {
	if r.events == nil {
		r.events = map[string][2]int{}
	}
	c := r.events[event]
	if success {
		c[0]++
	} else {
		c[1]++
	}
	r.events[event] = c
}

type testDeps struct {
	repo     *mockAdminRepo
	store    *memoryTokenStore
	mailer   *capturingMailer
	recorder *countingRecorder
}

func newTestService() (*Service, *testDeps) {
	deps := &testDeps{
		repo:     &mockAdminRepo{},
		store:    newMemoryTokenStore(),
		mailer:   &capturingMailer{},
		recorder: &countingRecorder{},
	}
	svc := NewService(deps.repo, newTestIssuer(), deps.store, plainHasher{}, deps.mailer, deps.recorder, ServiceConfig{
		ResetTokenTTL: 120 * time.Second,
		BlacklistTTL:  24 * time.Hour,
	})
	return svc, deps
}

func storedAdmin() *model.Admin {
	return &model.Admin{
		ID:           testAdmin.ID,
		FirstName:    "Bola",
		LastName:     "Ade",
		Email:        "admin@church.example",
		PhoneNumber:  "08030000000",
		PasswordHash: "hashed:Secr3t!pass",
		Installation: model.InstallationIkeja,
		AdminType:    model.AdminTypeInstallation,
	}
}

func newAdminInput() model.NewAdmin {
	return model.NewAdmin{
		FirstName:    "Bola",
		LastName:     "Ade",
		Email:        "  Admin@Church.Example ",
		PhoneNumber:  "08030000000",
		Password:     "Secr3t!pass",
		Installation: model.InstallationIkeja,
		AdminType:    model.AdminTypeInstallation,
	}
}

// --- SignUp ---

func TestSignUp_CreatesAdminAndIssuesTokens(t *testing.T) {
	svc, deps := newTestService()
	var created *model.Admin
	deps.repo.createFn = func(_ context.Context, a *model.Admin) error {
		created = a
		return nil
	}

	pair, err := svc.SignUp(context.Background(), newAdminInput())
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if created == nil {
		t.Fatal("admin was not created")
	}
	if created.Email != "admin@church.example" {
		t.Errorf("email = %q, want normalized", created.Email)
	}
	if created.PasswordHash != "hashed:Secr3t!pass" {
		t.Errorf("password must be stored hashed, got %q", created.PasswordHash)
	}
	claims, err := newTestIssuer().ParseAccess(pair.AccessToken)
	if err != nil || claims.Subject != created.ID {
		t.Errorf("access token subject = %v, err = %v", claims, err)
	}
	if deps.recorder.events["signup"][0] != 1 {
		t.Errorf("signup success not recorded: %v", deps.recorder.events)
	}
}

func TestSignUp_DuplicateEmail(t *testing.T) {
	svc, deps := newTestService()
	deps.repo.findByEmailFn = func(context.Context, string) (*model.Admin, error) { return storedAdmin(), nil }
	deps.repo.createFn = func(context.Context, *model.Admin) error {
		t.Error("Create must not be called")
		return nil
	}

	_, err := svc.SignUp(context.Background(), newAdminInput())
	if !model.HasCode(err, model.ErrCodeAdminExists) {
		t.Errorf("error = %v, want ADMIN_EXISTS", err)
	}
}

func TestSignUp_DuplicatePhone(t *testing.T) {
	svc, deps := newTestService()
	deps.repo.findByPhoneFn = func(_ context.Context, phone string) (*model.Admin, error) {
		if phone != "08030000000" {
			t.Errorf("phone = %q", phone)
		}
		return storedAdmin(), nil
	}

	_, err := svc.SignUp(context.Background(), newAdminInput())
	if !model.HasCode(err, model.ErrCodeAdminExists) {
		t.Errorf("error = %v, want ADMIN_EXISTS", err)
	}
}

func TestSignUp_UniqueViolationRace(t *testing.T) {
	svc, deps := newTestService()
	deps.repo.createFn = func(context.Context, *model.Admin) error {
		return errors.Join(errors.New("insert"), model.ErrDuplicate)
	}

	_, err := svc.SignUp(context.Background(), newAdminInput())
	if !model.HasCode(err, model.ErrCodeAdminExists) {
		t.Errorf("error = %v, want ADMIN_EXISTS", err)
	}
}

func TestSignUp_InstallationAdminNeedsLocation(t *testing.T) {
	svc, _ := newTestService()
	input := newAdminInput()
	input.Installation = model.InstallationGlobal

	_, err := svc.SignUp(context.Background(), input)
	if !model.HasCode(err, model.ErrCodeInvalidInstallation) {
		t.Errorf("error = %v, want INVALID_INSTALLATION", err)
	}
}

func TestSignUp_GlobalAdminMayUseGlobal(t *testing.T) {
	svc, _ := newTestService()
	input := newAdminInput()
	input.Installation = model.InstallationGlobal
	input.AdminType = model.AdminTypeGlobal

	if _, err := svc.SignUp(context.Background(), input); err != nil {
		t.Errorf("SignUp() error = %v", err)
	}
}

// --- Login ---

func TestLogin_Success(t *testing.T) {
	svc, deps := newTestService()
	deps.repo.findByEmailFn = func(_ context.Context, email string) (*model.Admin, error) {
		if email != "admin@church.example" {
			t.Errorf("email = %q, want normalized", email)
		}
		return storedAdmin(), nil
	}

	pair, err := svc.Login(context.Background(), "ADMIN@church.example", "Secr3t!pass")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if pair.AccessToken == "" {
		t.Error("access token should be issued")
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	tests := []struct {
		name     string
		admin    *model.Admin
		password string
	}{
		{"未登録のメールアドレス", nil, "Secr3t!pass"},
		{"パスワード誤り", storedAdmin(), "wrong"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, deps := newTestService()
			deps.repo.findByEmailFn = func(context.Context, string) (*model.Admin, error) { return tt.admin, nil }

			_, err := svc.Login(context.Background(), "admin@church.example", tt.password)
			if !model.HasCode(err, model.ErrCodeInvalidCredentials) {
				t.Errorf("error = %v, want INVALID_CREDENTIALS", err)
			}
			if deps.recorder.events["login"][1] != 1 {
				t.Errorf("failed login not recorded: %v", deps.recorder.events)
			}
		})
	}
}

// --- Refresh ---

func TestRefresh_RotatesTokens(t *testing.T) {
	svc, deps := newTestService()
	deps.repo.findByIDFn = func(context.Context, string) (*model.Admin, error) { return storedAdmin(), nil }
	old, _ := newTestIssuer().Issue(storedAdmin())

	pair, err := svc.Refresh(context.Background(), old.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if pair.RefreshToken == old.RefreshToken {
		t.Error("refresh token should be rotated")
	}
	if _, ok := deps.store.blacklisted[old.RefreshToken]; !ok {
		t.Error("used refresh token should be blacklisted")
	}

	_, err = svc.Refresh(context.Background(), old.RefreshToken)
	if !model.HasCode(err, model.ErrCodeTokenInvalid) {
		t.Errorf("reuse error = %v, want TOKEN_INVALID", err)
	}
}

func TestRefresh_RejectsAccessTokenAndUnknownAdmin(t *testing.T) {
	svc, deps := newTestService()
	pair, _ := newTestIssuer().Issue(storedAdmin())

	if _, err := svc.Refresh(context.Background(), pair.AccessToken); !model.HasCode(err, model.ErrCodeTokenInvalid) {
		t.Errorf("access token error = %v, want TOKEN_INVALID", err)
	}

	deps.repo.findByIDFn = func(context.Context, string) (*model.Admin, error) { return nil, nil }
	if _, err := svc.Refresh(context.Background(), pair.RefreshToken); !model.HasCode(err, model.ErrCodeTokenInvalid) {
		t.Errorf("deleted admin error = %v, want TOKEN_INVALID", err)
	}
}

// --- ForgotPassword / ResetPassword ---

func TestForgotPassword_StoresTokenAndSendsMail(t *testing.T) {
	svc, deps := newTestService()
	deps.repo.findByEmailFn = func(context.Context, string) (*model.Admin, error) { return storedAdmin(), nil }

	if err := svc.ForgotPassword(context.Background(), "admin@church.example"); err != nil {
		t.Fatalf("ForgotPassword() error = %v", err)
	}

	if len(deps.mailer.sent) != 1 {
		t.Fatalf("sent = %d mails, want 1", len(deps.mailer.sent))
	}
	msg := deps.mailer.sent[0]
	if !regexp.MustCompile(`^\d{6}$`).MatchString(msg.Token) {
		t.Errorf("token = %q, want 6 digits", msg.Token)
	}
	if msg.ExpiresIn != 120*time.Second || msg.To != "admin@church.example" {
		t.Errorf("mail = %+v", msg)
	}
	if deps.store.reset[msg.Token] != "admin@church.example" {
		t.Errorf("reset token not stored: %v", deps.store.reset)
	}
}

func TestForgotPassword_UnknownEmail(t *testing.T) {
	svc, deps := newTestService()

	err := svc.ForgotPassword(context.Background(), "nobody@church.example")
	if !model.HasCode(err, model.ErrCodeAdminNotFound) {
		t.Errorf("error = %v, want ADMIN_NOT_FOUND", err)
	}
	if len(deps.mailer.sent) != 0 {
		t.Error("no mail should be sent")
	}
}

func TestForgotPassword_MailFailure(t *testing.T) {
	svc, deps := newTestService()
	deps.repo.findByEmailFn = func(context.Context, string) (*model.Admin, error) { return storedAdmin(), nil }
	deps.mailer.err = errors.New("resend unavailable")

	if err := svc.ForgotPassword(context.Background(), "admin@church.example"); !errors.Is(err, deps.mailer.err) {
		t.Errorf("error = %v, want wrapped mail error", err)
	}
}

func TestResetPassword_UpdatesHashAndConsumesToken(t *testing.T) {
	svc, deps := newTestService()
	deps.store.reset["482913"] = "admin@church.example"
	deps.repo.findByEmailFn = func(context.Context, string) (*model.Admin, error) { return storedAdmin(), nil }
	var updated model.AdminUpdate
	deps.repo.updateFn = func(_ context.Context, id string, u model.AdminUpdate) error {
		updated = u
		return nil
	}

	if err := svc.ResetPassword(context.Background(), "482913", "N3w!password"); err != nil {
		t.Fatalf("ResetPassword() error = %v", err)
	}
	if updated.PasswordHash == nil || *updated.PasswordHash != "hashed:N3w!password" {
		t.Errorf("password hash = %v", updated.PasswordHash)
	}
	if _, ok := deps.store.reset["482913"]; ok {
		t.Error("reset token should be deleted after use")
	}

	err := svc.ResetPassword(context.Background(), "482913", "Another1!")
	if !model.HasCode(err, model.ErrCodeTokenInvalid) {
		t.Errorf("reuse error = %v, want TOKEN_INVALID", err)
	}
}

// --- Logout / Authenticate ---

func TestLogout_BlacklistsBothTokens(t *testing.T) {
	svc, deps := newTestService()
	deps.repo.findByIDFn = func(context.Context, string) (*model.Admin, error) { return storedAdmin(), nil }
	pair, _ := newTestIssuer().Issue(storedAdmin())

	if _, err := svc.Authenticate(context.Background(), pair.AccessToken); err != nil {
		t.Fatalf("Authenticate() before logout error = %v", err)
	}

	if err := svc.Logout(context.Background(), pair.AccessToken, pair.RefreshToken); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if deps.store.blacklisted[pair.AccessToken] != 24*time.Hour {
		t.Errorf("access token ttl = %v, want 24h", deps.store.blacklisted[pair.AccessToken])
	}
	if _, ok := deps.store.blacklisted[pair.RefreshToken]; !ok {
		t.Error("refresh token should be blacklisted")
	}

	_, err := svc.Authenticate(context.Background(), pair.AccessToken)
	if !model.HasCode(err, model.ErrCodeUnauthorized) {
		t.Errorf("Authenticate() after logout error = %v, want UNAUTHORIZED", err)
	}
}

func TestLogout_RequiresAccessToken(t *testing.T) {
	svc, _ := newTestService()
	if err := svc.Logout(context.Background(), "", "r"); !model.HasCode(err, model.ErrCodeUnauthorized) {
		t.Errorf("error = %v, want UNAUTHORIZED", err)
	}
}

func TestAuthenticate_Failures(t *testing.T) {
	svc, deps := newTestService()
	pair, _ := newTestIssuer().Issue(storedAdmin())

	if _, err := svc.Authenticate(context.Background(), "garbage"); !model.HasCode(err, model.ErrCodeUnauthorized) {
		t.Errorf("garbage error = %v, want UNAUTHORIZED", err)
	}
	if _, err := svc.Authenticate(context.Background(), pair.AccessToken); !model.HasCode(err, model.ErrCodeUnauthorized) {
		t.Errorf("unknown admin error = %v, want UNAUTHORIZED", err)
	}

	deps.store.err = errors.New("redis down")
	if _, err := svc.Authenticate(context.Background(), pair.AccessToken); !errors.Is(err, deps.store.err) {
		t.Errorf("store error = %v, want redis error", err)
	}
}

// --- UpdateAdmin ---

func TestUpdateAdmin(t *testing.T) {
	svc, deps := newTestService()
	deps.repo.findByIDFn = func(context.Context, string) (*model.Admin, error) { return storedAdmin(), nil }
	var got model.AdminUpdate
	deps.repo.updateFn = func(_ context.Context, _ string, u model.AdminUpdate) error {
		got = u
		return nil
	}

	email := " NEW@Church.Example "
	password := "N3w!password"
	if _, err := svc.UpdateAdmin(context.Background(), testAdmin.ID, model.AdminProfileUpdate{Email: &email, Password: &password}); err != nil {
		t.Fatalf("UpdateAdmin() error = %v", err)
	}
	if got.Email == nil || *got.Email != "new@church.example" {
		t.Errorf("email = %v", got.Email)
	}
	if got.PasswordHash == nil || *got.PasswordHash != "hashed:N3w!password" {
		t.Errorf("password hash = %v", got.PasswordHash)
	}
	if got.FirstName != nil {
		t.Error("unset fields must stay nil")
	}
}

func TestUpdateAdmin_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		repoErr  error
		wantCode string
	}{
		{"対象なし", model.ErrNoRowsAffected, model.ErrCodeAdminNotFound},
		{"重複", model.ErrDuplicate, model.ErrCodeAdminExists},
		{"DBエラー", errors.New("connection reset"), model.ErrCodePersistenceFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, deps := newTestService()
			deps.repo.updateFn = func(context.Context, string, model.AdminUpdate) error { return tt.repoErr }
			name := "Tunde"
			_, err := svc.UpdateAdmin(context.Background(), testAdmin.ID, model.AdminProfileUpdate{FirstName: &name})
			if !model.HasCode(err, tt.wantCode) {
				t.Errorf("error = %v, want %s", err, tt.wantCode)
			}
		})
	}
}

func TestGetAdmin_NotFound(t *testing.T) {
	svc, _ := newTestService()
	if _, err := svc.GetAdmin(context.Background(), "missing"); !model.HasCode(err, model.ErrCodeAdminNotFound) {
		t.Errorf("error = %v, want ADMIN_NOT_FOUND", err)
	}
}

func TestGenerateResetToken(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		tok, err := generateResetToken()
		if err != nil {
			t.Fatal(err)
		}
		if len(tok) != 6 {
			t.Errorf("token %q should have 6 digits", tok)
		}
		seen[tok] = true
	}
	if len(seen) < 2 {
		t.Error("tokens should vary")
	}
}
