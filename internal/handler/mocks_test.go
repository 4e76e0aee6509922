package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/checkin/internal/middleware"
	"github.com/hitoshi/checkin/internal/model"
)

// --- モック定義 ---

// mockAuthService はAuthServiceInterfaceのモック実装。
type mockAuthService struct {
	signUpFn         func(ctx context.Context, input model.NewAdmin) (*model.TokenPair, error)
	loginFn          func(ctx context.Context, email, password string) (*model.TokenPair, error)
	refreshFn        func(ctx context.Context, refreshToken string) (*model.TokenPair, error)
	forgotPasswordFn func(ctx context.Context, email string) error
	resetPasswordFn  func(ctx context.Context, token, newPassword string) error
	logoutFn         func(ctx context.Context, accessToken, refreshToken string) error
	getAdminFn       func(ctx context.Context, adminID string) (*model.Admin, error)
	updateAdminFn    func(ctx context.Context, adminID string, input model.AdminProfileUpdate) (*model.Admin, error)
}

func (m *mockAuthService) SignUp(ctx context.Context, input model.NewAdmin) (*model.TokenPair, error) {
	if m.signUpFn != nil {
		return m.signUpFn(ctx, input)
	}
	return &model.TokenPair{AccessToken: "access", RefreshToken: "refresh"}, nil
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*model.TokenPair, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return &model.TokenPair{AccessToken: "access", RefreshToken: "refresh"}, nil
}

func (m *mockAuthService) Refresh(ctx context.Context, refreshToken string) (*model.TokenPair, error) {
	if m.refreshFn != nil {
		return m.refreshFn(ctx, refreshToken)
	}
	return &model.TokenPair{AccessToken: "access-2", RefreshToken: "refresh-2"}, nil
}

func (m *mockAuthService) ForgotPassword(ctx context.Context, email string) error {
	if m.forgotPasswordFn != nil {
		return m.forgotPasswordFn(ctx, email)
	}
	return nil
}

func (m *mockAuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if m.resetPasswordFn != nil {
		return m.resetPasswordFn(ctx, token, newPassword)
	}
	return nil
}

func (m *mockAuthService) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, accessToken, refreshToken)
	}
	return nil
}

func (m *mockAuthService) GetAdmin(ctx context.Context, adminID string) (*model.Admin, error) {
	if m.getAdminFn != nil {
		return m.getAdminFn(ctx, adminID)
	}
	return &model.Admin{ID: adminID}, nil
}

func (m *mockAuthService) UpdateAdmin(ctx context.Context, adminID string, input model.AdminProfileUpdate) (*model.Admin, error) {
	if m.updateAdminFn != nil {
		return m.updateAdminFn(ctx, adminID, input)
	}
	return &model.Admin{ID: adminID}, nil
}

// mockCheckinService はCheckinServiceInterfaceのモック実装。
type mockCheckinService struct {
	checkInByNameFn          func(ctx context.Context, firstName, lastName string, at model.Installation) (*model.MemberProfile, error)
	checkInByTokenFn         func(ctx context.Context, token string, at model.Installation) (*model.MemberProfile, error)
	checkInByIDFn            func(ctx context.Context, memberID string, at model.Installation) (*model.MemberProfile, error)
	createFirstTimeMemberFn  func(ctx context.Context, input model.NewMember) (*model.MemberProfile, error)
	getDashboardStatisticsFn func(ctx context.Context, scope model.Installation) (*model.Statistics, error)
}

func (m *mockCheckinService) CheckInByName(ctx context.Context, firstName, lastName string, at model.Installation) (*model.MemberProfile, error) {
	if m.checkInByNameFn != nil {
		return m.checkInByNameFn(ctx, firstName, lastName, at)
	}
	return testProfile(at), nil
}

func (m *mockCheckinService) CheckInByToken(ctx context.Context, token string, at model.Installation) (*model.MemberProfile, error) {
	if m.checkInByTokenFn != nil {
		return m.checkInByTokenFn(ctx, token, at)
	}
	return testProfile(at), nil
}

func (m *mockCheckinService) CheckInByID(ctx context.Context, memberID string, at model.Installation) (*model.MemberProfile, error) {
	if m.checkInByIDFn != nil {
		return m.checkInByIDFn(ctx, memberID, at)
	}
	return testProfile(at), nil
}

func (m *mockCheckinService) CreateFirstTimeMember(ctx context.Context, input model.NewMember) (*model.MemberProfile, error) {
	if m.createFirstTimeMemberFn != nil {
		return m.createFirstTimeMemberFn(ctx, input)
	}
	return testProfile(input.Installation), nil
}

func (m *mockCheckinService) GetDashboardStatistics(ctx context.Context, scope model.Installation) (*model.Statistics, error) {
	if m.getDashboardStatisticsFn != nil {
		return m.getDashboardStatisticsFn(ctx, scope)
	}
	return &model.Statistics{}, nil
}

// mockMemberService はMemberServiceInterfaceのモック実装。
type mockMemberService struct {
	listMembersFn      func(ctx context.Context, scope model.Installation, limit, offset int) (*model.MemberPage, error)
	getMemberFn        func(ctx context.Context, scope model.Installation, memberID string) (*model.MemberProfile, error)
	updateMemberFn     func(ctx context.Context, scope model.Installation, memberID string, update model.MemberUpdate) (*model.MemberProfile, error)
	deleteMemberFn     func(ctx context.Context, scope model.Installation, memberID string) error
	getAttendanceFn    func(ctx context.Context, scope model.Installation, attendanceID string) (*model.AttendanceRecord, error)
	updateAttendanceFn func(ctx context.Context, scope model.Installation, attendanceID string, update model.AttendanceUpdate) (*model.AttendanceRecord, error)
	deleteAttendanceFn func(ctx context.Context, scope model.Installation, attendanceID string) error
}

func (m *mockMemberService) ListMembers(ctx context.Context, scope model.Installation, limit, offset int) (*model.MemberPage, error) {
	if m.listMembersFn != nil {
		return m.listMembersFn(ctx, scope, limit, offset)
	}
	return &model.MemberPage{Members: []model.MemberProfile{}}, nil
}

func (m *mockMemberService) GetMember(ctx context.Context, scope model.Installation, memberID string) (*model.MemberProfile, error) {
	if m.getMemberFn != nil {
		return m.getMemberFn(ctx, scope, memberID)
	}
	return testProfile(model.InstallationAkure), nil
}

func (m *mockMemberService) UpdateMember(ctx context.Context, scope model.Installation, memberID string, update model.MemberUpdate) (*model.MemberProfile, error) {
	if m.updateMemberFn != nil {
		return m.updateMemberFn(ctx, scope, memberID, update)
	}
	return testProfile(model.InstallationAkure), nil
}

func (m *mockMemberService) DeleteMember(ctx context.Context, scope model.Installation, memberID string) error {
	if m.deleteMemberFn != nil {
		return m.deleteMemberFn(ctx, scope, memberID)
	}
	return nil
}

func (m *mockMemberService) GetAttendance(ctx context.Context, scope model.Installation, attendanceID string) (*model.AttendanceRecord, error) {
	if m.getAttendanceFn != nil {
		return m.getAttendanceFn(ctx, scope, attendanceID)
	}
	rec := testAttendance(model.InstallationAkure, model.InstallationAkure)
	return &rec, nil
}

func (m *mockMemberService) UpdateAttendance(ctx context.Context, scope model.Installation, attendanceID string, update model.AttendanceUpdate) (*model.AttendanceRecord, error) {
	if m.updateAttendanceFn != nil {
		return m.updateAttendanceFn(ctx, scope, attendanceID, update)
	}
	rec := testAttendance(model.InstallationAkure, model.InstallationAkure)
	return &rec, nil
}

func (m *mockMemberService) DeleteAttendance(ctx context.Context, scope model.Installation, attendanceID string) error {
	if m.deleteAttendanceFn != nil {
		return m.deleteAttendanceFn(ctx, scope, attendanceID)
	}
	return nil
}

// --- テストヘルパー ---

const (
	testMemberID     = "9b2e7c1a-5d4f-4a8e-b6c3-2f1e0d9c8b70"
	testAttendanceID = "1c3d5e7f-9a2b-4c6d-8e0f-1a2b3c4d5e6f"
)

var (
	installationAdmin = &model.Admin{ID: "admin-akure", Installation: model.InstallationAkure, AdminType: model.AdminTypeInstallation}
	globalAdmin       = &model.Admin{ID: "admin-global", Installation: model.InstallationIkeja, AdminType: model.AdminTypeGlobal}
)

func testAttendance(home, at model.Installation) model.AttendanceRecord {
	rec := model.AttendanceRecord{
		ID:             testAttendanceID,
		MemberID:       testMemberID,
		Date:           time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC),
		SundayService:  true,
		MidweekService: false,
		CreatedAt:      time.Date(2024, 6, 2, 9, 30, 0, 0, time.UTC),
	}
	if home != at {
		rec.IsGuest = true
		rec.GuestInstallation = at
	}
	return rec
}

func testProfile(at model.Installation) *model.MemberProfile {
	return &model.MemberProfile{
		Member: model.Member{
			ID:           testMemberID,
			FirstName:    "Ada",
			LastName:     "Obi",
			Email:        "ada@example.com",
			PhoneNumber:  "08012345678",
			Installation: model.InstallationAkure,
			CheckinToken: "checkin-token",
			IsFirstTime:  true,
			CreatedAt:    time.Date(2024, 1, 7, 8, 0, 0, 0, time.UTC),
		},
		Attendance: []model.AttendanceRecord{testAttendance(model.InstallationAkure, at)},
	}
}

// withAdmin はテスト用にリクエストコンテキストに管理者を注入するヘルパー。
func withAdmin(r *http.Request, admin *model.Admin) *http.Request {
	return r.WithContext(middleware.ContextWithAdmin(r.Context(), admin))
}

// withInstallation はテスト用にリクエストコンテキストにチェックイン先の拠点を注入するヘルパー。
func withInstallation(r *http.Request, inst model.Installation) *http.Request {
	return r.WithContext(middleware.ContextWithInstallation(r.Context(), inst))
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// jsonRequest はJSONボディ付きのリクエストを生成する。
func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		t.Fatalf("failed to encode body: %v", err)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}
