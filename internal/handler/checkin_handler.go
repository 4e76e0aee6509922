package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/checkin/internal/middleware"
	"github.com/hitoshi/checkin/internal/model"
)

// CheckinServiceInterface はチェックインハンドラーが必要とするサービスインターフェース。
// checkin.Serviceが満たす。
type CheckinServiceInterface interface {
	CheckInByName(ctx context.Context, firstName, lastName string, at model.Installation) (*model.MemberProfile, error)
	CheckInByToken(ctx context.Context, token string, at model.Installation) (*model.MemberProfile, error)
	CheckInByID(ctx context.Context, memberID string, at model.Installation) (*model.MemberProfile, error)
	CreateFirstTimeMember(ctx context.Context, input model.NewMember) (*model.MemberProfile, error)
	GetDashboardStatistics(ctx context.Context, scope model.Installation) (*model.Statistics, error)
}

// CheckinHandler はチェックインと初来会登録、ダッシュボードのHTTPハンドラー。
type CheckinHandler struct {
	service   CheckinServiceInterface
	validator Validator
}

// NewCheckinHandler はCheckinHandlerを生成する。
func NewCheckinHandler(service CheckinServiceInterface, validator Validator) *CheckinHandler {
	return &CheckinHandler{
		service:   service,
		validator: validator,
	}
}

type checkInByNameRequest struct {
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
}

type checkInByTokenRequest struct {
	CheckinToken string `json:"checkin_token" validate:"required"`
}

// requestInstallation はInstallationMiddlewareが検証した拠点を取り出す。
func requestInstallation(w http.ResponseWriter, r *http.Request) (model.Installation, bool) {
	inst, err := middleware.InstallationFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidInstallationError(""))
		return "", false
	}
	return inst, true
}

// CheckIn は氏名で登録済みメンバーをチェックインする。
// POST /v1/attendance/check-in
func (h *CheckinHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	at, ok := requestInstallation(w, r)
	if !ok {
		return
	}

	var req checkInByNameRequest
	if !decodeJSONBody(w, r, h.validator, &req) {
		return
	}

	profile, err := h.service.CheckInByName(r.Context(), req.FirstName, req.LastName, at)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberResponse(profile))
}

// CheckInByToken はチェックイントークン（QRコード）でメンバーをチェックインする。
// POST /v1/attendance/check-in/token
func (h *CheckinHandler) CheckInByToken(w http.ResponseWriter, r *http.Request) {
	at, ok := requestInstallation(w, r)
	if !ok {
		return
	}

	var req checkInByTokenRequest
	if !decodeJSONBody(w, r, h.validator, &req) {
		return
	}

	profile, err := h.service.CheckInByToken(r.Context(), req.CheckinToken, at)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberResponse(profile))
}

// CheckInByID はメンバーIDでチェックインする。
// POST /v1/attendance/check-in/{member_id}
func (h *CheckinHandler) CheckInByID(w http.ResponseWriter, r *http.Request) {
	at, ok := requestInstallation(w, r)
	if !ok {
		return
	}

	profile, err := h.service.CheckInByID(r.Context(), chi.URLParam(r, "member_id"), at)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberResponse(profile))
}

// RegisterFirstTimer は初来会メンバーを登録し、同時に初回のチェックインを記録する。
// POST /v1/attendance/new-member
func (h *CheckinHandler) RegisterFirstTimer(w http.ResponseWriter, r *http.Request) {
	at, ok := requestInstallation(w, r)
	if !ok {
		return
	}

	var req model.NewMember
	if !decodeJSONBody(w, r, nil, &req) {
		return
	}
	// トライブの検証には拠点が必要なため、ヘッダーの値を設定してから検証する
	req.Installation = at
	if err := h.validator.ValidateStruct(&req); err != nil {
		handleServiceError(w, err)
		return
	}

	profile, err := h.service.CreateFirstTimeMember(r.Context(), req)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMemberResponse(profile))
}

// Dashboard は管理者のスコープでの集計値を返す。
// GET /v1/attendances/dashboard
func (h *CheckinHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	admin := requireAdmin(w, r)
	if admin == nil {
		return
	}

	stats, err := h.service.GetDashboardStatistics(r.Context(), admin.Scope())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatisticsResponse(stats))
}
