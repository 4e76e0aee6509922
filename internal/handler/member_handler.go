package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/checkin/internal/model"
)

// MemberServiceInterface はメンバー管理ハンドラーが必要とするサービスインターフェース。
// member.Serviceが満たす。scopeは管理者のスコープ（GLOBALは全拠点）。
type MemberServiceInterface interface {
	ListMembers(ctx context.Context, scope model.Installation, limit, offset int) (*model.MemberPage, error)
	GetMember(ctx context.Context, scope model.Installation, memberID string) (*model.MemberProfile, error)
	UpdateMember(ctx context.Context, scope model.Installation, memberID string, update model.MemberUpdate) (*model.MemberProfile, error)
	DeleteMember(ctx context.Context, scope model.Installation, memberID string) error
	GetAttendance(ctx context.Context, scope model.Installation, attendanceID string) (*model.AttendanceRecord, error)
	UpdateAttendance(ctx context.Context, scope model.Installation, attendanceID string, update model.AttendanceUpdate) (*model.AttendanceRecord, error)
	DeleteAttendance(ctx context.Context, scope model.Installation, attendanceID string) error
}

// MemberHandler はメンバーと出席記録の管理用HTTPハンドラー。
type MemberHandler struct {
	service   MemberServiceInterface
	validator Validator
}

// NewMemberHandler はMemberHandlerを生成する。
func NewMemberHandler(service MemberServiceInterface, validator Validator) *MemberHandler {
	return &MemberHandler{
		service:   service,
		validator: validator,
	}
}

// attendanceUpdateRequest は出席記録の部分更新リクエスト。
type attendanceUpdateRequest struct {
	Date             *string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	SundayService    *bool   `json:"sunday_service"`
	MidweekService   *bool   `json:"midweek_service"`
	GlobalGethsemane *bool   `json:"global_gethsemane"`
}

func (req attendanceUpdateRequest) toUpdate() (model.AttendanceUpdate, error) {
	update := model.AttendanceUpdate{
		SundayService:    req.SundayService,
		MidweekService:   req.MidweekService,
		GlobalGethsemane: req.GlobalGethsemane,
	}
	if req.Date != nil {
		d, err := time.Parse(model.DateLayout, *req.Date)
		if err != nil {
			return model.AttendanceUpdate{}, model.NewValidationError("date:datetime")
		}
		update.Date = &d
	}
	return update, nil
}

// ListMembers は管理者のスコープのメンバー一覧を出席履歴付きで返す。
// GET /v1/attendances/?limit=&offset=
func (h *MemberHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	admin := requireAdmin(w, r)
	if admin == nil {
		return
	}

	limit, offset, err := parsePagination(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	page, err := h.service.ListMembers(r.Context(), admin.Scope(), limit, offset)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberPageResponse(page))
}

// GetMember はメンバーを出席履歴付きで返す。
// GET /v1/attendance/{member_id}
func (h *MemberHandler) GetMember(w http.ResponseWriter, r *http.Request) {
	admin := requireAdmin(w, r)
	if admin == nil {
		return
	}

	profile, err := h.service.GetMember(r.Context(), admin.Scope(), chi.URLParam(r, "member_id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberResponse(profile))
}

// UpdateMember はメンバーを部分更新する。
// PATCH /v1/attendance/{member_id}
func (h *MemberHandler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	admin := requireAdmin(w, r)
	if admin == nil {
		return
	}

	var req model.MemberUpdate
	if !decodeJSONBody(w, r, h.validator, &req) {
		return
	}
	if req.IsEmpty() {
		handleServiceError(w, model.NewValidationError("body:empty"))
		return
	}

	profile, err := h.service.UpdateMember(r.Context(), admin.Scope(), chi.URLParam(r, "member_id"), req)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberResponse(profile))
}

// DeleteMember はメンバーと出席記録を削除する。
// DELETE /v1/attendance/{member_id}
func (h *MemberHandler) DeleteMember(w http.ResponseWriter, r *http.Request) {
	admin := requireAdmin(w, r)
	if admin == nil {
		return
	}

	if err := h.service.DeleteMember(r.Context(), admin.Scope(), chi.URLParam(r, "member_id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetAttendance は出席記録を返す。
// GET /v1/attendances/{uid}
func (h *MemberHandler) GetAttendance(w http.ResponseWriter, r *http.Request) {
	admin := requireAdmin(w, r)
	if admin == nil {
		return
	}

	rec, err := h.service.GetAttendance(r.Context(), admin.Scope(), chi.URLParam(r, "uid"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAttendanceResponse(*rec))
}

// UpdateAttendance は出席記録を部分更新する。
// PATCH /v1/attendances/{uid}
func (h *MemberHandler) UpdateAttendance(w http.ResponseWriter, r *http.Request) {
	admin := requireAdmin(w, r)
	if admin == nil {
		return
	}

	var req attendanceUpdateRequest
	if !decodeJSONBody(w, r, h.validator, &req) {
		return
	}
	update, err := req.toUpdate()
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if update.IsEmpty() {
		handleServiceError(w, model.NewValidationError("body:empty"))
		return
	}

	rec, err := h.service.UpdateAttendance(r.Context(), admin.Scope(), chi.URLParam(r, "uid"), update)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAttendanceResponse(*rec))
}

// DeleteAttendance は出席記録を削除する。
// DELETE /v1/attendances/{uid}
func (h *MemberHandler) DeleteAttendance(w http.ResponseWriter, r *http.Request) {
	admin := requireAdmin(w, r)
	if admin == nil {
		return
	}

	if err := h.service.DeleteAttendance(r.Context(), admin.Scope(), chi.URLParam(r, "uid")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
