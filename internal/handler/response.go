// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/checkin/internal/middleware"
	"github.com/hitoshi/checkin/internal/model"
)

// maxRequestBodyBytes はJSONリクエストボディの上限。
const maxRequestBodyBytes = 1 << 20

// Validator はリクエストボディの構造体検証インターフェース。
// validation.StructValidatorが満たす。
type Validator interface {
	ValidateStruct(data any) error
}

// --- レスポンス型 ---

// attendanceResponse は出席記録のAPIレスポンス。
type attendanceResponse struct {
	UID               string  `json:"uid"`
	MemberUID         string  `json:"member_uid"`
	Date              string  `json:"date"`
	SundayService     bool    `json:"sunday_service"`
	GlobalGethsemane  bool    `json:"global_gethsemane"`
	MidweekService    bool    `json:"midweek_service"`
	IsGuest           bool    `json:"is_guest"`
	GuestInstallation *string `json:"guest_installation"`
	DateCreatedUTC    string  `json:"date_created_utc"`
}

// memberResponse は出席履歴付きメンバーのAPIレスポンス。
type memberResponse struct {
	MemberUID      string               `json:"member_uid"`
	FirstName      string               `json:"first_name"`
	LastName       string               `json:"last_name"`
	Email          string               `json:"email"`
	PhoneNumber    string               `json:"phone_number"`
	Installation   string               `json:"installation"`
	Gender         string               `json:"gender,omitempty"`
	Tribe          string               `json:"tribe,omitempty"`
	IsFirstTime    bool                 `json:"is_first_time"`
	CheckinToken   string               `json:"checkin_token"`
	Address        string               `json:"address,omitempty"`
	Occupation     string               `json:"occupation,omitempty"`
	Instagram      string               `json:"instagram,omitempty"`
	Twitter        string               `json:"twitter,omitempty"`
	Referral       string               `json:"referral,omitempty"`
	PrayerRequest  string               `json:"prayer_request,omitempty"`
	DateCreatedUTC string               `json:"date_created_utc"`
	Attendance     []attendanceResponse `json:"attendance"`
}

// memberPageResponse はメンバー一覧のAPIレスポンス。
type memberPageResponse struct {
	ResultSet  []memberResponse `json:"result_set"`
	ResultSize int              `json:"result_size"`
}

// statisticsResponse はダッシュボード集計のAPIレスポンス。
type statisticsResponse struct {
	TotalNumberMembers          int `json:"total_number_members"`
	TotalNumberFirstTimers      int `json:"total_number_first_timers"`
	TotalNumberOnSunday         int `json:"total_number_on_sunday"`
	TotalNumberGlobalGethsemane int `json:"total_number_global_gethsemane"`
	TotalNumberLocalGethsemane  int `json:"total_number_local_gethsemane"`
}

// tokenResponse はアクセストークンとリフレッシュトークンのAPIレスポンス。
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// adminResponse は管理者プロフィールのAPIレスポンス。パスワードハッシュは含めない。
type adminResponse struct {
	AdminUID     string `json:"admin_uid"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Email        string `json:"email"`
	PhoneNumber  string `json:"phone_number"`
	Installation string `json:"installation"`
	AdminType    string `json:"admin_type"`
}

// messageResponse は本文を持たない操作の確認レスポンス。
type messageResponse struct {
	Message string `json:"message"`
}

// --- 変換 ---

func toAttendanceResponse(rec model.AttendanceRecord) attendanceResponse {
	resp := attendanceResponse{
		UID:              rec.ID,
		MemberUID:        rec.MemberID,
		Date:             rec.Date.Format(model.DateLayout),
		SundayService:    rec.SundayService,
		GlobalGethsemane: rec.GlobalGethsemane,
		MidweekService:   rec.MidweekService,
		IsGuest:          rec.IsGuest,
		DateCreatedUTC:   rec.CreatedAt.UTC().Format(time.RFC3339),
	}
	if rec.IsGuest && rec.GuestInstallation != "" {
		guest := string(rec.GuestInstallation)
		resp.GuestInstallation = &guest
	}
	return resp
}

func toMemberResponse(p *model.MemberProfile) memberResponse {
	attendance := make([]attendanceResponse, len(p.Attendance))
	for i, rec := range p.Attendance {
		attendance[i] = toAttendanceResponse(rec)
	}
	return memberResponse{
		MemberUID:      p.ID,
		FirstName:      p.FirstName,
		LastName:       p.LastName,
		Email:          p.Email,
		PhoneNumber:    p.PhoneNumber,
		Installation:   string(p.Installation),
		Gender:         p.Gender,
		Tribe:          string(p.Tribe),
		IsFirstTime:    p.IsFirstTime,
		CheckinToken:   p.CheckinToken,
		Address:        p.Address,
		Occupation:     p.Occupation,
		Instagram:      p.Instagram,
		Twitter:        p.Twitter,
		Referral:       p.Referral,
		PrayerRequest:  p.PrayerRequest,
		DateCreatedUTC: p.CreatedAt.UTC().Format(time.RFC3339),
		Attendance:     attendance,
	}
}

func toMemberPageResponse(page *model.MemberPage) memberPageResponse {
	members := make([]memberResponse, len(page.Members))
	for i := range page.Members {
		members[i] = toMemberResponse(&page.Members[i])
	}
	return memberPageResponse{ResultSet: members, ResultSize: page.Total}
}

func toStatisticsResponse(s *model.Statistics) statisticsResponse {
	return statisticsResponse{
		TotalNumberMembers:          s.TotalMembers,
		TotalNumberFirstTimers:      s.TotalFirstTimers,
		TotalNumberOnSunday:         s.TotalOnSunday,
		TotalNumberGlobalGethsemane: s.TotalGlobalGethsemane,
		TotalNumberLocalGethsemane:  s.TotalMidweek,
	}
}

func toTokenResponse(pair *model.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "bearer",
	}
}

func toAdminResponse(a *model.Admin) adminResponse {
	return adminResponse{
		AdminUID:     a.ID,
		FirstName:    a.FirstName,
		LastName:     a.LastName,
		Email:        a.Email,
		PhoneNumber:  a.PhoneNumber,
		Installation: string(a.Installation),
		AdminType:    string(a.AdminType),
	}
}

// --- ヘルパー関数 ---

// writeJSON はステータスコードとJSONボディを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("failed to encode response", slog.String("error", err.Error()))
	}
}

// decodeJSONBody はリクエストボディをdstにデコードし、validatorがあれば検証する。
// 失敗時はエラーレスポンスを書き込み、falseを返す。
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v Validator, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodyBytes))
	if err := dec.Decode(dst); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return false
	}
	if v != nil {
		if err := v.ValidateStruct(dst); err != nil {
			handleServiceError(w, err)
			return false
		}
	}
	return true
}

// requireAdmin はコンテキストから認証済み管理者を取り出す。
// 取得できない場合は401を書き込み、nilを返す。
func requireAdmin(w http.ResponseWriter, r *http.Request) *model.Admin {
	admin, err := middleware.AdminFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return nil
	}
	return admin
}

// parsePagination はlimit・offsetクエリを解析する。
// 未指定は0（サービス側のデフォルト）、負数や数値以外はエラーとする。
func parsePagination(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	if raw := q.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return 0, 0, model.NewValidationError("limit:min")
		}
	}
	if raw := q.Get("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return 0, 0, model.NewValidationError("offset:min")
		}
	}
	return limit, offset, nil
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		if statusCode >= http.StatusInternalServerError {
			slog.Error("service error", slog.String("code", apiErr.Code), slog.String("error", apiErr.Error()))
		}
		middleware.WriteErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeMemberNotFound, model.ErrCodeAttendanceNotFound, model.ErrCodeAdminNotFound:
		return http.StatusNotFound
	case model.ErrCodeMemberExists, model.ErrCodeAdminExists, model.ErrCodeAttendanceExists,
		model.ErrCodeDuplicateCheckinConflict:
		return http.StatusConflict
	case model.ErrCodeValidationFailed, model.ErrCodeInvalidRequest, model.ErrCodeInvalidInstallation:
		return http.StatusBadRequest
	case model.ErrCodeInvalidCredentials, model.ErrCodeTokenInvalid, model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
