// Package member は管理者向けのメンバー・出席記録の管理機能を提供する。
// 拠点管理者は自拠点のメンバーのみを参照・変更できる。
package member

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/hitoshi/checkin/internal/model"
	"github.com/hitoshi/checkin/internal/repository"
)

// 一覧のページサイズ。
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// TextSanitizer は自由記述欄からマークアップを除去する。
type TextSanitizer interface {
	SanitizeText(s string) string
}

// Service はメンバー管理のビジネスロジックを提供する。
type Service struct {
	members    repository.MemberRepository
	attendance repository.AttendanceRepository
	sanitizer  TextSanitizer
}

// NewService はServiceを生成する。sanitizerはnilでもよい。
func NewService(members repository.MemberRepository, attendance repository.AttendanceRepository, sanitizer TextSanitizer) *Service {
	return &Service{members: members, attendance: attendance, sanitizer: sanitizer}
}

// ListMembers はスコープ内のメンバーを出席履歴付きで返す。
// limitが0以下の場合はDefaultPageSize、MaxPageSizeを超える場合はMaxPageSizeに丸める。
func (s *Service) ListMembers(ctx context.Context, scope model.Installation, limit, offset int) (*model.MemberPage, error) {
	if !scope.IsLocation() && !scope.IsGlobal() {
		return nil, model.NewInvalidInstallationError(string(scope))
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	total, err := s.members.Count(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to count members: %w", err)
	}
	members, err := s.members.List(ctx, scope, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}

	page := &model.MemberPage{Members: make([]model.MemberProfile, 0, len(members)), Total: total}
	if len(members) == 0 {
		return page, nil
	}

	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	history, err := s.attendance.ListForMembers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list attendance: %w", err)
	}
	for _, m := range members {
		page.Members = append(page.Members, model.MemberProfile{Member: *m, Attendance: history[m.ID]})
	}
	return page, nil
}

// GetMember はメンバーを出席履歴付きで返す。
func (s *Service) GetMember(ctx context.Context, scope model.Installation, memberID string) (*model.MemberProfile, error) {
	member, err := s.findMember(ctx, scope, memberID)
	if err != nil {
		return nil, err
	}
	history, err := s.attendance.ListForMember(ctx, member.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attendance: %w", err)
	}
	return &model.MemberProfile{Member: *member, Attendance: history}, nil
}

// UpdateMember はメンバーを部分更新し、更新後のプロフィールを返す。
// トライブは所属拠点の許可リストで検証する。
func (s *Service) UpdateMember(ctx context.Context, scope model.Installation, memberID string, update model.MemberUpdate) (*model.MemberProfile, error) {
	member, err := s.findMember(ctx, scope, memberID)
	if err != nil {
		return nil, err
	}

	update = s.normalizeUpdate(update)
	if update.Tribe != nil && !member.Installation.AllowsTribe(*update.Tribe) {
		return nil, model.NewValidationError(fmt.Sprintf("tribe %s is not available at %s", *update.Tribe, member.Installation))
	}

	if err := s.members.Update(ctx, member.ID, update); err != nil {
		switch {
		case errors.Is(err, model.ErrNoRowsAffected):
			return nil, model.NewMemberNotFoundError(memberID)
		case errors.Is(err, model.ErrDuplicate):
			return nil, model.NewMemberExistsError()
		default:
			return nil, model.NewPersistenceFailureError("update member", err)
		}
	}

	slog.Info("member updated", slog.String("member_id", member.ID))
	return s.GetMember(ctx, scope, member.ID)
}

// DeleteMember はメンバーを削除する。出席記録もCASCADEで削除される。
func (s *Service) DeleteMember(ctx context.Context, scope model.Installation, memberID string) error {
	member, err := s.findMember(ctx, scope, memberID)
	if err != nil {
		return err
	}
	if err := s.members.Delete(ctx, member.ID); err != nil {
		if errors.Is(err, model.ErrNoRowsAffected) {
			return model.NewMemberNotFoundError(memberID)
		}
		return model.NewPersistenceFailureError("delete member", err)
	}
	slog.Info("member deleted",
		slog.String("member_id", member.ID),
		slog.String("installation", string(member.Installation)),
	)
	return nil
}

// GetAttendance は出席記録を返す。
func (s *Service) GetAttendance(ctx context.Context, scope model.Installation, attendanceID string) (*model.AttendanceRecord, error) {
	return s.findAttendance(ctx, scope, attendanceID)
}

// UpdateAttendance は出席記録を部分更新し、更新後の記録を返す。
// 日付の変更先に同じメンバーの記録がある場合はATTENDANCE_EXISTSを返す。
func (s *Service) UpdateAttendance(ctx context.Context, scope model.Installation, attendanceID string, update model.AttendanceUpdate) (*model.AttendanceRecord, error) {
	record, err := s.findAttendance(ctx, scope, attendanceID)
	if err != nil {
		return nil, err
	}

	if err := s.attendance.Update(ctx, record.ID, update); err != nil {
		switch {
		case errors.Is(err, model.ErrNoRowsAffected):
			return nil, model.NewAttendanceNotFoundError(attendanceID)
		case errors.Is(err, model.ErrDuplicate) && update.Date != nil:
			return nil, model.NewAttendanceExistsError(update.Date.Format(model.DateLayout))
		default:
			return nil, model.NewPersistenceFailureError("update attendance", err)
		}
	}

	slog.Info("attendance updated",
		slog.String("attendance_id", record.ID),
		slog.String("member_id", record.MemberID),
	)
	return s.findAttendance(ctx, scope, record.ID)
}

// DeleteAttendance は出席記録を削除する。
// 初来会フラグは出席回数が減っても元に戻さない。
func (s *Service) DeleteAttendance(ctx context.Context, scope model.Installation, attendanceID string) error {
	record, err := s.findAttendance(ctx, scope, attendanceID)
	if err != nil {
		return err
	}
	if err := s.attendance.Delete(ctx, record.ID); err != nil {
		if errors.Is(err, model.ErrNoRowsAffected) {
			return model.NewAttendanceNotFoundError(attendanceID)
		}
		return model.NewPersistenceFailureError("delete attendance", err)
	}
	slog.Info("attendance deleted",
		slog.String("attendance_id", record.ID),
		slog.String("member_id", record.MemberID),
	)
	return nil
}

// findMember はスコープ内のメンバーを返す。
// スコープ外のメンバーは存在しないものとして扱う。
func (s *Service) findMember(ctx context.Context, scope model.Installation, memberID string) (*model.Member, error) {
	if _, err := uuid.Parse(memberID); err != nil {
		return nil, model.NewMemberNotFoundError(memberID)
	}
	member, err := s.members.FindByID(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to find member: %w", err)
	}
	if member == nil || !inScope(scope, member.Installation) {
		return nil, model.NewMemberNotFoundError(memberID)
	}
	return member, nil
}

func (s *Service) findAttendance(ctx context.Context, scope model.Installation, attendanceID string) (*model.AttendanceRecord, error) {
	if _, err := uuid.Parse(attendanceID); err != nil {
		return nil, model.NewAttendanceNotFoundError(attendanceID)
	}
	record, err := s.attendance.FindByID(ctx, attendanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to find attendance: %w", err)
	}
	if record == nil {
		return nil, model.NewAttendanceNotFoundError(attendanceID)
	}
	if !scope.IsGlobal() {
		member, err := s.members.FindByID(ctx, record.MemberID)
		if err != nil {
			return nil, fmt.Errorf("failed to find member: %w", err)
		}
		if member == nil || member.Installation != scope {
			return nil, model.NewAttendanceNotFoundError(attendanceID)
		}
	}
	return record, nil
}

func inScope(scope, home model.Installation) bool {
	return scope.IsGlobal() || scope == home
}

// normalizeUpdate は更新内容の空白除去、サニタイズ、大文字小文字の正規化を行う。
func (s *Service) normalizeUpdate(u model.MemberUpdate) model.MemberUpdate {
	clean := func(v *string) *string {
		if v == nil {
			return nil
		}
		out := strings.TrimSpace(*v)
		if s.sanitizer != nil {
			out = s.sanitizer.SanitizeText(out)
		}
		return &out
	}
	u.FirstName = clean(u.FirstName)
	u.LastName = clean(u.LastName)
	u.Gender = clean(u.Gender)
	u.Address = clean(u.Address)
	u.Occupation = clean(u.Occupation)
	u.Instagram = clean(u.Instagram)
	u.Twitter = clean(u.Twitter)
	u.Referral = clean(u.Referral)
	u.PrayerRequest = clean(u.PrayerRequest)
	if u.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*u.Email))
		u.Email = &email
	}
	if u.PhoneNumber != nil {
		phone := strings.TrimSpace(*u.PhoneNumber)
		u.PhoneNumber = &phone
	}
	if u.Tribe != nil {
		tribe := model.Tribe(strings.ToUpper(strings.TrimSpace(string(*u.Tribe))))
		u.Tribe = &tribe
	}
	return u
}
