// Package checkin はメンバーのチェックイン判定と出席集計のドメインロジックを提供する。
package checkin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/checkin/internal/model"
	"github.com/hitoshi/checkin/internal/repository"
)

// DefaultFirstTimerThreshold は初来会フラグを解除する出席回数の既定値。
const DefaultFirstTimerThreshold = 4

// チェックイン結果の種別。メトリクスのラベルにも使う。
const (
	ResultCreated  = "created"
	ResultExisting = "existing"
	ResultConflict = "conflict"
)

// errConcurrentCheckin は同日の出席記録が並行して作成されたことを表す。
// トランザクションをロールバックさせるために内部でのみ使う。
var errConcurrentCheckin = errors.New("attendance created concurrently")

// TokenSigner はメンバーIDからチェックイントークンを発行する。
type TokenSigner interface {
	SignCheckinToken(memberID string) (string, error)
}

// TextSanitizer は自由記述欄からマークアップを除去する。
type TextSanitizer interface {
	SanitizeText(s string) string
}

// Recorder はチェックインの結果を記録する。
type Recorder interface {
	RecordCheckin(result string, guest bool, duration time.Duration)
	RecordFirstTimerCleared()
	RecordMemberRegistered()
}

type noopRecorder struct{}

func (noopRecorder) RecordCheckin(string, bool, time.Duration) {}
func (noopRecorder) RecordFirstTimerCleared()                  {}
func (noopRecorder) RecordMemberRegistered()                   {}

// Repositories はServiceが利用するストアの組。
type Repositories struct {
	Tx         repository.TxRunner
	Statistics repository.StatisticsRepository
}

// ServiceConfig はチェックインサービスの設定。
type ServiceConfig struct {
	Clock               Clock
	FirstTimerThreshold int // 0以下の場合はDefaultFirstTimerThreshold
}

// Service はチェックインと初来会登録、ダッシュボード集計を提供する。
type Service struct {
	repos     Repositories
	tokens    TokenSigner
	sanitizer TextSanitizer
	recorder  Recorder
	clock     Clock
	threshold int
}

// NewService はServiceを生成する。recorderとsanitizerはnilでもよい。
func NewService(
	repos Repositories,
	tokens TokenSigner,
	sanitizer TextSanitizer,
	recorder Recorder,
	config ServiceConfig,
) *Service {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	clock := config.Clock
	if clock == nil {
		clock = NewClock(time.UTC)
	}
	threshold := config.FirstTimerThreshold
	if threshold <= 0 {
		threshold = DefaultFirstTimerThreshold
	}
	return &Service{
		repos:     repos,
		tokens:    tokens,
		sanitizer: sanitizer,
		recorder:  recorder,
		clock:     clock,
		threshold: threshold,
	}
}

// memberLookup はトランザクション内でチェックイン対象のメンバーを特定する。
type memberLookup func(ctx context.Context, members repository.MemberRepository) (*model.Member, error)

// checkinOutcome は1回のチェックインの判定結果。
type checkinOutcome struct {
	profile      *model.MemberProfile
	result       string
	guest        bool
	clearedFirst bool
}

// CheckInByName は姓名でメンバーを特定してチェックインする。
func (s *Service) CheckInByName(ctx context.Context, firstName, lastName string, at model.Installation) (*model.MemberProfile, error) {
	label := strings.TrimSpace(firstName + " " + lastName)
	return s.checkIn(ctx, at, label, func(ctx context.Context, members repository.MemberRepository) (*model.Member, error) {
		return members.FindByNameExact(ctx, firstName, lastName)
	})
}

// CheckInByToken はチェックイントークンでメンバーを特定してチェックインする。
func (s *Service) CheckInByToken(ctx context.Context, token string, at model.Installation) (*model.MemberProfile, error) {
	return s.checkIn(ctx, at, "checkin token", func(ctx context.Context, members repository.MemberRepository) (*model.Member, error) {
		return members.FindByCheckinToken(ctx, token)
	})
}

// CheckInByID はメンバーIDでチェックインする。
func (s *Service) CheckInByID(ctx context.Context, memberID string, at model.Installation) (*model.MemberProfile, error) {
	return s.checkIn(ctx, at, memberID, func(ctx context.Context, members repository.MemberRepository) (*model.Member, error) {
		if _, err := uuid.Parse(memberID); err != nil {
			return nil, nil
		}
		return members.FindByID(ctx, memberID)
	})
}

// checkIn はメンバーの特定から出席記録の作成までを1トランザクションで行う。
// 並行チェックインで一意制約に負けた場合は、新しいトランザクションで勝者の記録を読み直して判定する。
func (s *Service) checkIn(ctx context.Context, at model.Installation, identifier string, lookup memberLookup) (*model.MemberProfile, error) {
	if !at.IsLocation() {
		return nil, model.NewInvalidInstallationError(string(at))
	}

	start := time.Now()
	var outcome *checkinOutcome
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		outcome, err = s.checkInOnce(ctx, at, identifier, lookup)
		if !errors.Is(err, errConcurrentCheckin) {
			break
		}
		slog.Warn("concurrent check-in detected, re-reading today's record",
			slog.String("identifier", identifier),
			slog.String("installation", string(at)),
		)
	}
	if errors.Is(err, errConcurrentCheckin) {
		return nil, model.NewPersistenceFailureError("create attendance", err)
	}
	if model.HasCode(err, model.ErrCodeDuplicateCheckinConflict) {
		s.recorder.RecordCheckin(ResultConflict, false, time.Since(start))
	}
	if err != nil {
		return nil, err
	}

	s.recorder.RecordCheckin(outcome.result, outcome.guest, time.Since(start))
	if outcome.clearedFirst {
		s.recorder.RecordFirstTimerCleared()
	}

	last := outcome.profile.Attendance[len(outcome.profile.Attendance)-1]
	slog.Info("member checked in",
		slog.String("member_id", outcome.profile.ID),
		slog.String("attendance_id", last.ID),
		slog.String("installation", string(at)),
		slog.String("result", outcome.result),
		slog.Bool("guest", outcome.guest),
	)
	return outcome.profile, nil
}

func (s *Service) checkInOnce(ctx context.Context, at model.Installation, identifier string, lookup memberLookup) (*checkinOutcome, error) {
	var outcome *checkinOutcome
	err := s.repos.Tx.WithinTx(ctx, func(ctx context.Context, stores repository.Stores) error {
		member, err := lookup(ctx, stores.Members)
		if err != nil {
			return fmt.Errorf("failed to find member: %w", err)
		}
		if member == nil {
			return model.NewMemberNotFoundError(identifier)
		}

		outcome, err = s.recordAttendance(ctx, stores, member, at)
		return err
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// recordAttendance は本日の出席記録を取得または作成し、初来会フラグを更新する。
// 本日の記録が既にある場合、その記録のチェックイン拠点（ゲストならguest_installation、それ以外は所属拠点）が
// 要求拠点と一致すれば既存記録を返し、異なればDUPLICATE_CHECKIN_CONFLICTを返す。
// storesは呼び出し元のトランザクションに束縛されていること。
func (s *Service) recordAttendance(ctx context.Context, stores repository.Stores, member *model.Member, at model.Installation) (*checkinOutcome, error) {
	today := Today(s.clock)

	existing, err := stores.Attendance.FindForMemberOnDate(ctx, member.ID, today)
	if err != nil {
		return nil, fmt.Errorf("failed to find today's attendance: %w", err)
	}

	// 新規作成前の出席回数。閾値判定は必ずこの値を基準にする。
	prior, err := stores.Attendance.CountForMember(ctx, member.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count attendance: %w", err)
	}

	outcome := &checkinOutcome{}
	var record model.AttendanceRecord
	total := prior

	if len(existing) > 0 {
		record = existing[0]
		recordedAt := record.CheckedInAt(member.Installation)
		if recordedAt != at {
			return nil, model.NewDuplicateCheckinConflictError(recordedAt, at)
		}
		outcome.result = ResultExisting
		outcome.guest = record.IsGuest
	} else {
		record = newAttendanceRecord(member, at, today)
		if err := stores.Attendance.Create(ctx, &record); err != nil {
			if errors.Is(err, model.ErrDuplicate) {
				return nil, errConcurrentCheckin
			}
			return nil, model.NewPersistenceFailureError("create attendance", err)
		}
		outcome.result = ResultCreated
		outcome.guest = record.IsGuest
		total = prior + 1
	}

	if member.IsFirstTime && total >= s.threshold {
		notFirstTime := false
		if err := stores.Members.Update(ctx, member.ID, model.MemberUpdate{IsFirstTime: &notFirstTime}); err != nil {
			return nil, model.NewPersistenceFailureError("update first-timer status", err)
		}
		member.IsFirstTime = false
		outcome.clearedFirst = true
	}

	history, err := stores.Attendance.ListForMember(ctx, member.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attendance history: %w", err)
	}
	outcome.profile = buildProfile(member, history, record)
	return outcome, nil
}

// newAttendanceRecord は本日の出席記録を組み立てる。
// 所属拠点と異なる拠点でのチェックインはゲストとして記録する。
func newAttendanceRecord(member *model.Member, at model.Installation, today time.Time) model.AttendanceRecord {
	flags := ServiceFlagsFor(today)
	record := model.AttendanceRecord{
		ID:               uuid.New().String(),
		MemberID:         member.ID,
		Date:             today,
		SundayService:    flags.Sunday,
		MidweekService:   flags.Midweek,
		GlobalGethsemane: flags.GlobalEvent,
		CreatedAt:        time.Now().UTC(),
	}
	if member.Installation != at {
		record.IsGuest = true
		record.GuestInstallation = at
	}
	return record
}

// buildProfile は履歴の末尾がrecordになるようにプロフィールを組み立てる。
func buildProfile(member *model.Member, history []model.AttendanceRecord, record model.AttendanceRecord) *model.MemberProfile {
	profile := &model.MemberProfile{Member: *member}
	for _, h := range history {
		if h.ID != record.ID {
			profile.AppendAttendance(h)
		}
	}
	profile.AppendAttendance(record)
	return profile
}

// CreateFirstTimeMember は初来会メンバーを登録し、同時に本日の出席を記録する。
// 同姓同名またはメールアドレスが登録済みの場合はMEMBER_EXISTSを返す。
func (s *Service) CreateFirstTimeMember(ctx context.Context, input model.NewMember) (*model.MemberProfile, error) {
	if !input.Installation.IsLocation() {
		return nil, model.NewInvalidInstallationError(string(input.Installation))
	}
	if !input.Installation.AllowsTribe(input.Tribe) {
		return nil, model.NewValidationError(fmt.Sprintf("tribe %s is not available at %s", input.Tribe, input.Installation))
	}

	member := s.newMember(input)
	token, err := s.tokens.SignCheckinToken(member.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to sign checkin token: %w", err)
	}
	member.CheckinToken = token

	start := time.Now()
	var outcome *checkinOutcome
	err = s.repos.Tx.WithinTx(ctx, func(ctx context.Context, stores repository.Stores) error {
		byName, err := stores.Members.FindByNameExact(ctx, member.FirstName, member.LastName)
		if err != nil {
			return fmt.Errorf("failed to find member by name: %w", err)
		}
		if byName != nil {
			return model.NewMemberExistsError()
		}
		byEmail, err := stores.Members.FindByEmail(ctx, member.Email)
		if err != nil {
			return fmt.Errorf("failed to find member by email: %w", err)
		}
		if byEmail != nil {
			return model.NewMemberExistsError()
		}

		if err := stores.Members.Create(ctx, member); err != nil {
			if errors.Is(err, model.ErrDuplicate) {
				return model.NewMemberExistsError()
			}
			return model.NewPersistenceFailureError("create member", err)
		}

		outcome, err = s.recordAttendance(ctx, stores, member, member.Installation)
		if errors.Is(err, errConcurrentCheckin) {
			return model.NewPersistenceFailureError("create attendance", err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	s.recorder.RecordMemberRegistered()
	s.recorder.RecordCheckin(outcome.result, outcome.guest, time.Since(start))

	slog.Info("first-time member registered",
		slog.String("member_id", member.ID),
		slog.String("installation", string(member.Installation)),
	)
	return outcome.profile, nil
}

func (s *Service) newMember(input model.NewMember) *model.Member {
	clean := func(v string) string {
		v = strings.TrimSpace(v)
		if s.sanitizer != nil {
			v = s.sanitizer.SanitizeText(v)
		}
		return v
	}
	now := time.Now().UTC()
	return &model.Member{
		ID:            uuid.New().String(),
		FirstName:     clean(input.FirstName),
		LastName:      clean(input.LastName),
		Email:         strings.ToLower(strings.TrimSpace(input.Email)),
		PhoneNumber:   strings.TrimSpace(input.PhoneNumber),
		Installation:  input.Installation,
		Gender:        clean(input.Gender),
		Tribe:         model.Tribe(strings.ToUpper(strings.TrimSpace(string(input.Tribe)))),
		IsFirstTime:   true,
		Address:       clean(input.Address),
		Occupation:    clean(input.Occupation),
		Instagram:     clean(input.Instagram),
		Twitter:       clean(input.Twitter),
		Referral:      clean(input.Referral),
		PrayerRequest: clean(input.PrayerRequest),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// GetDashboardStatistics はスコープ内の集計値を返す。GLOBALは全拠点を対象とする。
func (s *Service) GetDashboardStatistics(ctx context.Context, scope model.Installation) (*model.Statistics, error) {
	if !scope.IsLocation() && !scope.IsGlobal() {
		return nil, model.NewInvalidInstallationError(string(scope))
	}
	stats, err := s.repos.Statistics.Statistics(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to get dashboard statistics: %w", err)
	}
	return stats, nil
}
