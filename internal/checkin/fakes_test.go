package checkin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/checkin/internal/model"
	"github.com/hitoshi/checkin/internal/repository"
)

// fixedClock は常に同じ時刻を返すClock。
type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

// 2024-06-02は日曜、2024-06-04は火曜、2024-06-05は水曜。
var (
	sundayClock    = fixedClock{now: time.Date(2024, 6, 2, 10, 0, 0, 0, time.UTC)}
	tuesdayClock   = fixedClock{now: time.Date(2024, 6, 4, 18, 0, 0, 0, time.UTC)}
	wednesdayClock = fixedClock{now: time.Date(2024, 6, 5, 18, 0, 0, 0, time.UTC)}
)

// memoryStore はトランザクションのロールバックを模倣するインメモリストア。
type memoryStore struct {
	mu         sync.Mutex
	members    map[string]model.Member
	attendance []model.AttendanceRecord
	// beforeCreate が設定されている場合、出席記録の作成直前に呼ばれる。
	// エラーを返すとCreateはそのエラーで失敗する。
	beforeCreate func(s *memoryStore, rec *model.AttendanceRecord) error
	// concurrent は別トランザクションでコミットされた記録。現在のトランザクション終了時に反映される。
	concurrent []model.AttendanceRecord
	// failUpdate が設定されている場合、メンバー更新はこのエラーで失敗する。
	failUpdate error
	txCount    int
}

func newMemoryStore(members ...model.Member) *memoryStore {
	s := &memoryStore{members: make(map[string]model.Member)}
	for _, m := range members {
		s.members[m.ID] = m
	}
	return s
}

func (s *memoryStore) addAttendance(recs ...model.AttendanceRecord) {
	s.attendance = append(s.attendance, recs...)
}

func (s *memoryStore) attendanceFor(memberID string) []model.AttendanceRecord {
	var out []model.AttendanceRecord
	for _, r := range s.attendance {
		if r.MemberID == memberID {
			out = append(out, r)
		}
	}
	return out
}

// WithinTx はfnの失敗時に状態をトランザクション開始前へ戻す。
func (s *memoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, stores repository.Stores) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txCount++

	savedMembers := make(map[string]model.Member, len(s.members))
	for k, v := range s.members {
		savedMembers[k] = v
	}
	savedAttendance := append([]model.AttendanceRecord(nil), s.attendance...)

	err := fn(ctx, repository.Stores{Members: memberStore{s}, Attendance: attendanceStore{s}})
	if err != nil {
		s.members = savedMembers
		s.attendance = savedAttendance
	}
	s.attendance = append(s.attendance, s.concurrent...)
	s.concurrent = nil
	return err
}

type memberStore struct{ s *memoryStore }

func (m memberStore) find(match func(model.Member) bool) *model.Member {
	var found []model.Member
	for _, v := range m.s.members {
		if match(v) {
			found = append(found, v)
		}
	}
	if len(found) == 0 {
		return nil
	}
	sort.Slice(found, func(i, j int) bool { return found[i].CreatedAt.Before(found[j].CreatedAt) })
	out := found[0]
	return &out
}

func (m memberStore) FindByID(_ context.Context, id string) (*model.Member, error) {
	return m.find(func(v model.Member) bool { return v.ID == id }), nil
}

func (m memberStore) FindByNameExact(_ context.Context, first, last string) (*model.Member, error) {
	return m.find(func(v model.Member) bool {
		return strings.EqualFold(v.FirstName, strings.TrimSpace(first)) && strings.EqualFold(v.LastName, strings.TrimSpace(last))
	}), nil
}

func (m memberStore) FindByCheckinToken(_ context.Context, token string) (*model.Member, error) {
	if token == "" {
		return nil, nil
	}
	return m.find(func(v model.Member) bool { return v.CheckinToken == token }), nil
}

func (m memberStore) FindByEmail(_ context.Context, email string) (*model.Member, error) {
	return m.find(func(v model.Member) bool { return strings.EqualFold(v.Email, email) }), nil
}

func (m memberStore) Create(_ context.Context, member *model.Member) error {
	for _, v := range m.s.members {
		if strings.EqualFold(v.Email, member.Email) {
			return fmt.Errorf("insert member: %w", model.ErrDuplicate)
		}
	}
	m.s.members[member.ID] = *member
	return nil
}

func (m memberStore) Update(_ context.Context, id string, u model.MemberUpdate) error {
	if m.s.failUpdate != nil {
		return m.s.failUpdate
	}
	v, ok := m.s.members[id]
	if !ok {
		return model.ErrNoRowsAffected
	}
	if u.IsFirstTime != nil {
		v.IsFirstTime = *u.IsFirstTime
	}
	if u.FirstName != nil {
		v.FirstName = *u.FirstName
	}
	m.s.members[id] = v
	return nil
}

func (m memberStore) List(context.Context, model.Installation, int, int) ([]*model.Member, error) {
	return nil, errors.New("not used")
}

func (m memberStore) Count(context.Context, model.Installation) (int, error) {
	return 0, errors.New("not used")
}

func (m memberStore) Delete(_ context.Context, id string) error {
	delete(m.s.members, id)
	return nil
}

type attendanceStore struct{ s *memoryStore }

func (a attendanceStore) FindForMemberOnDate(_ context.Context, memberID string, date time.Time) ([]model.AttendanceRecord, error) {
	var out []model.AttendanceRecord
	for _, r := range a.s.attendance {
		if r.MemberID == memberID && r.Date.Format(model.DateLayout) == date.Format(model.DateLayout) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (a attendanceStore) Create(_ context.Context, rec *model.AttendanceRecord) error {
	if a.s.beforeCreate != nil {
		if err := a.s.beforeCreate(a.s, rec); err != nil {
			return err
		}
	}
	for _, r := range a.s.attendance {
		if r.MemberID == rec.MemberID && r.Date.Format(model.DateLayout) == rec.Date.Format(model.DateLayout) {
			return fmt.Errorf("insert attendance: %w", model.ErrDuplicate)
		}
	}
	a.s.attendance = append(a.s.attendance, *rec)
	return nil
}

func (a attendanceStore) CountForMember(_ context.Context, memberID string) (int, error) {
	return len(a.s.attendanceFor(memberID)), nil
}

func (a attendanceStore) ListForMember(_ context.Context, memberID string) ([]model.AttendanceRecord, error) {
	out := a.s.attendanceFor(memberID)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (a attendanceStore) ListForMembers(ctx context.Context, ids []string) (map[string][]model.AttendanceRecord, error) {
	out := make(map[string][]model.AttendanceRecord)
	for _, id := range ids {
		out[id], _ = a.ListForMember(ctx, id)
	}
	return out, nil
}

func (a attendanceStore) FindByID(_ context.Context, id string) (*model.AttendanceRecord, error) {
	for _, r := range a.s.attendance {
		if r.ID == id {
			rec := r
			return &rec, nil
		}
	}
	return nil, nil
}

func (a attendanceStore) Update(context.Context, string, model.AttendanceUpdate) error {
	return errors.New("not used")
}

func (a attendanceStore) Delete(context.Context, string) error {
	return errors.New("not used")
}

// mockStatisticsRepo は関数フィールドで振る舞いを差し替えるStatisticsRepository。
type mockStatisticsRepo struct {
	statisticsFn func(ctx context.Context, scope model.Installation) (*model.Statistics, error)
}

func (m *mockStatisticsRepo) Statistics(ctx context.Context, scope model.Installation) (*model.Statistics, error) {
	return m.statisticsFn(ctx, scope)
}

type stubSigner struct {
	err error
}

func (s stubSigner) SignCheckinToken(memberID string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "signed-" + memberID, nil
}

type tagStripper struct{}

func (tagStripper) SanitizeText(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "<b>", ""), "</b>", "")
}

// recordingRecorder は記録されたメトリクスを保持する。
type recordingRecorder struct {
	results    []string
	guests     int
	cleared    int
	registered int
}

func (r *recordingRecorder) RecordCheckin(result string, guest bool, _ time.Duration) {
	r.results = append(r.results, result)
	if guest {
		r.guests++
	}
}
func (r *recordingRecorder) RecordFirstTimerCleared() { r.cleared++ }
func (r *recordingRecorder) RecordMemberRegistered()  { r.registered++ }

const (
	memberAdaID  = "3f1f4c6e-8a7d-4f3e-9a51-0c7e3c2a0001"
	memberBolaID = "3f1f4c6e-8a7d-4f3e-9a51-0c7e3c2a0002"
)

func akureMember(firstTime bool) model.Member {
	return model.Member{
		ID:           memberAdaID,
		FirstName:    "Ada",
		LastName:     "Obi",
		Email:        "ada@example.com",
		Installation: model.InstallationAkure,
		CheckinToken: "token-ada",
		IsFirstTime:  firstTime,
		CreatedAt:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// pastAttendance はn件の過去の出席記録を生成する（2024年5月の日付）。
func pastAttendance(memberID string, n int) []model.AttendanceRecord {
	recs := make([]model.AttendanceRecord, n)
	for i := range recs {
		recs[i] = model.AttendanceRecord{
			ID:       fmt.Sprintf("past-%d", i),
			MemberID: memberID,
			Date:     time.Date(2024, 5, 1+i, 0, 0, 0, 0, time.UTC),
		}
	}
	return recs
}

func newTestService(store *memoryStore, clock Clock, rec Recorder) *Service {
	return NewService(
		Repositories{Tx: store, Statistics: &mockStatisticsRepo{}},
		stubSigner{},
		tagStripper{},
		rec,
		ServiceConfig{Clock: clock},
	)
}
