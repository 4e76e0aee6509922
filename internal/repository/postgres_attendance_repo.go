package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/checkin/internal/model"
	"github.com/lib/pq"
)

const attendanceColumns = `id, member_id, date, sunday_service, midweek_service, global_gethsemane,
	is_guest, guest_installation, created_at`

func scanAttendance(row rowScanner) (model.AttendanceRecord, error) {
	var rec model.AttendanceRecord
	var guest sql.NullString
	err := row.Scan(
		&rec.ID, &rec.MemberID, &rec.Date, &rec.SundayService, &rec.MidweekService,
		&rec.GlobalGethsemane, &rec.IsGuest, &guest, &rec.CreatedAt,
	)
	if err != nil {
		return rec, err
	}
	if guest.Valid {
		rec.GuestInstallation = model.Installation(guest.String)
	}
	return rec, nil
}

// dateParam はDATE列に渡す日付文字列を返す。
// time.Timeをそのまま渡すとセッションのタイムゾーンで日付が変わり得るため、暦日で渡す。
func dateParam(t time.Time) string {
	return t.Format(model.DateLayout)
}

// PostgresAttendanceRepo はPostgreSQLを使用した出席記録リポジトリ。
type PostgresAttendanceRepo struct {
	db DBTX
}

// NewPostgresAttendanceRepo はPostgresAttendanceRepoを生成する。
func NewPostgresAttendanceRepo(db DBTX) *PostgresAttendanceRepo {
	return &PostgresAttendanceRepo{db: db}
}

func (r *PostgresAttendanceRepo) list(ctx context.Context, what, query string, args ...any) ([]model.AttendanceRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list attendance %s: %w", what, err)
	}
	defer rows.Close()

	var records []model.AttendanceRecord
	for rows.Next() {
		rec, err := scanAttendance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attendance: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attendance: %w", err)
	}
	return records, nil
}

// FindForMemberOnDate はメンバーの指定日の出席記録を返す。該当がなければ空スライス。
func (r *PostgresAttendanceRepo) FindForMemberOnDate(ctx context.Context, memberID string, date time.Time) ([]model.AttendanceRecord, error) {
	return r.list(ctx, "for date",
		`SELECT `+attendanceColumns+` FROM attendance WHERE member_id = $1 AND date = $2::date ORDER BY created_at`,
		memberID, dateParam(date),
	)
}

// Create は出席記録を作成する。
func (r *PostgresAttendanceRepo) Create(ctx context.Context, rec *model.AttendanceRecord) error {
	var guest sql.NullString
	if rec.IsGuest {
		guest = sql.NullString{String: string(rec.GuestInstallation), Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO attendance (`+attendanceColumns+`)
		 VALUES ($1, $2, $3::date, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.MemberID, dateParam(rec.Date), rec.SundayService, rec.MidweekService,
		rec.GlobalGethsemane, rec.IsGuest, guest, rec.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("failed to insert attendance: %w", model.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to insert attendance: %w", err)
	}
	return nil
}

// CountForMember はメンバーの出席記録の総数を返す。
func (r *PostgresAttendanceRepo) CountForMember(ctx context.Context, memberID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attendance WHERE member_id = $1`,
		memberID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count attendance: %w", err)
	}
	return count, nil
}

// ListForMember はメンバーの出席履歴を日付昇順で返す。
func (r *PostgresAttendanceRepo) ListForMember(ctx context.Context, memberID string) ([]model.AttendanceRecord, error) {
	return r.list(ctx, "for member",
		`SELECT `+attendanceColumns+` FROM attendance WHERE member_id = $1 ORDER BY date, created_at`,
		memberID,
	)
}

// ListForMembers は複数メンバーの出席履歴を1クエリで取得し、メンバーID別にまとめる。
func (r *PostgresAttendanceRepo) ListForMembers(ctx context.Context, memberIDs []string) (map[string][]model.AttendanceRecord, error) {
	byMember := make(map[string][]model.AttendanceRecord, len(memberIDs))
	if len(memberIDs) == 0 {
		return byMember, nil
	}

	records, err := r.list(ctx, "for members",
		`SELECT `+attendanceColumns+` FROM attendance WHERE member_id = ANY($1::uuid[]) ORDER BY date, created_at`,
		pq.Array(memberIDs),
	)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		byMember[rec.MemberID] = append(byMember[rec.MemberID], rec)
	}
	return byMember, nil
}

// FindByID は指定IDの出席記録を取得する。見つからない場合はnilを返す。
func (r *PostgresAttendanceRepo) FindByID(ctx context.Context, id string) (*model.AttendanceRecord, error) {
	rec, err := scanAttendance(r.db.QueryRowContext(ctx,
		`SELECT `+attendanceColumns+` FROM attendance WHERE id = $1`,
		id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find attendance by ID: %w", err)
	}
	return &rec, nil
}

// Update はnilでないフィールドのみを更新する。
func (r *PostgresAttendanceRepo) Update(ctx context.Context, id string, u model.AttendanceUpdate) error {
	b := &updateBuilder{}
	if u.Date != nil {
		b.set("date", dateParam(*u.Date))
	}
	if u.SundayService != nil {
		b.set("sunday_service", *u.SundayService)
	}
	if u.MidweekService != nil {
		b.set("midweek_service", *u.MidweekService)
	}
	if u.GlobalGethsemane != nil {
		b.set("global_gethsemane", *u.GlobalGethsemane)
	}
	if b.empty() {
		return nil
	}

	query, args := b.build("attendance", id)
	result, err := r.db.ExecContext(ctx, query, args...)
	if isUniqueViolation(err) {
		return fmt.Errorf("failed to update attendance: %w", model.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to update attendance: %w", err)
	}
	return checkRowsAffected(result, "attendance", id)
}

// Delete は指定IDの出席記録を削除する。
func (r *PostgresAttendanceRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM attendance WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete attendance: %w", err)
	}
	return checkRowsAffected(result, "attendance", id)
}

// compile-time interface check
var _ AttendanceRepository = (*PostgresAttendanceRepo)(nil)
