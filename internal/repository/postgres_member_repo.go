package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/checkin/internal/model"
)

const memberColumns = `id, first_name, last_name, email, phone_number, installation, gender, tribe,
	checkin_token, is_first_time, address, occupation, instagram, twitter, referral, prayer_request,
	created_at, updated_at`

// rowScanner は*sql.Rowと*sql.Rowsの共通メソッド。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanMember(row rowScanner) (*model.Member, error) {
	m := &model.Member{}
	var installation, tribe string
	err := row.Scan(
		&m.ID, &m.FirstName, &m.LastName, &m.Email, &m.PhoneNumber, &installation, &m.Gender, &tribe,
		&m.CheckinToken, &m.IsFirstTime, &m.Address, &m.Occupation, &m.Instagram, &m.Twitter,
		&m.Referral, &m.PrayerRequest, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.Installation = model.Installation(installation)
	m.Tribe = model.Tribe(tribe)
	return m, nil
}

// updateBuilder はnilでないフィールドだけのSET句を組み立てる。
type updateBuilder struct {
	sets []string
	args []any
}

func (b *updateBuilder) set(column string, value any) {
	b.args = append(b.args, value)
	b.sets = append(b.sets, fmt.Sprintf("%s = $%d", column, len(b.args)))
}

func (b *updateBuilder) empty() bool {
	return len(b.sets) == 0
}

func (b *updateBuilder) build(table, id string) (string, []any) {
	args := append(b.args, id)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", table, strings.Join(b.sets, ", "), len(args))
	return query, args
}

// PostgresMemberRepo はPostgreSQLを使用したメンバーリポジトリ。
type PostgresMemberRepo struct {
	db DBTX
}

// NewPostgresMemberRepo はPostgresMemberRepoを生成する。
// dbには*sql.DBまたは*sql.Txを渡せる。
func NewPostgresMemberRepo(db DBTX) *PostgresMemberRepo {
	return &PostgresMemberRepo{db: db}
}

func (r *PostgresMemberRepo) findOne(ctx context.Context, what, where string, args ...any) (*model.Member, error) {
	m, err := scanMember(r.db.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE `+where,
		args...,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find member by %s: %w", what, err)
	}
	return m, nil
}

// FindByID は指定IDのメンバーを取得する。見つからない場合はnilを返す。
func (r *PostgresMemberRepo) FindByID(ctx context.Context, id string) (*model.Member, error) {
	return r.findOne(ctx, "ID", `id = $1`, id)
}

// FindByNameExact は姓名の完全一致でメンバーを検索する。
func (r *PostgresMemberRepo) FindByNameExact(ctx context.Context, firstName, lastName string) (*model.Member, error) {
	return r.findOne(ctx, "name",
		`lower(first_name) = lower($1) AND lower(last_name) = lower($2) ORDER BY created_at, id LIMIT 1`,
		strings.TrimSpace(firstName), strings.TrimSpace(lastName),
	)
}

// FindByCheckinToken はチェックイントークンでメンバーを検索する。空トークンは常に未検出。
func (r *PostgresMemberRepo) FindByCheckinToken(ctx context.Context, token string) (*model.Member, error) {
	if token == "" {
		return nil, nil
	}
	return r.findOne(ctx, "checkin token", `checkin_token = $1`, token)
}

// FindByEmail はメールアドレスでメンバーを検索する。
func (r *PostgresMemberRepo) FindByEmail(ctx context.Context, email string) (*model.Member, error) {
	return r.findOne(ctx, "email", `lower(email) = lower($1)`, email)
}

// Create はメンバーを作成する。
func (r *PostgresMemberRepo) Create(ctx context.Context, m *model.Member) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO members (`+memberColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		m.ID, m.FirstName, m.LastName, m.Email, m.PhoneNumber, string(m.Installation), m.Gender, string(m.Tribe),
		m.CheckinToken, m.IsFirstTime, m.Address, m.Occupation, m.Instagram, m.Twitter,
		m.Referral, m.PrayerRequest, m.CreatedAt, m.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("failed to insert member: %w", model.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to insert member: %w", err)
	}
	return nil
}

// Update はnilでないフィールドのみを更新する。
func (r *PostgresMemberRepo) Update(ctx context.Context, id string, u model.MemberUpdate) error {
	b := &updateBuilder{}
	if u.FirstName != nil {
		b.set("first_name", *u.FirstName)
	}
	if u.LastName != nil {
		b.set("last_name", *u.LastName)
	}
	if u.Email != nil {
		b.set("email", *u.Email)
	}
	if u.PhoneNumber != nil {
		b.set("phone_number", *u.PhoneNumber)
	}
	if u.Gender != nil {
		b.set("gender", *u.Gender)
	}
	if u.Tribe != nil {
		b.set("tribe", string(*u.Tribe))
	}
	if u.IsFirstTime != nil {
		b.set("is_first_time", *u.IsFirstTime)
	}
	if u.Address != nil {
		b.set("address", *u.Address)
	}
	if u.Occupation != nil {
		b.set("occupation", *u.Occupation)
	}
	if u.Instagram != nil {
		b.set("instagram", *u.Instagram)
	}
	if u.Twitter != nil {
		b.set("twitter", *u.Twitter)
	}
	if u.Referral != nil {
		b.set("referral", *u.Referral)
	}
	if u.PrayerRequest != nil {
		b.set("prayer_request", *u.PrayerRequest)
	}
	if b.empty() {
		return nil
	}
	b.set("updated_at", time.Now().UTC())

	query, args := b.build("members", id)
	result, err := r.db.ExecContext(ctx, query, args...)
	if isUniqueViolation(err) {
		return fmt.Errorf("failed to update member: %w", model.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to update member: %w", err)
	}
	return checkRowsAffected(result, "member", id)
}

// List は拠点に所属するメンバーを登録日時の新しい順に返す。
func (r *PostgresMemberRepo) List(ctx context.Context, scope model.Installation, limit, offset int) ([]*model.Member, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+memberColumns+` FROM members
		 WHERE ($1::text = 'GLOBAL' OR installation = $1::text)
		 ORDER BY created_at DESC, id
		 LIMIT $2 OFFSET $3`,
		string(scope), limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*model.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate members: %w", err)
	}
	return members, nil
}

// Count は拠点に所属するメンバー数を返す。
func (r *PostgresMemberRepo) Count(ctx context.Context, scope model.Installation) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM members WHERE ($1::text = 'GLOBAL' OR installation = $1::text)`,
		string(scope),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count members: %w", err)
	}
	return count, nil
}

// Delete は指定IDのメンバーを削除する。
func (r *PostgresMemberRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM members WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete member: %w", err)
	}
	return checkRowsAffected(result, "member", id)
}

// compile-time interface check
var _ MemberRepository = (*PostgresMemberRepo)(nil)
