package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/checkin/internal/model"
)

const adminColumns = `id, first_name, last_name, email, phone_number, password_hash, installation, admin_type,
	created_at, updated_at`

// PostgresAdminRepo はPostgreSQLを使用した管理者リポジトリ。
type PostgresAdminRepo struct {
	db DBTX
}

// NewPostgresAdminRepo はPostgresAdminRepoを生成する。
func NewPostgresAdminRepo(db DBTX) *PostgresAdminRepo {
	return &PostgresAdminRepo{db: db}
}

func (r *PostgresAdminRepo) findOne(ctx context.Context, what, where string, arg any) (*model.Admin, error) {
	a := &model.Admin{}
	var installation, adminType string
	err := r.db.QueryRowContext(ctx,
		`SELECT `+adminColumns+` FROM admins WHERE `+where,
		arg,
	).Scan(
		&a.ID, &a.FirstName, &a.LastName, &a.Email, &a.PhoneNumber, &a.PasswordHash,
		&installation, &adminType, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find admin by %s: %w", what, err)
	}
	a.Installation = model.Installation(installation)
	a.AdminType = model.AdminType(adminType)
	return a, nil
}

// FindByID は指定IDの管理者を取得する。見つからない場合はnilを返す。
func (r *PostgresAdminRepo) FindByID(ctx context.Context, id string) (*model.Admin, error) {
	return r.findOne(ctx, "ID", `id = $1`, id)
}

// FindByEmail はメールアドレスで管理者を検索する。
func (r *PostgresAdminRepo) FindByEmail(ctx context.Context, email string) (*model.Admin, error) {
	return r.findOne(ctx, "email", `lower(email) = lower($1)`, email)
}

// FindByPhoneNumber は電話番号で管理者を検索する。
func (r *PostgresAdminRepo) FindByPhoneNumber(ctx context.Context, phone string) (*model.Admin, error) {
	return r.findOne(ctx, "phone number", `phone_number = $1`, phone)
}

// Create は管理者を作成する。
func (r *PostgresAdminRepo) Create(ctx context.Context, a *model.Admin) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO admins (`+adminColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.FirstName, a.LastName, a.Email, a.PhoneNumber, a.PasswordHash,
		string(a.Installation), string(a.AdminType), a.CreatedAt, a.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("failed to insert admin: %w", model.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to insert admin: %w", err)
	}
	return nil
}

// Update はnilでないフィールドのみを更新する。
func (r *PostgresAdminRepo) Update(ctx context.Context, id string, u model.AdminUpdate) error {
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
	if u.PasswordHash != nil {
		b.set("password_hash", *u.PasswordHash)
	}
	if b.empty() {
		return nil
	}
	b.set("updated_at", time.Now().UTC())

	query, args := b.build("admins", id)
	result, err := r.db.ExecContext(ctx, query, args...)
	if isUniqueViolation(err) {
		return fmt.Errorf("failed to update admin: %w", model.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to update admin: %w", err)
	}
	return checkRowsAffected(result, "admin", id)
}

// compile-time interface check
var _ AdminRepository = (*PostgresAdminRepo)(nil)
