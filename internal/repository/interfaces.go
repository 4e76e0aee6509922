// Package repository はデータ永続化のインターフェースとPostgreSQL実装を定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/checkin/internal/model"
)

// DBTX は*sql.DBと*sql.Txが共通に持つクエリ実行メソッド。
// リポジトリはこれを受け取るため、トランザクション内外のどちらでも使える。
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// MemberRepository はメンバーデータの永続化インターフェース。
// Find系は見つからない場合にnil, nilを返す。
type MemberRepository interface {
	// FindByID は指定IDのメンバーを取得する。
	FindByID(ctx context.Context, id string) (*model.Member, error)

	// FindByNameExact は姓名の完全一致（大文字小文字は区別しない）でメンバーを検索する。
	// 同名が複数いる場合は最も古く登録されたメンバーを返す。
	FindByNameExact(ctx context.Context, firstName, lastName string) (*model.Member, error)

	// FindByCheckinToken はチェックイントークンでメンバーを検索する。
	FindByCheckinToken(ctx context.Context, token string) (*model.Member, error)

	// FindByEmail はメールアドレスでメンバーを検索する。
	FindByEmail(ctx context.Context, email string) (*model.Member, error)

	// Create はメンバーを作成する。一意制約違反の場合はmodel.ErrDuplicateをラップして返す。
	Create(ctx context.Context, member *model.Member) error

	// Update はnilでないフィールドのみを更新する部分更新を行う。
	// 対象が存在しない場合はmodel.ErrNoRowsAffectedをラップして返す。
	Update(ctx context.Context, id string, update model.MemberUpdate) error

	// List は拠点に所属するメンバーを登録日時の新しい順に返す。GLOBALは全拠点を対象とする。
	List(ctx context.Context, scope model.Installation, limit, offset int) ([]*model.Member, error)

	// Count は拠点に所属するメンバー数を返す。GLOBALは全拠点を対象とする。
	Count(ctx context.Context, scope model.Installation) (int, error)

	// Delete は指定IDのメンバーを削除する。出席記録はCASCADE削除される。
	Delete(ctx context.Context, id string) error
}

// AttendanceRepository は出席記録の永続化インターフェース。
// 一覧・件数は該当がなくても空またはゼロを返し、エラーにしない。
type AttendanceRepository interface {
	// FindForMemberOnDate はメンバーの指定日の出席記録を返す。
	FindForMemberOnDate(ctx context.Context, memberID string, date time.Time) ([]model.AttendanceRecord, error)

	// Create は出席記録を作成する。
	// (member_id, date) の一意制約違反の場合はmodel.ErrDuplicateをラップして返す。
	Create(ctx context.Context, record *model.AttendanceRecord) error

	// CountForMember はメンバーの出席記録の総数を返す。
	CountForMember(ctx context.Context, memberID string) (int, error)

	// ListForMember はメンバーの出席履歴を日付昇順で返す。
	ListForMember(ctx context.Context, memberID string) ([]model.AttendanceRecord, error)

	// ListForMembers は複数メンバーの出席履歴をメンバーID別にまとめて返す。
	ListForMembers(ctx context.Context, memberIDs []string) (map[string][]model.AttendanceRecord, error)

	// FindByID は指定IDの出席記録を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.AttendanceRecord, error)

	// Update はnilでないフィールドのみを更新する。
	// 対象が存在しない場合はmodel.ErrNoRowsAffectedをラップして返す。
	Update(ctx context.Context, id string, update model.AttendanceUpdate) error

	// Delete は指定IDの出席記録を削除する。
	Delete(ctx context.Context, id string) error
}

// StatisticsRepository はダッシュボード集計の読み取りインターフェース。
type StatisticsRepository interface {
	// Statistics はスコープ内の集計値を返す。GLOBALはフィルタを一切適用しない。
	Statistics(ctx context.Context, scope model.Installation) (*model.Statistics, error)
}

// AdminRepository は管理者アカウントの永続化インターフェース。
// Find系は見つからない場合にnil, nilを返す。
type AdminRepository interface {
	FindByID(ctx context.Context, id string) (*model.Admin, error)
	FindByEmail(ctx context.Context, email string) (*model.Admin, error)
	FindByPhoneNumber(ctx context.Context, phone string) (*model.Admin, error)

	// Create は管理者を作成する。一意制約違反の場合はmodel.ErrDuplicateをラップして返す。
	Create(ctx context.Context, admin *model.Admin) error

	// Update はnilでないフィールドのみを更新する。
	Update(ctx context.Context, id string, update model.AdminUpdate) error
}

// Stores はトランザクション内で利用できるリポジトリの組。
type Stores struct {
	Members    MemberRepository
	Attendance AttendanceRepository
}

// TxRunner はfnを1つのトランザクション内で実行する。
// fnがエラーを返した場合はロールバックし、そのエラーをそのまま返す。
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error
}
