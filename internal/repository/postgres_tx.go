package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/checkin/internal/model"
	"github.com/lib/pq"
)

// uniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
const uniqueViolation = "23505"

// isUniqueViolation はerrがPostgreSQLの一意制約違反であればtrueを返す。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// PostgresTxRunner は*sql.DBのトランザクションでリポジトリ操作をまとめて実行する。
type PostgresTxRunner struct {
	db *sql.DB
}

// NewPostgresTxRunner はPostgresTxRunnerを生成する。
func NewPostgresTxRunner(db *sql.DB) *PostgresTxRunner {
	return &PostgresTxRunner{db: db}
}

// WithinTx はトランザクションを開始し、トランザクションに束縛したリポジトリでfnを実行する。
// fnが成功した場合のみコミットする。
func (r *PostgresTxRunner) WithinTx(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stores := Stores{
		Members:    NewPostgresMemberRepo(tx),
		Attendance: NewPostgresAttendanceRepo(tx),
	}
	if err := fn(ctx, stores); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// checkRowsAffected は更新・削除で対象行がなかった場合にmodel.ErrNoRowsAffectedを返す。
func checkRowsAffected(result sql.Result, what, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s not found: %s: %w", what, id, model.ErrNoRowsAffected)
	}
	return nil
}

// compile-time interface check
var (
	_ TxRunner = (*PostgresTxRunner)(nil)
	_ DBTX     = (*sql.DB)(nil)
	_ DBTX     = (*sql.Tx)(nil)
)
