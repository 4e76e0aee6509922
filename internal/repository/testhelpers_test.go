package repository

import (
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

// newMockDB はsqlmockの*sql.DBを生成し、テスト終了時に期待の充足を検証する。
func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

var fixedTime = time.Date(2024, 6, 2, 9, 30, 0, 0, time.UTC)

func memberRowColumns() []string {
	return []string{
		"id", "first_name", "last_name", "email", "phone_number", "installation", "gender", "tribe",
		"checkin_token", "is_first_time", "address", "occupation", "instagram", "twitter", "referral",
		"prayer_request", "created_at", "updated_at",
	}
}

func memberRow(rows *sqlmock.Rows, id, first, last, installation string, firstTime bool) *sqlmock.Rows {
	return rows.AddRow(
		id, first, last, first+"@example.com", "08012345678", installation, "female", "JUDAH",
		"token-"+id, firstTime, "", "", "", "", "", "", fixedTime, fixedTime,
	)
}

func attendanceRowColumns() []string {
	return []string{
		"id", "member_id", "date", "sunday_service", "midweek_service", "global_gethsemane",
		"is_guest", "guest_installation", "created_at",
	}
}
