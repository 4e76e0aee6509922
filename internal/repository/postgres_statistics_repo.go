package repository

import (
	"context"
	"fmt"

	"github.com/hitoshi/checkin/internal/model"
)

// statisticsQuery は5つの集計値を1往復で取得する。
// $1がGLOBALの場合は全条件が真になり、フィルタが一切かからない。
// 拠点指定の場合、出席記録は所属メンバーのIDで絞り込むため、他拠点でのゲスト出席も所属拠点に計上される。
const statisticsQuery = `
SELECT
	(SELECT COUNT(*) FROM members m
	  WHERE ($1::text = 'GLOBAL' OR m.installation = $1::text)),
	(SELECT COUNT(*) FROM members m
	  WHERE m.is_first_time AND ($1::text = 'GLOBAL' OR m.installation = $1::text)),
	COUNT(*) FILTER (WHERE a.sunday_service),
	COUNT(*) FILTER (WHERE a.global_gethsemane),
	COUNT(*) FILTER (WHERE a.midweek_service)
FROM attendance a
WHERE $1::text = 'GLOBAL'
   OR a.member_id IN (SELECT id FROM members WHERE installation = $1::text)`

// PostgresStatisticsRepo はダッシュボード集計をPostgreSQLで計算する。
type PostgresStatisticsRepo struct {
	db DBTX
}

// NewPostgresStatisticsRepo はPostgresStatisticsRepoを生成する。
func NewPostgresStatisticsRepo(db DBTX) *PostgresStatisticsRepo {
	return &PostgresStatisticsRepo{db: db}
}

// Statistics はスコープ内の集計値を返す。
func (r *PostgresStatisticsRepo) Statistics(ctx context.Context, scope model.Installation) (*model.Statistics, error) {
	stats := &model.Statistics{}
	err := r.db.QueryRowContext(ctx, statisticsQuery, string(scope)).Scan(
		&stats.TotalMembers,
		&stats.TotalFirstTimers,
		&stats.TotalOnSunday,
		&stats.TotalGlobalGethsemane,
		&stats.TotalMidweek,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compute statistics for %s: %w", scope, err)
	}
	return stats, nil
}

// compile-time interface check
var _ StatisticsRepository = (*PostgresStatisticsRepo)(nil)
