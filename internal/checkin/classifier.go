package checkin

import (
	"time"

	"github.com/hitoshi/checkin/internal/model"
)

// Clock は現在時刻を提供する。テストで日付を固定するために注入する。
type Clock interface {
	Now() time.Time
}

// systemClock は指定タイムゾーンの壁時計。
type systemClock struct {
	loc *time.Location
}

// NewClock は指定タイムゾーンで現在時刻を返すClockを生成する。locがnilの場合はUTC。
func NewClock(loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	return systemClock{loc: loc}
}

func (c systemClock) Now() time.Time {
	return time.Now().In(c.loc)
}

// Today はClockのタイムゾーンにおける暦日を、UTCの0時として返す。
// 出席記録の日付はこの値で比較・保存する。
func Today(c Clock) time.Time {
	y, m, d := c.Now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ServiceFlagsFor は日付の曜日から該当する礼拝種別を決める。
// 日曜以外はすべて週中礼拝扱いとなり、ゲツセマネは週中フラグとは独立に火曜に固定される。
func ServiceFlagsFor(day time.Time) model.ServiceFlags {
	sunday := day.Weekday() == time.Sunday
	return model.ServiceFlags{
		Sunday:      sunday,
		Midweek:     !sunday,
		GlobalEvent: day.Weekday() == time.Tuesday,
	}
}
