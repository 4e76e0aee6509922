package model

import "time"

// DateLayout は出席日のAPI表現（YYYY-MM-DD）。
const DateLayout = "2006-01-02"

// ServiceFlags は出席日に該当する礼拝種別。
type ServiceFlags struct {
	Sunday      bool // 日曜礼拝
	Midweek     bool // 週中礼拝（日曜以外）
	GlobalEvent bool // 全拠点合同のゲツセマネ（火曜）
}

// AttendanceRecord はメンバー1人の1日分の出席記録。
// (MemberID, Date) の組はストア側の一意制約で1件に保たれる。
type AttendanceRecord struct {
	ID                string
	MemberID          string
	Date              time.Time
	SundayService     bool
	MidweekService    bool
	GlobalGethsemane  bool
	IsGuest           bool
	GuestInstallation Installation // IsGuestがtrueの場合のみ設定される
	CreatedAt         time.Time
}

// CheckedInAt は記録がどの拠点で付けられたかを返す。
// ゲスト記録であればゲスト拠点、そうでなければメンバーの所属拠点。
func (r AttendanceRecord) CheckedInAt(home Installation) Installation {
	if r.IsGuest && r.GuestInstallation != "" {
		return r.GuestInstallation
	}
	return home
}

// AttendanceUpdate は出席記録の部分更新内容。nilのフィールドは変更しない。
type AttendanceUpdate struct {
	Date             *time.Time
	SundayService    *bool
	MidweekService   *bool
	GlobalGethsemane *bool
}

// IsEmpty は更新対象のフィールドが1つもない場合にtrueを返す。
func (u AttendanceUpdate) IsEmpty() bool {
	return u.Date == nil && u.SundayService == nil && u.MidweekService == nil && u.GlobalGethsemane == nil
}

// Statistics は管理者ダッシュボード向けの集計値。
type Statistics struct {
	TotalMembers          int
	TotalFirstTimers      int
	TotalOnSunday         int
	TotalGlobalGethsemane int
	TotalMidweek          int
}
