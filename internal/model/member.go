// Package model はドメインモデルを定義する。
package model

import "time"

// Member は登録済みの教会メンバーを表す。
type Member struct {
	ID            string
	FirstName     string
	LastName      string
	Email         string
	PhoneNumber   string
	Installation  Installation // 所属拠点（ホーム）
	Gender        string
	Tribe         Tribe
	CheckinToken  string
	IsFirstTime   bool
	Address       string
	Occupation    string
	Instagram     string
	Twitter       string
	Referral      string
	PrayerRequest string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewMember は初来会メンバー登録の入力。
// Installationはリクエストヘッダーから設定される。
type NewMember struct {
	FirstName     string       `json:"first_name" validate:"required,max=100"`
	LastName      string       `json:"last_name" validate:"required,max=100"`
	Email         string       `json:"email" validate:"required,email"`
	PhoneNumber   string       `json:"phone_number" validate:"required,min=11,max=15"`
	Gender        string       `json:"gender" validate:"omitempty,max=20"`
	Tribe         Tribe        `json:"tribe"`
	Address       string       `json:"address" validate:"omitempty,max=500"`
	Occupation    string       `json:"occupation" validate:"omitempty,max=200"`
	Instagram     string       `json:"instagram" validate:"omitempty,max=200"`
	Twitter       string       `json:"twitter" validate:"omitempty,max=200"`
	Referral      string       `json:"referral" validate:"omitempty,max=200"`
	PrayerRequest string       `json:"prayer_request" validate:"omitempty,max=2000"`
	Installation  Installation `json:"-" validate:"location"`
}

// MemberUpdate はメンバーの部分更新内容。nilのフィールドは変更しない。
type MemberUpdate struct {
	FirstName     *string `json:"first_name" validate:"omitempty,max=100"`
	LastName      *string `json:"last_name" validate:"omitempty,max=100"`
	Email         *string `json:"email" validate:"omitempty,email"`
	PhoneNumber   *string `json:"phone_number" validate:"omitempty,min=11,max=15"`
	Gender        *string `json:"gender" validate:"omitempty,max=20"`
	Tribe         *Tribe  `json:"tribe"`
	IsFirstTime   *bool   `json:"is_first_time"`
	Address       *string `json:"address" validate:"omitempty,max=500"`
	Occupation    *string `json:"occupation" validate:"omitempty,max=200"`
	Instagram     *string `json:"instagram" validate:"omitempty,max=200"`
	Twitter       *string `json:"twitter" validate:"omitempty,max=200"`
	Referral      *string `json:"referral" validate:"omitempty,max=200"`
	PrayerRequest *string `json:"prayer_request" validate:"omitempty,max=2000"`
}

// IsEmpty は更新対象のフィールドが1つもない場合にtrueを返す。
func (u MemberUpdate) IsEmpty() bool {
	return u.FirstName == nil && u.LastName == nil && u.Email == nil &&
		u.PhoneNumber == nil && u.Gender == nil && u.Tribe == nil &&
		u.IsFirstTime == nil && u.Address == nil && u.Occupation == nil &&
		u.Instagram == nil && u.Twitter == nil && u.Referral == nil &&
		u.PrayerRequest == nil
}

// MemberProfile はメンバーと出席履歴（日付昇順）を結合したもの。
type MemberProfile struct {
	Member
	Attendance []AttendanceRecord
}

// AppendAttendance は出席記録を履歴の末尾に追加する。
// 同じIDの記録が既に履歴にあれば何もしない（追記のみで置換はしない）。
func (p *MemberProfile) AppendAttendance(record AttendanceRecord) {
	for _, existing := range p.Attendance {
		if existing.ID == record.ID {
			return
		}
	}
	p.Attendance = append(p.Attendance, record)
}

// MemberPage はメンバー一覧の1ページ分の結果。
type MemberPage struct {
	Members []MemberProfile
	Total   int
}
