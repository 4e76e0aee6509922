package model

import "time"

// AdminType は管理者の権限範囲。
type AdminType string

const (
	// AdminTypeInstallation は所属拠点のみを管理する。
	AdminTypeInstallation AdminType = "INSTALLATION"
	// AdminTypeGlobal は全拠点を管理する。
	AdminTypeGlobal AdminType = "GLOBAL"
)

// Admin はチェックインを運用する管理者アカウントを表す。
type Admin struct {
	ID           string
	FirstName    string
	LastName     string
	Email        string
	PhoneNumber  string
	PasswordHash string
	Installation Installation
	AdminType    AdminType
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Scope は統計・一覧のスコープとなる拠点を返す。
// GLOBAL管理者は所属に関わらず全拠点を対象とする。
func (a *Admin) Scope() Installation {
	if a.AdminType == AdminTypeGlobal {
		return InstallationGlobal
	}
	return a.Installation
}

// NewAdmin は管理者サインアップの入力。
type NewAdmin struct {
	FirstName    string       `json:"first_name" validate:"required,max=100"`
	LastName     string       `json:"last_name" validate:"required,max=100"`
	Email        string       `json:"email" validate:"required,email"`
	PhoneNumber  string       `json:"phone_number" validate:"required,min=9,max=15"`
	Password     string       `json:"password" validate:"required,password"`
	Installation Installation `json:"installation" validate:"required,installation"`
	AdminType    AdminType    `json:"admin_type" validate:"required,oneof=INSTALLATION GLOBAL"`
}

// AdminUpdate は管理者の部分更新内容。nilのフィールドは変更しない。
type AdminUpdate struct {
	FirstName    *string
	LastName     *string
	Email        *string
	PhoneNumber  *string
	PasswordHash *string
}

// TokenPair はログイン時に発行されるアクセストークンとリフレッシュトークン。
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// AdminProfileUpdate は管理者自身によるプロフィール更新の入力。nilのフィールドは変更しない。
type AdminProfileUpdate struct {
	FirstName   *string `json:"first_name" validate:"omitempty,max=100"`
	LastName    *string `json:"last_name" validate:"omitempty,max=100"`
	Email       *string `json:"email" validate:"omitempty,email"`
	PhoneNumber *string `json:"phone_number" validate:"omitempty,min=9,max=15"`
	Password    *string `json:"password" validate:"omitempty,password"`
}
