package model

import (
	"errors"
	"fmt"
)

// ストア層が返す番兵エラー。サービス層でAPIErrorに変換される。
var (
	// ErrDuplicate は一意制約違反（email、電話番号、メンバー+日付など）を表す。
	ErrDuplicate = errors.New("duplicate record")
	// ErrNoRowsAffected は更新・削除の対象行が存在しなかったことを表す。
	ErrNoRowsAffected = errors.New("no rows affected")
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
// Codeは呼び出し側が判別に使う安定した識別子。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, member, attendance, system
	Action   string // ユーザー向け対処方法
	Err      error  // 原因となったエラー（ログ用。レスポンスには含めない）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は原因エラーを返す。
func (e *APIError) Unwrap() error {
	return e.Err
}

// 定義済みエラーコード
const (
	ErrCodeMemberNotFound           = "MEMBER_NOT_FOUND"
	ErrCodeAttendanceNotFound       = "ATTENDANCE_NOT_FOUND"
	ErrCodeAdminNotFound            = "ADMIN_NOT_FOUND"
	ErrCodeMemberExists             = "MEMBER_EXISTS"
	ErrCodeAdminExists              = "ADMIN_EXISTS"
	ErrCodeAttendanceExists         = "ATTENDANCE_EXISTS"
	ErrCodeDuplicateCheckinConflict = "DUPLICATE_CHECKIN_CONFLICT"
	ErrCodePersistenceFailure       = "PERSISTENCE_FAILURE"
	ErrCodeInvalidInstallation      = "INVALID_INSTALLATION"
	ErrCodeValidationFailed         = "VALIDATION_FAILED"
	ErrCodeInvalidRequest           = "INVALID_REQUEST"
	ErrCodeInvalidCredentials       = "INVALID_CREDENTIALS"
	ErrCodeTokenInvalid             = "TOKEN_INVALID"
	ErrCodeUnauthorized             = "UNAUTHORIZED"
	ErrCodeRateLimitExceeded        = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal                 = "INTERNAL_ERROR"
)

// NewMemberNotFoundError はメンバー未検出エラーを生成する。
// identifierには検索に使った値（ID、氏名、チェックイントークンの種別など）を渡す。
func NewMemberNotFoundError(identifier string) *APIError {
	return &APIError{
		Code:     ErrCodeMemberNotFound,
		Message:  fmt.Sprintf("メンバーが見つかりません: %s", identifier),
		Category: "member",
		Action:   "氏名またはチェックインコードを確認してください。初来会の場合は新規登録してください。",
	}
}

// NewAttendanceNotFoundError は出席記録未検出エラーを生成する。
func NewAttendanceNotFoundError(attendanceID string) *APIError {
	return &APIError{
		Code:     ErrCodeAttendanceNotFound,
		Message:  fmt.Sprintf("指定された出席記録が見つかりません: %s", attendanceID),
		Category: "attendance",
		Action:   "出席記録IDを確認してください。",
	}
}

// NewAdminNotFoundError は管理者未検出エラーを生成する。
func NewAdminNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeAdminNotFound,
		Message:  "管理者アカウントが見つかりません。",
		Category: "auth",
		Action:   "メールアドレスを確認してください。",
	}
}

// NewMemberExistsError は同一メンバーが既に登録済みの場合のエラーを生成する。
func NewMemberExistsError() *APIError {
	return &APIError{
		Code:     ErrCodeMemberExists,
		Message:  "このメンバーは既に登録されています。",
		Category: "member",
		Action:   "新規登録ではなくチェックインを行ってください。",
	}
}

// NewAdminExistsError は同じメールアドレスまたは電話番号の管理者が存在する場合のエラーを生成する。
func NewAdminExistsError(field string) *APIError {
	return &APIError{
		Code:     ErrCodeAdminExists,
		Message:  fmt.Sprintf("この%sの管理者アカウントは既に存在します。", field),
		Category: "auth",
		Action:   "ログインするか、別の連絡先で登録してください。",
	}
}

// NewAttendanceExistsError は出席記録の日付変更先に同じメンバーの記録が既にある場合のエラーを生成する。
func NewAttendanceExistsError(date string) *APIError {
	return &APIError{
		Code:     ErrCodeAttendanceExists,
		Message:  fmt.Sprintf("%sの出席記録は既に存在します。", date),
		Category: "attendance",
		Action:   "既存の記録を編集してください。",
	}
}

// NewDuplicateCheckinConflictError は本日すでに別拠点でチェックイン済みの場合のエラーを生成する。
func NewDuplicateCheckinConflictError(recordedAt, requested Installation) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateCheckinConflict,
		Message:  fmt.Sprintf("本日は既に%sでチェックイン済みです（要求された拠点: %s）。", recordedAt, requested),
		Category: "attendance",
		Action:   "同日の別拠点でのチェックインはできません。記録の訂正は管理者に依頼してください。",
	}
}

// NewPersistenceFailureError はストアの作成・更新・削除が失敗した場合のエラーを生成する。
func NewPersistenceFailureError(operation string, err error) *APIError {
	return &APIError{
		Code:     ErrCodePersistenceFailure,
		Message:  fmt.Sprintf("データの保存に失敗しました: %s", operation),
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
		Err:      err,
	}
}

// NewInvalidInstallationError は拠点指定が無効な場合のエラーを生成する。
func NewInvalidInstallationError(value string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidInstallation,
		Message:  fmt.Sprintf("無効な拠点です: %s", value),
		Category: "validation",
		Action:   "AKURE、IFE、ISLAND、IKEJA、UK、MORO、YABA、IBADANのいずれかを指定してください。",
	}
}

// NewValidationError は入力値検証エラーを生成する。
func NewValidationError(detail string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("入力値が不正です: %s", detail),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewInvalidCredentialsError はメールアドレスまたはパスワードの誤りを表すエラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度ログインしてください。",
	}
}

// NewTokenInvalidError はトークンが期限切れまたは無効な場合のエラーを生成する。
func NewTokenInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenInvalid,
		Message:  "トークンが期限切れか無効です。",
		Category: "auth",
		Action:   "もう一度手続きをやり直してください。",
	}
}

// NewUnauthorizedError は認証が必要な場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewRateLimitExceededError はレート制限超過エラーを生成する。
func NewRateLimitExceededError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はErrに保持し、レスポンスには含めない。
func NewInternalError(err error) *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
		Err:      err,
	}
}

// HasCode はerrがAPIErrorであり、指定のコードを持つ場合にtrueを返す。
func HasCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}
