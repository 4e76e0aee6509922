// Package validation はリクエスト入力の検証を提供する。
// go-playground/validatorのタグに加え、拠点・パスワード・トライブの独自ルールを登録する。
package validation

import (
	"errors"
	"reflect"
	"regexp"
	"sort"
	"strings"

	validatorengine "github.com/go-playground/validator/v10"
	"github.com/hitoshi/checkin/internal/model"
)

// passwordPattern は管理者パスワードに使用できる文字。
var passwordPattern = regexp.MustCompile(`^[A-Za-z0-9!@#$&*_+%-=]+$`)

// パスワード長の制約。上限はbcryptの入力長。
const (
	passwordMinLength = 6
	passwordMaxLength = 72
)

// StructValidator はvalidatorエンジンをラップし、検証エラーをAPIErrorに変換する。
type StructValidator struct {
	engine *validatorengine.Validate
}

// New は独自ルールを登録したStructValidatorを生成する。
func New() *StructValidator {
	engine := validatorengine.New()

	// エラーメッセージにはJSONのフィールド名を使う
	engine.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	mustRegister(engine, "installation", validateInstallation)
	mustRegister(engine, "location", validateLocation)
	mustRegister(engine, "password", validatePassword)
	engine.RegisterStructValidation(validateNewMemberTribe, model.NewMember{})

	return &StructValidator{engine: engine}
}

func mustRegister(engine *validatorengine.Validate, tag string, fn validatorengine.Func) {
	if err := engine.RegisterValidation(tag, fn); err != nil {
		panic(err)
	}
}

// ValidateStruct は構造体を検証する。違反がある場合はVALIDATION_FAILEDのAPIErrorを返す。
// メッセージには違反したフィールドとルールを "field:rule" 形式で列挙する。
func (v *StructValidator) ValidateStruct(data any) error {
	err := v.engine.Struct(data)
	if err == nil {
		return nil
	}

	var verrs validatorengine.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	details := make([]string, 0, len(verrs))
	for _, e := range verrs {
		details = append(details, e.Field()+":"+e.Tag())
	}
	sort.Strings(details)
	return model.NewValidationError(strings.Join(details, ", "))
}

// validateInstallation は実在の拠点またはGLOBALであることを検証する。
func validateInstallation(fl validatorengine.FieldLevel) bool {
	i := model.Installation(fl.Field().String())
	return i.IsLocation() || i.IsGlobal()
}

// validateLocation はチェックイン先となる実在の拠点であることを検証する。GLOBALは不可。
func validateLocation(fl validatorengine.FieldLevel) bool {
	return model.Installation(fl.Field().String()).IsLocation()
}

func validatePassword(fl validatorengine.FieldLevel) bool {
	p := fl.Field().String()
	return len(p) >= passwordMinLength && len(p) <= passwordMaxLength && passwordPattern.MatchString(p)
}

// validateNewMemberTribe は初来会メンバーのトライブが所属拠点で許可されていることを検証する。
func validateNewMemberTribe(sl validatorengine.StructLevel) {
	m, ok := sl.Current().Interface().(model.NewMember)
	if !ok {
		return
	}
	if !m.Installation.AllowsTribe(m.Tribe) {
		sl.ReportError(m.Tribe, "tribe", "Tribe", "tribe", "")
	}
}
