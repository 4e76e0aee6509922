package model

import (
	"fmt"
	"strings"
)

// Installation は教会の拠点（ブランチ）を表す。
// InstallationGlobal は「全拠点」を意味するスコープ用の値であり、実在の拠点ではない。
type Installation string

const (
	InstallationAkure  Installation = "AKURE"
	InstallationIfe    Installation = "IFE"
	InstallationIsland Installation = "ISLAND"
	InstallationIkeja  Installation = "IKEJA"
	InstallationUK     Installation = "UK"
	InstallationMoro   Installation = "MORO"
	InstallationYaba   Installation = "YABA"
	InstallationIbadan Installation = "IBADAN"

	// InstallationGlobal は集計・一覧のスコープ指定専用。チェックイン先やメンバーの所属には使えない。
	InstallationGlobal Installation = "GLOBAL"
)

// locations は実在する拠点の一覧。
var locations = []Installation{
	InstallationAkure,
	InstallationIfe,
	InstallationIsland,
	InstallationIkeja,
	InstallationUK,
	InstallationMoro,
	InstallationYaba,
	InstallationIbadan,
}

// Locations は実在する拠点の一覧のコピーを返す。GLOBALは含まない。
func Locations() []Installation {
	out := make([]Installation, len(locations))
	copy(out, locations)
	return out
}

// ParseInstallation は文字列をInstallationに変換する。
// 大文字小文字と前後の空白は無視する。GLOBALも受け付ける。
func ParseInstallation(s string) (Installation, error) {
	candidate := Installation(strings.ToUpper(strings.TrimSpace(s)))
	if candidate == InstallationGlobal || candidate.IsLocation() {
		return candidate, nil
	}
	return "", fmt.Errorf("unknown installation: %q", s)
}

// IsLocation は実在の拠点であればtrueを返す。
func (i Installation) IsLocation() bool {
	for _, loc := range locations {
		if loc == i {
			return true
		}
	}
	return false
}

// IsGlobal はスコープ用のGLOBAL値であればtrueを返す。
func (i Installation) IsGlobal() bool {
	return i == InstallationGlobal
}

// Tribe は拠点内のメンバーグループ（トライブ）を表す。
type Tribe string

// twelveTribes は各拠点の既定トライブ。
var twelveTribes = []Tribe{
	"REUBEN", "SIMEON", "LEVI", "JUDAH", "DAN", "NAPHTALI",
	"GAD", "ASHER", "ISSACHAR", "ZEBULUN", "JOSEPH", "BENJAMIN",
}

// installationTribes は拠点ごとに許可されるトライブの対応表。
// 拠点ごとに異なる集合を持てるよう、拠点単位で明示的に定義する。
var installationTribes = map[Installation][]Tribe{
	InstallationAkure:  twelveTribes,
	InstallationIfe:    twelveTribes,
	InstallationIsland: twelveTribes,
	InstallationIkeja:  twelveTribes,
	InstallationUK:     twelveTribes,
	InstallationMoro:   twelveTribes,
	InstallationYaba:   twelveTribes,
	InstallationIbadan: twelveTribes,
}

// AllowedTribes は拠点で許可されるトライブの一覧を返す。GLOBALや未知の拠点は空を返す。
func AllowedTribes(i Installation) []Tribe {
	tribes := installationTribes[i]
	out := make([]Tribe, len(tribes))
	copy(out, tribes)
	return out
}

// AllowsTribe はトライブが拠点の許可リストに含まれるかを返す。
// 空のトライブは任意項目として常に許可する。
func (i Installation) AllowsTribe(t Tribe) bool {
	if t == "" {
		return true
	}
	normalized := Tribe(strings.ToUpper(strings.TrimSpace(string(t))))
	for _, allowed := range installationTribes[i] {
		if allowed == normalized {
			return true
		}
	}
	return false
}
