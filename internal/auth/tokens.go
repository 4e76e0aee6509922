package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/hitoshi/checkin/internal/model"
)

// トークンの種別。アクセストークンとリフレッシュトークンを取り違えないようclaimsに埋め込む。
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
	KindCheckin = "checkin"
)

// トークン検証エラー。
var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

// Claims は管理者トークンのclaims。SubjectにはadminIDが入る。
type Claims struct {
	Kind         string             `json:"kind"`
	Installation model.Installation `json:"installation,omitempty"`
	jwt.RegisteredClaims
}

// TokenConfig はトークン発行の設定。
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// TokenIssuer はHS256で署名した管理者トークンを発行・検証する。
type TokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewTokenIssuer はTokenIssuerを生成する。
func NewTokenIssuer(cfg TokenConfig) *TokenIssuer {
	return &TokenIssuer{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		now:           time.Now,
	}
}

// Issue は管理者のアクセストークンとリフレッシュトークンを発行する。
func (i *TokenIssuer) Issue(admin *model.Admin) (*model.TokenPair, error) {
	access, err := i.sign(admin, KindAccess, i.accessSecret, i.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := i.sign(admin, KindRefresh, i.refreshSecret, i.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &model.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (i *TokenIssuer) sign(admin *model.Admin, kind string, secret []byte, ttl time.Duration) (string, error) {
	now := i.now()
	claims := Claims{
		Kind:         kind,
		Installation: admin.Installation,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   admin.ID,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", kind, err)
	}
	return signed, nil
}

// ParseAccess はアクセストークンを検証してclaimsを返す。
func (i *TokenIssuer) ParseAccess(token string) (*Claims, error) {
	return i.parse(token, KindAccess, i.accessSecret)
}

// ParseRefresh はリフレッシュトークンを検証してclaimsを返す。
func (i *TokenIssuer) ParseRefresh(token string) (*Claims, error) {
	return i.parse(token, KindRefresh, i.refreshSecret)
}

func (i *TokenIssuer) parse(token, kind string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (interface{}, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrTokenExpired
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.Kind != kind || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// CheckinSigner はメンバーのチェックイントークン（QRコード用）を発行する。
// トークンは有効期限を持たず、メンバーIDごとに一意になる。
type CheckinSigner struct {
	secret []byte
	now    func() time.Time
}

// NewCheckinSigner はCheckinSignerを生成する。
func NewCheckinSigner(secret string) *CheckinSigner {
	return &CheckinSigner{secret: []byte(secret), now: time.Now}
}

// SignCheckinToken はメンバーIDを署名したトークンを返す。
func (s *CheckinSigner) SignCheckinToken(memberID string) (string, error) {
	if memberID == "" {
		return "", errors.New("member id is required")
	}
	claims := Claims{
		Kind: KindCheckin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  memberID,
			ID:       uuid.New().String(),
			IssuedAt: jwt.NewNumericDate(s.now()),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign checkin token: %w", err)
	}
	return signed, nil
}
