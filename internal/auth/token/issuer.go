// Package token signs and verifies the HS256 access and refresh tokens.
// It holds no database handle.
package token

import (
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/schoolpay/internal/auth/domain"
	"github.com/smallbiznis/schoolpay/internal/clock"
	"github.com/smallbiznis/schoolpay/internal/config"
)

const (
	issuer = "schoolpay"

	kindAccess  = "access"
	kindRefresh = "refresh"

	defaultAccessTTL  = 8 * time.Hour
	defaultRefreshTTL = 30 * 24 * time.Hour
)

type Claims struct {
	SchoolID      string      `json:"school_id,omitempty"`
	Role          domain.Role `json:"role,omitempty"`
	PlatformAdmin bool        `json:"platform_admin,omitempty"`
	Kind          string      `json:"kind"`
	jwt.RegisteredClaims
}

type Issuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	clock      clock.Clock
}

func NewIssuer(cfg config.Config, clk clock.Clock) (*Issuer, error) {
	secret := strings.TrimSpace(cfg.AuthJWTSecret)
	if secret == "" {
		return nil, domain.ErrMissingSecret
	}
	accessTTL := cfg.AuthAccessTTL
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	refreshTTL := cfg.AuthRefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTTL
	}
	return &Issuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		clock:      clk,
	}, nil
}

// Issue signs a fresh access and refresh token for user.
func (i *Issuer) Issue(user domain.User) (domain.TokenPair, error) {
	now := i.clock.Now()
	access, err := i.sign(user, kindAccess, now, i.accessTTL)
	if err != nil {
		return domain.TokenPair{}, err
	}
	refresh, err := i.sign(user, kindRefresh, now, i.refreshTTL)
	if err != nil {
		return domain.TokenPair{}, err
	}
	return domain.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        "Bearer",
		ExpiresAt:        now.Add(i.accessTTL),
		RefreshExpiresAt: now.Add(i.refreshTTL),
	}, nil
}

func (i *Issuer) sign(user domain.User, kind string, now time.Time, ttl time.Duration) (string, error) {
	claims := Claims{
		Role:          user.Role,
		PlatformAdmin: user.IsPlatformAdmin,
		Kind:          kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if user.SchoolID != nil {
		claims.SchoolID = user.SchoolID.String()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// VerifyAccess returns the principal of a valid access token.
func (i *Issuer) VerifyAccess(raw string) (*domain.Principal, error) {
	claims, err := i.parse(raw, kindAccess)
	if err != nil {
		return nil, err
	}
	return principal(claims)
}

// VerifyRefresh returns the user id of a valid refresh token.
func (i *Issuer) VerifyRefresh(raw string) (snowflake.ID, error) {
	claims, err := i.parse(raw, kindRefresh)
	if err != nil {
		return 0, err
	}
	id, err := snowflake.ParseString(claims.Subject)
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidToken
	}
	return id, nil
}

func (i *Issuer) parse(raw, kind string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, domain.ErrInvalidToken
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(i.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrTokenExpired
		}
		return nil, domain.ErrInvalidToken
	}
	if claims.Kind != kind {
		return nil, domain.ErrInvalidToken
	}
	return claims, nil
}

func principal(claims *Claims) (*domain.Principal, error) {
	userID, err := snowflake.ParseString(claims.Subject)
	if err != nil || userID == 0 {
		return nil, domain.ErrInvalidToken
	}
	p := &domain.Principal{
		UserID:          userID,
		Role:            claims.Role,
		IsPlatformAdmin: claims.PlatformAdmin,
	}
	if claims.SchoolID != "" {
		schoolID, err := snowflake.ParseString(claims.SchoolID)
		if err != nil {
			return nil, domain.ErrInvalidToken
		}
		p.SchoolID = schoolID
	}
	if p.SchoolID == 0 && !p.IsPlatformAdmin {
		return nil, domain.ErrInvalidToken
	}
	return p, nil
}
