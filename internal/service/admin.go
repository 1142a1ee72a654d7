package service

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	pkgcrypto "github.com/metrostaff/timeclock/internal/crypto"
	"github.com/metrostaff/timeclock/internal/errs"
	"github.com/metrostaff/timeclock/internal/limiter"
)

// AdminService authenticates the kiosk administrator.
type AdminService interface {
	// Login verifies credentials with rate limiting by (username, ip) and
	// returns a signed access token.
	Login(ctx context.Context, username, password, ip string) (string, time.Time, error)
}

// AdminServiceImpl checks logins against the single account configured at
// startup. The kiosk has no user database; the admin password hash comes
// from configuration.
type AdminServiceImpl struct {
	username string
	pwdHash  string
	signKey  []byte
	tokenTTL time.Duration
	lim      limiter.Limiter
}

// NewAdminService constructs the admin authenticator.
func NewAdminService(username, pwdHash string, signKey []byte, tokenTTL time.Duration, lim limiter.Limiter) *AdminServiceImpl {
	return &AdminServiceImpl{
		username: username,
		pwdHash:  pwdHash,
		signKey:  signKey,
		tokenTTL: tokenTTL,
		lim:      lim,
	}
}

var _ AdminService = (*AdminServiceImpl)(nil)

// Login authenticates with rate limiting by (username, ip).
func (s *AdminServiceImpl) Login(ctx context.Context, username, password, ip string) (string, time.Time, error) {
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, username, ipHash)
	if err != nil {
		return "", time.Time{}, err
	}
	if !allowed {
		return "", time.Time{}, errs.ErrRateLimited
	}

	if username != s.username || !pkgcrypto.VerifyPassword(password, s.pwdHash) {
		if blocked, _, ferr := s.lim.Failure(ctx, username, ipHash); ferr == nil && blocked {
			return "", time.Time{}, errs.ErrRateLimited
		}
		// unknown username and wrong password are indistinguishable
		return "", time.Time{}, errs.ErrUnauthorized
	}

	_ = s.lim.Success(ctx, username, ipHash)

	return s.issueAccessToken(username)
}

// issueAccessToken creates a signed HS256 JWT for the given subject.
func (s *AdminServiceImpl) issueAccessToken(username string) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(s.tokenTTL)
	claims := jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.signKey)
	return signed, exp, err
}
