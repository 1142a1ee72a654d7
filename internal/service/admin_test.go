package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	pkgcrypto "github.com/metrostaff/timeclock/internal/crypto"
	"github.com/metrostaff/timeclock/internal/errs"
)

type fakeLimiter struct {
	allowed   bool
	blockNext bool

	failures  int
	successes int
}

func (f *fakeLimiter) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	return f.allowed, 0, nil
}

func (f *fakeLimiter) Success(context.Context, string, []byte) error {
	f.successes++
	return nil
}

func (f *fakeLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	f.failures++
	return f.blockNext, 0, nil
}

const adminSignKey = "0123456789abcdef0123456789abcdef"

func newTestAdmin(t *testing.T, lim *fakeLimiter) *AdminServiceImpl {
	t.Helper()
	hash, err := pkgcrypto.HashPassword("s3cret")
	require.NoError(t, err)
	return NewAdminService("admin", hash, []byte(adminSignKey), time.Hour, lim)
}

func TestAdminLogin_Success(t *testing.T) {
	lim := &fakeLimiter{allowed: true}
	svc := newTestAdmin(t, lim)

	tok, exp, err := svc.Login(context.Background(), "admin", "s3cret", "192.168.1.10")
	require.NoError(t, err)
	require.NotEmpty(t, tok)
	require.True(t, exp.After(time.Now()))
	require.Equal(t, 1, lim.successes)

	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(tok, &claims, func(*jwt.Token) (any, error) {
		return []byte(adminSignKey), nil
	})
	require.NoError(t, err)
	require.True(t, parsed.Valid)
	require.Equal(t, "admin", claims.Subject)
}

func TestAdminLogin_WrongPassword(t *testing.T) {
	lim := &fakeLimiter{allowed: true}
	svc := newTestAdmin(t, lim)

	_, _, err := svc.Login(context.Background(), "admin", "nope", "192.168.1.10")
	require.ErrorIs(t, err, errs.ErrUnauthorized)
	require.Equal(t, 1, lim.failures)
}

func TestAdminLogin_UnknownUserSameError(t *testing.T) {
	lim := &fakeLimiter{allowed: true}
	svc := newTestAdmin(t, lim)

	_, _, err := svc.Login(context.Background(), "root", "s3cret", "192.168.1.10")
	require.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestAdminLogin_RateLimited(t *testing.T) {
	svc := newTestAdmin(t, &fakeLimiter{allowed: false})

	_, _, err := svc.Login(context.Background(), "admin", "s3cret", "192.168.1.10")
	require.ErrorIs(t, err, errs.ErrRateLimited)
}

func TestAdminLogin_FailureReachesBlock(t *testing.T) {
	lim := &fakeLimiter{allowed: true, blockNext: true}
	svc := newTestAdmin(t, lim)

	_, _, err := svc.Login(context.Background(), "admin", "nope", "192.168.1.10")
	require.ErrorIs(t, err, errs.ErrRateLimited)
}
