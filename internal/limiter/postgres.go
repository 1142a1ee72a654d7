package limiter

import (
	"context"
	"crypto/sha256"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres is a PostgreSQL-backed limiter with a sliding failure window and
// a temporary lockout once the failure budget is spent. The kiosk admin
// panel is reachable on the shop floor, so lockout state must survive
// process restarts.
type Postgres struct {
	pool     querier
	window   time.Duration
	maxFails int
	blockFor time.Duration
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPostgres constructs the limiter over any pgx-compatible querier
// (a pool in production, a mock in tests).
func NewPostgres(q querier, window time.Duration, maxFails int, blockFor time.Duration) *Postgres {
	return &Postgres{pool: q, window: window, maxFails: maxFails, blockFor: blockFor}
}

var _ Limiter = (*Postgres)(nil)

// HashIP returns a stable hash for an IP string to avoid storing raw addresses.
func HashIP(ip string) []byte {
	h := sha256.Sum256([]byte(ip))
	return h[:]
}

// Allow reports whether login is currently allowed and a retry-after duration.
func (l *Postgres) Allow(ctx context.Context, username string, ipHash []byte) (bool, time.Duration, error) {
	const q = `SELECT blocked_until FROM admin_limiter WHERE username=$1 AND ip_hash=$2`
	var blockedUntil time.Time
	err := l.pool.QueryRow(ctx, q, username, ipHash).Scan(&blockedUntil)
	switch {
	case err == nil:
		if until := time.Until(blockedUntil); until > 0 {
			return false, until, nil
		}
		return true, 0, nil
	case errors.Is(err, pgx.ErrNoRows):
		return true, 0, nil
	default:
		return false, 0, err
	}
}

// Success resets counters for (username, ip).
func (l *Postgres) Success(ctx context.Context, username string, ipHash []byte) error {
	const q = `
INSERT INTO admin_limiter (username, ip_hash, fail_count, blocked_until, updated_at)
VALUES ($1,$2,0,'epoch',now())
ON CONFLICT (username, ip_hash)
DO UPDATE SET fail_count=0, blocked_until='epoch', updated_at=now()`
	_, err := l.pool.Exec(ctx, q, username, ipHash)
	return err
}

// Failure records a failed attempt. Attempts older than the window restart
// the count; reaching the budget sets a block and reports it.
func (l *Postgres) Failure(ctx context.Context, username string, ipHash []byte) (bool, time.Duration, error) {
	const q = `
INSERT INTO admin_limiter (username, ip_hash, fail_count, blocked_until, updated_at)
VALUES ($1,$2,1,'epoch',now())
ON CONFLICT (username, ip_hash) DO UPDATE
SET
  fail_count = CASE WHEN now() - admin_limiter.updated_at > $3::interval THEN 1 ELSE admin_limiter.fail_count + 1 END,
  updated_at = now()
RETURNING fail_count`
	var fails int
	if err := l.pool.QueryRow(ctx, q, username, ipHash, l.window).Scan(&fails); err != nil {
		return false, 0, err
	}
	if fails < l.maxFails {
		return false, 0, nil
	}

	const upd = `UPDATE admin_limiter SET blocked_until=$3 WHERE username=$1 AND ip_hash=$2`
	if _, err := l.pool.Exec(ctx, upd, username, ipHash, time.Now().Add(l.blockFor)); err != nil {
		return false, 0, err
	}
	return true, l.blockFor, nil
}
