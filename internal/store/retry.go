package store

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// RetryPolicy controls how often opening a store is retried.
type RetryPolicy struct {
	// Attempts is the total number of tries. Default: 4.
	Attempts int
	// Backoff is the delay before the first retry. Default: 250ms.
	Backoff time.Duration
	// MaxBackoff caps the delay. Default: 5s.
	MaxBackoff time.Duration
	// Jitter is the ± fraction applied to each delay. Default: 0.2.
	Jitter float64
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.Attempts <= 0 {
		p.Attempts = 4
	}
	if p.Backoff <= 0 {
		p.Backoff = 250 * time.Millisecond
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = 5 * time.Second
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	} else if p.Jitter == 0 {
		p.Jitter = 0.2
	}
	return p
}

// delay returns the doubling backoff before retry n (0-based).
func (p RetryPolicy) delay(n int) time.Duration {
	d := float64(p.Backoff) * math.Pow(2, float64(n))
	if d > float64(p.MaxBackoff) {
		d = float64(p.MaxBackoff)
	}
	d += d * p.Jitter * (rand.Float64()*2 - 1)
	return time.Duration(max(d, 0))
}

// ConnectPostgres opens a PostgresStore, retrying while the server is
// unreachable.
func ConnectPostgres(ctx context.Context, connString string, poolCfg *PoolConfig, policy RetryPolicy) (*PostgresStore, error) {
	return withRetry(ctx, policy, "postgres connect", func(ctx context.Context) (*PostgresStore, error) {
		return NewPostgres(ctx, connString, poolCfg)
	})
}

// withRetry calls fn until it succeeds, fails with a non-transient error,
// runs out of attempts or ctx is done.
func withRetry[T any](ctx context.Context, policy RetryPolicy, op string, fn func(context.Context) (T, error)) (T, error) {
	policy = policy.withDefaults()

	var zero T
	var err error
	for attempt := 0; attempt < policy.Attempts; attempt++ {
		var v T
		if v, err = fn(ctx); err == nil {
			return v, nil
		}
		if ctx.Err() != nil || !isTransient(err) || attempt == policy.Attempts-1 {
			return zero, err
		}

		wait := policy.delay(attempt)
		zap.L().Warn("store: retrying",
			zap.String("operation", op),
			zap.Int("attempt", attempt+1),
			zap.Duration("wait", wait),
			zap.Error(err),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, err
		case <-timer.C:
		}
	}
	return zero, err
}

// isTransient reports whether err looks like a connection problem that may
// clear up on its own.
func isTransient(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// 57P03: cannot_connect_now, sent while the server is starting up.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "57P03" || strings.HasPrefix(pgErr.Code, "08")
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{"connection refused", "connection reset by peer", "i/o timeout", "no such host", "database is locked"} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
