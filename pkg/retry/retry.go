package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	goretry "github.com/sethvargo/go-retry"
)

const (
	defaultTimeout = 10 * time.Second
	defaultWait    = 250 * time.Millisecond
)

// Policy bounds a call to an external system: every attempt runs under its own
// timeout and transient failures are retried Retries times.
type Policy struct {
	Timeout   time.Duration
	Retries   uint64
	Wait      time.Duration
	Transient func(error) bool
}

// Once is the default policy for external calls: one retry on transient errors.
func Once(timeout time.Duration) Policy {
	return Policy{Timeout: timeout, Retries: 1, Wait: defaultWait}
}

// Do runs fn until it succeeds, fails permanently, or the retry budget is spent.
// The last error is returned unwrapped.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	timeout := policy.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	wait := policy.Wait
	if wait <= 0 {
		wait = defaultWait
	}
	transient := policy.Transient
	if transient == nil {
		transient = IsTransient
	}

	backoff := goretry.WithMaxRetries(policy.Retries, goretry.NewConstant(wait))
	return goretry.Do(ctx, backoff, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		err := fn(attemptCtx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if transient(err) {
			return goretry.RetryableError(err)
		}
		return err
	})
}

// IsTransient reports whether err looks like a network blip worth one more try.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}
	return false
}
