package utils

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// MaxWait caps a single wait between attempts.
const MaxWait = 30 * time.Second

type Backoff struct {
	base       time.Duration
	maxRetries int
	jitter     time.Duration
}

func NewBackoff(base time.Duration, maxRetries int) Backoff {
	return Backoff{base: base, maxRetries: maxRetries}
}

// WithJitter adds up to j of random delay to every wait.
func (b Backoff) WithJitter(j time.Duration) Backoff {
	b.jitter = j
	return b
}

func (b Backoff) MaxRetries() int { return b.maxRetries }

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying; Do returns the wrapped error at once.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// Do runs fn until it succeeds, returns a Permanent error, the retries are
// exhausted or ctx is done. The wait doubles on every attempt.
func (b Backoff) Do(ctx context.Context, fn func(i int) error) error {
	var err error
	for i := 0; i <= b.maxRetries; i++ {
		err = fn(i)
		if err == nil {
			return nil
		}
		var p permanentError
		if errors.As(err, &p) {
			return p.err
		}
		if i == b.maxRetries {
			break
		}
		timer := time.NewTimer(b.wait(i))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

// wait is the pause after attempt i: base*2^i capped at MaxWait, plus jitter.
func (b Backoff) wait(i int) time.Duration {
	// backoff exponencial + jitter
	t := MaxWait
	switch {
	case b.base <= 0:
		t = 0
	case i < 32 && b.base <= MaxWait>>uint(i):
		t = b.base << uint(i)
	}
	if b.jitter > 0 {
		t += time.Duration(rand.Int63n(int64(b.jitter)))
	}
	return t
}
