package retry

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Classifier reports whether an error is transient and worth retrying.
// Classification is the caller's concern; Do only enforces it.
type Classifier func(error) bool

// Policy bounds a retried operation. MaxAttempts counts the first call.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
}

// Transient is the default classifier: network errors, timeouts and
// temporary unavailability retry, everything else is fatal.
func Transient(err error) bool {
	var nerr net.Error
	if errors.As(err, &nerr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, pat := range []string{"timeout", "network", "connection", "unavailable", "temporar"} {
		if strings.Contains(msg, pat) {
			return true
		}
	}
	return false
}

// Do calls fn until it succeeds, a fatal error is returned, attempts are
// exhausted, or ctx is done. Waits grow exponentially from InitialInterval.
func Do[T any](ctx context.Context, p Policy, classify Classifier, fn func() (T, error)) (T, error) {
	var out T
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if classify == nil {
		classify = Transient
	}

	op := func() error {
		v, err := fn()
		if err != nil {
			if !classify(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		out = v
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.MaxAttempts-1)), ctx)
	if err := backoff.Retry(op, b); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
