package calendar

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Default retry settings of persistence calls.
const (
	DefaultStoreRetries   = 2
	DefaultStoreRetryBase = 100 * time.Millisecond
)

// StoreRetry retries failed persistence calls with exponential backoff.
// The zero value makes a single attempt.
type StoreRetry struct {
	Retries int
	Base    time.Duration
}

// Do runs fn until it succeeds, the retries are used up or ctx is done.
// The returned error matches ErrPersistence.
func (p StoreRetry) Do(ctx context.Context, op string, fn func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = DefaultStoreRetryBase
	if p.Base > 0 {
		policy.InitialInterval = p.Base
	}
	policy.MaxElapsedTime = 0

	retries := uint64(0)
	if p.Retries > 0 {
		retries = uint64(p.Retries)
	}

	notify := func(err error, wait time.Duration) {
		log.Printf("Store call failed while %s, retrying in %s: %v", op, wait.Round(time.Millisecond), err)
	}

	err := backoff.RetryNotify(fn, backoff.WithContext(backoff.WithMaxRetries(policy, retries), ctx), notify)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrPersistence):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return persistenceError(op, err)
	}
}
