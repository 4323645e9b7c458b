// Package remote classifies failures of calls to the external monitoring
// and ticketing APIs and provides the bounded retry used for transient ones.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Error is a failed call to a remote API. Transient errors (network, 5xx,
// 429) may be retried within a run; permanent errors (other 4xx, API-level
// rejections) are logged and skipped for that item.
type Error struct {
	Op        string
	Status    int
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewTransient wraps err as a retryable remote error.
func NewTransient(op string, status int, err error) *Error {
	return &Error{Op: op, Status: status, Transient: true, Err: err}
}

// NewPermanent wraps err as a non-retryable remote error.
func NewPermanent(op string, status int, err error) *Error {
	return &Error{Op: op, Status: status, Transient: false, Err: err}
}

// FromStatus classifies a non-2xx HTTP response: 429 and 5xx are transient,
// everything else in the 4xx range is permanent.
func FromStatus(op string, status int, body string) *Error {
	err := fmt.Errorf("%s", body)
	if status == http.StatusTooManyRequests || status >= 500 {
		return NewTransient(op, status, err)
	}
	return NewPermanent(op, status, err)
}

// IsTransient reports whether err is a retryable remote error. Plain
// network errors that were not classified yet count as transient.
func IsTransient(err error) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Transient
	}
	return false
}

// IsPermanent reports whether err is a remote error that must not be
// retried within the run.
func IsPermanent(err error) bool {
	var re *Error
	if errors.As(err, &re) {
		return !re.Transient
	}
	return false
}

// Retry runs fn up to maxAttempts times, doubling the delay between
// attempts. Only transient errors are retried; permanent errors and
// context cancellation return immediately.
func Retry(ctx context.Context, logger *logrus.Entry, maxAttempts int, delay time.Duration, fn func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsTransient(err) {
			return err
		}
		if attempt == maxAttempts {
			break
		}
		logger.Warnf("Attempt %d/%d failed, retrying in %v: %v", attempt, maxAttempts, delay, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("failed after %d attempts: %w", maxAttempts, lastErr)
}
