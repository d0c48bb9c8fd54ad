// Package retryx runs provider calls under a bounded, fixed-delay retry
// budget and classifies provider failures as transient or rejected.
package retryx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/aws/smithy-go"
	"github.com/sethvargo/go-retry"
)

var (
	// ErrProviderTransient marks a transient provider failure that persisted
	// through the whole retry budget.
	ErrProviderTransient = errors.New("provider transient failure")
	// ErrProviderRejected marks a provider failure that is not worth retrying.
	ErrProviderRejected = errors.New("provider rejected request")
)

// Policy is a retry budget: at most Attempts calls with Delay between them.
type Policy struct {
	Attempts int
	Delay    time.Duration
}

// DefaultPolicy is three attempts, 500ms apart.
var DefaultPolicy = Policy{Attempts: 3, Delay: 500 * time.Millisecond}

// Do calls fn until it succeeds, fails with a non-transient error, or the
// attempt budget is spent. The returned error wraps ErrProviderTransient or
// ErrProviderRejected together with the last error from fn. Context
// cancellation is returned unchanged.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.Delay
	if delay <= 0 {
		delay = time.Nanosecond
	}

	b := retry.WithMaxRetries(uint64(attempts-1), retry.NewConstant(delay))

	err := retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && IsTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case IsTransient(err):
		return fmt.Errorf("%w: %w", ErrProviderTransient, err)
	default:
		return fmt.Errorf("%w: %w", ErrProviderRejected, err)
	}
}

var transientCodes = map[string]struct{}{
	"InternalError":          {},
	"ServiceUnavailable":     {},
	"SlowDown":               {},
	"RequestTimeout":         {},
	"RequestTimeTooSkewed":   {},
	"Throttling":             {},
	"ThrottlingException":    {},
	"TooManyRequests":        {},
	"RequestLimitExceeded":   {},
	"BandwidthLimitExceeded": {},
}

type httpStatusError interface {
	HTTPStatusCode() int
}

// IsTransient reports whether err looks like a network or 5xx-class provider
// failure that may succeed when repeated.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if _, ok := transientCodes[apiErr.ErrorCode()]; ok {
			return true
		}
		if apiErr.ErrorFault() == smithy.FaultServer {
			return true
		}
	}

	var statusErr httpStatusError
	if errors.As(err, &statusErr) {
		code := statusErr.HTTPStatusCode()
		if code >= 500 || code == 429 {
			return true
		}
		if code >= 400 {
			return false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.Is(err, io.ErrUnexpectedEOF)
}
