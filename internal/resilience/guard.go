// Package resilience wraps calls to backing stores with a per-call timeout and
// a circuit breaker, and maps their failures onto a typed "unavailable" error.
package resilience

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"profilehub/internal/types"
)

// Settings configures a Guard.
type Settings struct {
	// Timeout bounds each guarded call. Zero disables the per-call timeout.
	Timeout time.Duration
	// ConsecutiveFailures trips the breaker once exceeded.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
	// Interval clears the closed-state failure counts.
	Interval time.Duration
}

// DefaultSettings returns the settings used when none are configured.
func DefaultSettings() Settings {
	return Settings{
		Timeout:             2 * time.Second,
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
		Interval:            60 * time.Second,
	}
}

// Guard executes store calls through a circuit breaker. Failures are returned
// as *types.AppError carrying the guard's error code; caller errors (4xx
// AppErrors such as validation failures) pass through untouched and do not
// count against the breaker.
type Guard[T any] struct {
	name    string
	code    types.ErrorCode
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker[T]
}

// NewGuard creates a Guard named after the store it protects.
func NewGuard[T any](name string, code types.ErrorCode, s Settings) *Guard[T] {
	cb := gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    s.Interval,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > s.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			var cc *callerCanceled
			return err == nil || isCallerError(err) || errors.As(err, &cc)
		},
	})

	return &Guard[T]{
		name:    name,
		code:    code,
		timeout: s.Timeout,
		breaker: cb,
	}
}

// Do runs fn under the guard's timeout and circuit breaker.
func (g *Guard[T]) Do(ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	v, err := g.breaker.Execute(func() (T, error) {
		v, err := fn(callCtx)
		if err != nil && errors.Is(ctx.Err(), context.Canceled) {
			return v, &callerCanceled{err: err}
		}
		return v, err
	})
	if err == nil {
		return v, nil
	}

	var zero T
	if isCallerError(err) {
		return zero, err
	}
	var cc *callerCanceled
	if errors.As(err, &cc) {
		return zero, types.NewAppError(g.code, g.name+" call cancelled by caller", cc.err)
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return zero, types.NewAppError(g.code, g.name+" circuit open", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return zero, types.NewAppError(g.code, g.name+" timed out", err)
	}
	return zero, types.NewAppError(g.code, g.name+" unavailable", err)
}

// State reports the breaker state, for health reporting.
func (g *Guard[T]) State() gobreaker.State {
	return g.breaker.State()
}

func isCallerError(err error) bool {
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		return false
	}
	status := appErr.HTTPStatus()
	return status >= http.StatusBadRequest && status < http.StatusInternalServerError
}

// callerCanceled marks a failure caused by the caller abandoning the request.
// It does not count against the breaker.
type callerCanceled struct {
	err error
}

func (c *callerCanceled) Error() string { return c.err.Error() }

func (c *callerCanceled) Unwrap() error { return c.err }
