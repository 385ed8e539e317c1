package notifiers

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a delivery failure.
type Kind int

const (
	// KindTransient failures (timeouts, rate limits, provider outages) may succeed on retry.
	KindTransient Kind = iota
	// KindPermanent failures (invalid recipient, rejected content) will never succeed.
	KindPermanent
)

func (k Kind) String() string {
	if k == KindPermanent {
		return "permanent"
	}
	return "transient"
}

// SendError is returned by senders to tell the scheduler whether a retry makes sense.
type SendError struct {
	Kind Kind
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("%s send error: %v", e.Kind, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// Transient marks err as retry-eligible.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &SendError{Kind: KindTransient, Err: err}
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &SendError{Kind: KindPermanent, Err: err}
}

// Permanentf formats a permanent error.
func Permanentf(format string, args ...any) error {
	return Permanent(fmt.Errorf(format, args...))
}

// IsPermanent reports whether err was classified as permanent.
// Unclassified errors, including context deadlines, count as transient.
func IsPermanent(err error) bool {
	var se *SendError
	if errors.As(err, &se) {
		return se.Kind == KindPermanent
	}
	return false
}

// runWithContext runs a blocking provider call that has no context support and
// gives up when ctx is done. The call itself keeps running in the background.
func runWithContext(ctx context.Context, call func() (string, error)) (string, error) {
	type result struct {
		id  string
		err error
	}
	done := make(chan result, 1)
	go func() {
		id, err := call()
		done <- result{id: id, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", Transient(ctx.Err())
	case r := <-done:
		return r.id, r.err
	}
}
