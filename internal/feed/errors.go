package feed

import (
	"context"
	"errors"
	"fmt"
)

// Provider failures fall into two classes: transient ones (timeouts, rate
// limits, a single malformed message) that the caller retries or falls
// back around, and permanent ones (unknown symbol, rejected credentials)
// that disable the provider for the rest of the session.

type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient provider error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent provider error: %v", e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// Transient wraps err as retryable. A nil err returns nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// Permanent wraps err as non-retryable for the session.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func Transientf(format string, v ...any) error {
	return &TransientError{Err: fmt.Errorf(format, v...)}
}

func Permanentf(format string, v ...any) error {
	return &PermanentError{Err: fmt.Errorf(format, v...)}
}

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// ClassifyNetErr treats context cancellation as-is and everything else as
// transient. Gateways use it for plain network failures.
func ClassifyNetErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if IsTransient(err) || IsPermanent(err) {
		return err
	}
	return Transient(err)
}
