package incident

import (
	"errors"
	"fmt"
)

// Local failure kinds inside the repair loop. Both feed repair attempts and
// only escalate once the attempt bound is exhausted.
var (
	// ErrMalformedJSON indicates the text did not parse after fence stripping.
	ErrMalformedJSON = errors.New("malformed JSON")

	// ErrSchemaViolation indicates the text parsed but did not match the schema.
	ErrSchemaViolation = errors.New("schema violation")
)

// RepairExhaustedError is the terminal failure after the repair attempt bound
// is exceeded. Last carries the final validation failure.
type RepairExhaustedError struct {
	// Tries is the total number of validation tries, including the first.
	Tries int
	// Last is the validation error from the final try.
	Last error
}

func (e *RepairExhaustedError) Error() string {
	return fmt.Sprintf("unable to produce a valid incident summary after %d tries: %v", e.Tries, e.Last)
}

func (e *RepairExhaustedError) Unwrap() error { return e.Last }

// CallbackError is the terminal failure when the repair callback itself fails.
// It propagates immediately; the loop does not retry network failures.
type CallbackError struct {
	err error
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("repair callback failed: %v", e.err)
}

func (e *CallbackError) Unwrap() error { return e.err }

// IsRepairExhausted reports whether err is a repair-bound exhaustion.
func IsRepairExhausted(err error) bool {
	var e *RepairExhaustedError
	return errors.As(err, &e)
}

// IsCallbackFailure reports whether err came from the repair callback.
func IsCallbackFailure(err error) bool {
	var e *CallbackError
	return errors.As(err, &e)
}
