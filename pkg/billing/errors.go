package billing

import "errors"

// Verification and payload errors are final: a redelivery of the same bytes
// fails the same way. ErrPersistence is the only retry-safe failure.
var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMissingData      = errors.New("missing event data")
	ErrUnsupportedEvent = errors.New("unsupported event type")
	ErrPersistence      = errors.New("subscription store failure")
)

// Retryable reports whether the billing provider should redeliver after err.
func Retryable(err error) bool {
	return errors.Is(err, ErrPersistence)
}
