package models

import "errors"

// Error taxonomy shared by all services. Wrap with fmt.Errorf("...: %w", err)
// and test with errors.Is.
var (
	// ErrInvalidArgument marks malformed caller input (MAC address, host, text).
	// It is never retried.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrTimeout marks a bounded wait that expired.
	ErrTimeout = errors.New("timeout")

	// ErrTransportFailure marks a failed send or connect primitive.
	ErrTransportFailure = errors.New("transport failure")

	// ErrUnreachable is the terminal outcome of a wake loop whose target never answered.
	ErrUnreachable = errors.New("host unreachable")

	// ErrLinkDown is returned when an operation needs the network link and it is not connected.
	ErrLinkDown = errors.New("link down")

	// ErrLinkFailed is returned by Connect when the retry budget is exhausted.
	ErrLinkFailed = errors.New("link failed")
)
