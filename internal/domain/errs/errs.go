// Package errs defines the error taxonomy of SPEC_FULL.md §7 as sentinel
// values that callers wrap with %w and match with errors.Is. The HTTP
// handlers do not map these sentinels to status codes.
package errs

import "errors"

var (
	// ErrDuplicate: the inbound event or outbound send was already recorded.
	// Recovered locally; never surfaced as a failure to the caller.
	ErrDuplicate = errors.New("duplicate")

	// ErrAuthentication: request failed provider/admin authentication.
	ErrAuthentication = errors.New("authentication failed")

	// ErrValidation: malformed payload or an impossible state transition was
	// requested.
	ErrValidation = errors.New("validation failed")

	// ErrTransientProvider: network, 5xx, or rate-limit from a provider.
	// Retry-eligible.
	ErrTransientProvider = errors.New("transient provider error")

	// ErrPermanentProvider: a 4xx from a provider outside the retry class.
	ErrPermanentProvider = errors.New("permanent provider error")

	// ErrContention: the advisory incident lock could not be acquired within
	// its retry window. Callers should enqueue a follow-up reconciliation
	// action rather than retry synchronously.
	ErrContention = errors.New("incident lock contention")

	// ErrFatal: infrastructure is unreachable (database down). Readiness
	// should go red and the scheduler should pause.
	ErrFatal = errors.New("fatal infrastructure error")
)

// Is returns true if err (or anything it wraps) is the given sentinel.
func Is(err, target error) bool { return errors.Is(err, target) }
