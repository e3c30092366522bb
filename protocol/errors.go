package protocol

import "errors"

// Kind is a stable category for programmatic error handling.
//
// Callers branch on Kind via IsKind/errors.As, never on error strings.
type Kind string

const (
	// KindConflict: the derived address is already occupied (duplicate
	// commitment, duplicate slug, lost sequence race after the single
	// counter-refresh retry).
	KindConflict Kind = "Conflict"

	// KindNotFound: an expected account is absent. A valid, expected
	// outcome; callers branch on it rather than failing.
	KindNotFound Kind = "NotFound"

	// KindAuthentication: a sealed payload failed its integrity check on
	// unseal (wrong key or corrupted data).
	KindAuthentication Kind = "Authentication"

	// KindTransport: the blob store or ledger could not complete the
	// operation for reasons unrelated to protocol state.
	KindTransport Kind = "Transport"

	// KindDerivation: deterministic key derivation exhausted rejection
	// sampling. Practically unreachable.
	KindDerivation Kind = "Derivation"

	// KindPolicy: the operation is well-formed but refused by current
	// state (inactive namespace, double burn). No retry can fix it.
	KindPolicy Kind = "Policy"

	// KindInvalid: the request itself is malformed (field caps, bad
	// locator, empty slug).
	KindInvalid Kind = "Invalid"
)

// Error is the protocol's structured error type. Detail carries enough
// context to act on (which fingerprint, which locator, which slug).
type Error struct {
	Kind   Kind
	Op     string
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Detail == "" {
		return e.Op
	}
	return e.Op + ": " + e.Detail
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func newError(kind Kind, op, detail string) error {
	return &Error{Kind: kind, Op: op, Detail: detail}
}

func wrapError(kind Kind, op, detail string, cause error) error {
	if cause == nil {
		return newError(kind, op, detail)
	}
	return &Error{Kind: kind, Op: op, Detail: detail, Cause: cause}
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
