package storage

import "errors"

var (
	// ErrNotFound reports that no backend holds the requested locator.
	// A valid, expected outcome for readers; not a transport failure.
	ErrNotFound = errors.New("storage: not found")

	// ErrUnavailable reports that a backend could not be reached. The only
	// error class eligible for internal fallback.
	ErrUnavailable = errors.New("storage: backend unavailable")

	ErrInvalidLocator  = errors.New("storage: invalid locator")
	ErrLocatorMismatch = errors.New("storage: bytes do not match locator")
	ErrImmutable       = errors.New("storage: immutable blob mismatch")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsUnavailable(err error) bool { return errors.Is(err, ErrUnavailable) }
