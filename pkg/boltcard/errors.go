package boltcard

import (
	"fmt"

	"github.com/pkg/errors"
)

// Input validation errors. They are returned before anything is sent to a tag.
var (
	ErrScheme      = errors.New("url must start with scheme lnurlw://")
	ErrQuery       = errors.New("url must not include a query string")
	ErrPlaceholder = errors.New("url template needs both {picc} and {cmac}")
	ErrURLTooLong  = errors.New("url too long")
	ErrKeyCount    = errors.New("exactly 5 keys required")
	ErrKeyLength   = errors.New("keys must be 16 bytes")
)

// ErrIncompatible is returned by CheckCard for tags that are not NTAG 424 DNA.
var ErrIncompatible = errors.New("incompatible card")

// ErrTapMAC means a tapped URL decrypted but its SUN MAC did not verify.
var ErrTapMAC = errors.New("tap MAC mismatch")

// StepError names the burn or wipe step that failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
