package sql

import (
	"errors"
	"fmt"

	libinjection "github.com/corazawaf/libinjection-go"
)

// ErrSuspiciousIdentifier is returned for catalog names that look like an
// injection payload. Quoting would neutralize them, but such objects are not
// sampled.
var ErrSuspiciousIdentifier = errors.New("identifier matches an SQL injection fingerprint")

// CheckIdentifier screens an identifier read from a catalog with libinjection.
// The returned error carries the fingerprint, never the identifier itself.
func CheckIdentifier(name string) error {
	if name == "" {
		return errors.New("empty identifier")
	}
	if isSQLi, fingerprint := libinjection.IsSQLi(name); isSQLi {
		return fmt.Errorf("%w (fingerprint %s)", ErrSuspiciousIdentifier, string(fingerprint))
	}
	return nil
}
