// Package crypto holds credential material for the shortest possible scope.
package crypto

import (
	"errors"
	"sync"
)

// ErrSecretZeroed is returned when a secret is read after its scope ended.
var ErrSecretZeroed = errors.New("secret has been zeroed")

const redacted = "[REDACTED]"

// Secret is a credential held in a mutable buffer that is overwritten by Zero.
// Its String, GoString and JSON forms never contain the value.
//
// Strings obtained from Reveal are ordinary Go strings and cannot be wiped;
// keep them local to the call that needs them.
type Secret struct {
	mu     sync.Mutex
	buf    []byte
	zeroed bool
}

// NewSecret copies value into a new Secret.
func NewSecret(value string) *Secret {
	buf := make([]byte, len(value))
	copy(buf, value)
	return &Secret{buf: buf}
}

// Scoped runs fn with a Secret holding value and zeroes it when fn returns,
// whether or not fn fails.
func Scoped(value string, fn func(*Secret) error) error {
	s := NewSecret(value)
	defer s.Zero()
	return fn(s)
}

// Reveal returns the value, or ErrSecretZeroed after Zero.
func (s *Secret) Reveal() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.zeroed {
		return "", ErrSecretZeroed
	}
	return string(s.buf), nil
}

// Len returns the length of the value, 0 once zeroed.
func (s *Secret) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

// Zero overwrites the buffer and releases it. Safe to call more than once.
func (s *Secret) Zero() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.buf {
		s.buf[i] = 0
	}
	s.buf = nil
	s.zeroed = true
}

// IsZeroed reports whether Zero has run.
func (s *Secret) IsZeroed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zeroed
}

func (s *Secret) String() string {
	return redacted
}

func (s *Secret) GoString() string {
	return redacted
}

func (s *Secret) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}
