package crypto

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestSecret_RevealAndZero(t *testing.T) {
	s := NewSecret("postgres://app:hunter2@db/sales")

	got, err := s.Reveal()
	if err != nil {
		t.Fatalf("Reveal() error = %v", err)
	}
	if got != "postgres://app:hunter2@db/sales" {
		t.Errorf("Reveal() = %q", got)
	}

	buf := s.buf
	s.Zero()
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("byte %d not zeroed", i)
		}
	}
	if !s.IsZeroed() || s.Len() != 0 {
		t.Error("secret should report zeroed with length 0")
	}
	if _, err := s.Reveal(); !errors.Is(err, ErrSecretZeroed) {
		t.Errorf("Reveal() after Zero error = %v, want ErrSecretZeroed", err)
	}
	s.Zero()
}

func TestSecret_NeverFormatsValue(t *testing.T) {
	s := NewSecret("hunter2")
	wrapper := struct{ DSN *Secret }{DSN: s}

	data, err := json.Marshal(wrapper)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for _, out := range []string{fmt.Sprint(s), fmt.Sprintf("%v", wrapper), fmt.Sprintf("%#v", s), fmt.Sprintf("%+v", wrapper), string(data)} {
		if strings.Contains(out, "hunter2") {
			t.Errorf("formatted output leaked the value: %q", out)
		}
	}
}

func TestScoped_ZeroesOnReturn(t *testing.T) {
	var kept *Secret
	wantErr := errors.New("factory failed")

	err := Scoped("s3cret", func(s *Secret) error {
		kept = s
		v, err := s.Reveal()
		if err != nil || v != "s3cret" {
			t.Errorf("Reveal() = %q, %v", v, err)
		}
		return wantErr
	})

	if !errors.Is(err, wantErr) {
		t.Errorf("Scoped() error = %v, want %v", err, wantErr)
	}
	if !kept.IsZeroed() {
		t.Error("secret not zeroed after scope ended")
	}
}
