package datasource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EvilBit-Labs/dbsurveyor/pkg/config"
)

func TestSensitivityDetector_Defaults(t *testing.T) {
	d, err := NewSensitivityDetector(nil)
	require.NoError(t, err)

	sensitive := []string{"password", "user_password", "PasswordHash", "pwd", "email", "Contact_EMail", "ssn", "credit_card", "card_number", "api_key", "client_secret", "refresh_token"}
	for _, name := range sensitive {
		_, ok := d.Match(name)
		assert.True(t, ok, name)
	}

	safe := []string{"username", "created_at", "id", "passenger_count", "lesson", "display_name"}
	for _, name := range safe {
		_, ok := d.Match(name)
		assert.False(t, ok, name)
	}
}

func TestSensitivityDetector_OneWarningPerColumn(t *testing.T) {
	d, err := NewSensitivityDetector(nil)
	require.NoError(t, err)

	warnings := d.Warnings("users", []string{"id", "email", "password", "email"})
	require.Len(t, warnings, 2)
	assert.Contains(t, warnings[0], "users.email")
	assert.Contains(t, warnings[1], "users.password")
}

func TestSensitivityDetector_CustomPatterns(t *testing.T) {
	d, err := NewSensitivityDetector([]config.SensitivePattern{{Pattern: `(?i)^dob$`, Description: "date of birth"}})
	require.NoError(t, err)

	desc, ok := d.Match("DOB")
	assert.True(t, ok)
	assert.Equal(t, "date of birth", desc)

	_, ok = d.Match("password")
	assert.False(t, ok, "custom patterns replace the defaults")

	_, err = NewSensitivityDetector([]config.SensitivePattern{{Pattern: "("}})
	assert.Error(t, err)
}
