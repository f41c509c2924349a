package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "pushgate/pkg/domain-errors"
)

func TestNewAccount(t *testing.T) {
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	t.Run("normalizes email", func(t *testing.T) {
		acct, err := NewAccount("  Alice@Example.COM ", " token-1 ", "Phone", now)
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", acct.Email)
		assert.Equal(t, "token-1", acct.PushToken)
		assert.False(t, acct.ID.IsNil())
		assert.Equal(t, now, acct.EnrolledAt)
	})

	tests := []struct {
		name, email, token, msg string
	}{
		{"missing email", "", "tok", "email is required"},
		{"malformed email", "not-an-email", "tok", "email is invalid"},
		{"overlong email", strings.Repeat("a", 250) + "@example.com", "tok", "email is invalid"},
		{"missing push token", "alice@example.com", "   ", "pushToken is required"},
		{"overlong push token", "alice@example.com", strings.Repeat("t", maxPushTokenLength+1), "pushToken too long"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAccount(tt.email, tt.token, "", now)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestDeviceName(t *testing.T) {
	assert.Equal(t, "Unknown device", DeviceName(""))

	name := DeviceName("Mozilla/5.0 (Linux; Android 13; Pixel 7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36")
	assert.Contains(t, name, "Chrome")
	assert.Contains(t, name, " on Android")

	assert.Equal(t, "Bot", DeviceName("Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"))
}
