package email

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRenderOTP(t *testing.T) {
	msg, err := RenderOTP("Finance Tracker", "user@example.com", "483920", 10*time.Minute)
	require.NoError(t, err)

	require.Equal(t, "user@example.com", msg.To)
	require.Equal(t, "483920 is your Finance Tracker login code", msg.Subject)
	require.Equal(t, "otp-login", msg.Tag)
	require.Contains(t, msg.BodyHTML, "483920")
	require.Contains(t, msg.BodyHTML, "10 minutes")
}

func TestRenderPasswordReset(t *testing.T) {
	msg, err := RenderPasswordReset("Finance Tracker", "user@example.com", "https://app.example.com/reset?token=abc")
	require.NoError(t, err)

	require.Equal(t, "user@example.com", msg.To)
	require.Equal(t, "Reset your Finance Tracker password", msg.Subject)
	require.Equal(t, "password-reset", msg.Tag)
	require.Contains(t, msg.BodyHTML, "https://app.example.com/reset?token=abc")
	require.False(t, strings.Contains(msg.BodyHTML, "{{"), "unrendered template markers in body")
}
