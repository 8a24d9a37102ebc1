package email

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

var otpTemplate = template.Must(template.New("otp").Parse(`
<div style="font-family: sans-serif; max-width: 480px; margin: 0 auto;">
  <h2>Your login code</h2>
  <p>Use this code to sign in to {{.AppName}}:</p>
  <p style="font-size: 32px; font-weight: bold; letter-spacing: 6px; text-align: center; padding: 16px; background: #f4f4f5; border-radius: 8px;">{{.Code}}</p>
  <p>The code expires in {{.TTLMinutes}} minutes. If you didn't request it, you can ignore this email.</p>
</div>`))

var passwordResetTemplate = template.Must(template.New("password_reset").Parse(`
<div style="font-family: sans-serif; max-width: 480px; margin: 0 auto;">
  <h2>Reset your password</h2>
  <p>Someone requested a password reset for your {{.AppName}} account. If that was you, follow the link below:</p>
  <p style="text-align: center; padding: 16px;"><a href="{{.ResetURL}}" style="font-weight: bold;">Reset password</a></p>
  <p>If you didn't request this, no action is needed.</p>
</div>`))

// RenderOTP builds the login-code message for a recipient.
func RenderOTP(appName, to, code string, ttl time.Duration) (Message, error) {
	var buf bytes.Buffer
	err := otpTemplate.Execute(&buf, map[string]interface{}{
		"AppName":    appName,
		"Code":       code,
		"TTLMinutes": int(ttl.Minutes()),
	})
	if err != nil {
		return Message{}, fmt.Errorf("failed to render otp template: %w", err)
	}

	return Message{
		To:       to,
		Subject:  fmt.Sprintf("%s is your %s login code", code, appName),
		BodyHTML: buf.String(),
		Tag:      "otp-login",
	}, nil
}

// RenderPasswordReset builds the reset-link message for a recipient.
func RenderPasswordReset(appName, to, resetURL string) (Message, error) {
	var buf bytes.Buffer
	err := passwordResetTemplate.Execute(&buf, map[string]interface{}{
		"AppName":  appName,
		"ResetURL": resetURL,
	})
	if err != nil {
		return Message{}, fmt.Errorf("failed to render password reset template: %w", err)
	}

	return Message{
		To:       to,
		Subject:  fmt.Sprintf("Reset your %s password", appName),
		BodyHTML: buf.String(),
		Tag:      "password-reset",
	}, nil
}
