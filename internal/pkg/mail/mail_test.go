package mail

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTemplates(t *testing.T) {
	for _, name := range []string{TemplateWelcome, TemplatePasswordReset, TemplateSubscriptionReminder, TemplatePaymentReceipt, TemplateSubscriptionCancelled} {
		subject, body, err := Render(name, Data{Name: "Asha", URL: "https://example.com/x", Date: "01 Apr 2026", Amount: "INR 99.00"})
		require.NoError(t, err, name)
		assert.NotEmpty(t, subject, name)
		assert.Contains(t, body, "Asha", name)
		assert.True(t, strings.HasPrefix(body, "<!DOCTYPE html>"), name)
	}
}

func TestRenderEscapesInput(t *testing.T) {
	_, body, err := Render(TemplateWelcome, Data{Name: "<script>x</script>"})
	require.NoError(t, err)
	assert.NotContains(t, body, "<script>")
}

func TestRenderUnknownTemplate(t *testing.T) {
	_, _, err := Render("nope", Data{})
	assert.Error(t, err)
}

func TestBuildMessageHeaders(t *testing.T) {
	msg := string(buildMessage("no-reply@example.com", "a@example.com", "Hello", "<p>x</p>"))
	assert.Contains(t, msg, "To: a@example.com\r\n")
	assert.Contains(t, msg, "Subject: Hello\r\n")
	assert.Contains(t, msg, "Content-Type: text/html; charset=UTF-8\r\n\r\n<p>x</p>")
}
